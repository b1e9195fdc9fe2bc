package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yukikurage/classroom-sync/internal/models"
	"github.com/yukikurage/classroom-sync/internal/reconcile"
	"github.com/yukikurage/classroom-sync/internal/repository"
)

// Viewer identifies who a pending view is computed for.
type Viewer struct {
	Username string
	Role     models.UserRole
}

// PendingService reads the store and computes a viewer's pending view. It
// never fails: an unreadable collection is treated as empty.
type PendingService struct {
	repo   repository.CollectionRepository
	oracle reconcile.CompletionOracle
	log    *logrus.Entry
	now    func() time.Time
}

// NewPendingService creates a new PendingService. oracle may be nil.
func NewPendingService(repo repository.CollectionRepository, oracle reconcile.CompletionOracle, log *logrus.Entry) *PendingService {
	return &PendingService{
		repo:   repo,
		oracle: oracle,
		log:    log,
		now:    time.Now,
	}
}

// PendingView computes what viewer still has to look at. The returned user
// is the profile the view was computed for.
func (s *PendingService) PendingView(ctx context.Context, viewer Viewer) (reconcile.PendingView, models.User) {
	log := s.log.WithField("username", viewer.Username)

	users := orEmpty[models.User](log, repository.CollectionUsers)(s.repo.ListUsers(ctx))
	tasks := orEmpty[models.Task](log, repository.CollectionTasks)(s.repo.ListTasks(ctx))
	notifications := orEmpty[models.Notification](log, repository.CollectionNotifications)(s.repo.ListNotifications(ctx))
	comments := orEmpty[models.Comment](log, repository.CollectionComments)(s.repo.ListComments(ctx))
	results := orEmpty[models.EvaluationResult](log, repository.CollectionEvaluationResults)(s.repo.ListEvaluationResults(ctx))

	user := resolveUser(users, viewer)
	view := reconcile.ComputePendingView(reconcile.PendingInput{
		User:              user,
		Tasks:             tasks,
		Notifications:     notifications,
		Comments:          comments,
		EvaluationResults: results,
		Now:               s.now(),
		Oracle:            s.oracle,
	})
	return view, user
}

// resolveUser prefers the stored profile, which carries the enrolled
// courses, and falls back to the session identity.
func resolveUser(users []models.User, viewer Viewer) models.User {
	for _, u := range users {
		if u.Username == viewer.Username {
			if u.Role == "" {
				u.Role = viewer.Role
			}
			return u
		}
	}
	return models.User{Username: viewer.Username, Role: viewer.Role, ActiveCourses: []string{}}
}

func orEmpty[T any](log *logrus.Entry, c repository.Collection) func([]T, error) []T {
	return func(records []T, err error) []T {
		if err != nil {
			log.WithError(err).WithField("collection", c).Warn("Collection unreadable, treating as empty")
			return []T{}
		}
		return records
	}
}
