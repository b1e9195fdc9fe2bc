package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/classroom-sync/internal/logger"
	"github.com/yukikurage/classroom-sync/internal/models"
	"github.com/yukikurage/classroom-sync/internal/reconcile"
	"github.com/yukikurage/classroom-sync/internal/repository"
)

func newTestPendingService(repo repository.CollectionRepository, oracle reconcile.CompletionOracle) *PendingService {
	svc := NewPendingService(repo, oracle, logger.Component(logger.Discard(), "pending"))
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestPendingService_UsesStoredProfile(t *testing.T) {
	repo := newFakeRepository()
	repo.users = []models.User{{Username: "u1", Role: models.RoleStudent, ActiveCourses: []string{"C1"}}}
	repo.tasks = []models.Task{
		{ID: "t1", Course: "C1", DueDate: models.NewTimestamp(testNow.Add(24 * time.Hour))},
		{ID: "t2", Course: "C2", DueDate: models.NewTimestamp(testNow.Add(24 * time.Hour))},
	}
	svc := newTestPendingService(repo, nil)

	view, user := svc.PendingView(context.Background(), Viewer{Username: "u1", Role: models.RoleStudent})

	assert.Equal(t, []string{"C1"}, []string(user.ActiveCourses))
	require.Len(t, view.PendingTasks, 1)
	assert.Equal(t, "t1", view.PendingTasks[0].ID)
}

func TestPendingService_UnknownUserFallsBackToSession(t *testing.T) {
	repo := newFakeRepository()
	repo.tasks = []models.Task{{ID: "t1", Course: "C1", DueDate: models.NewTimestamp(testNow.Add(time.Hour))}}
	repo.notifications = []models.Notification{
		{ID: "n1", Type: models.NotificationPendingGrading, TaskID: "t1", TargetUserRole: models.RoleTeacher},
	}
	svc := newTestPendingService(repo, nil)

	view, user := svc.PendingView(context.Background(), Viewer{Username: "prof", Role: models.RoleTeacher})

	assert.Equal(t, models.RoleTeacher, user.Role)
	assert.Empty(t, view.PendingTasks)
	require.Len(t, view.UnreadNotifications, 1)
	assert.Equal(t, "n1", view.UnreadNotifications[0].ID)
}

func TestPendingService_UsesOracle(t *testing.T) {
	repo := newFakeRepository()
	repo.users = []models.User{{Username: "u1", Role: models.RoleStudent, ActiveCourses: []string{"C1"}}}
	repo.tasks = []models.Task{{ID: "quiz", Course: "C1", TaskType: models.TaskTypeEvaluation, DueDate: models.NewTimestamp(testNow.Add(time.Hour))}}
	oracle := reconcile.CompletionFunc(func(taskID, username string) bool {
		return taskID == "quiz" && username == "u1"
	})

	view, user := newTestPendingService(repo, oracle).PendingView(context.Background(), Viewer{Username: "u1"})

	assert.Equal(t, models.RoleStudent, user.Role, "stored role used when the session has none")
	assert.Empty(t, view.PendingTasks)
	assert.True(t, view.IsCaughtUp())
}

func TestPendingService_UnreadableCollectionsDegradeToEmpty(t *testing.T) {
	repo := newFakeRepository()
	repo.users = []models.User{{Username: "u1", Role: models.RoleStudent, ActiveCourses: []string{"C1"}}}
	repo.tasks = []models.Task{{ID: "t1", Course: "C1", DueDate: models.NewTimestamp(testNow.Add(time.Hour))}}
	repo.notifications = []models.Notification{{ID: "n1", Type: models.NotificationNewTask, TaskID: "t1", TargetUsernames: []string{"u1"}}}
	repo.readErr[repository.CollectionNotifications] = errors.New("corrupt")
	repo.readErr[repository.CollectionComments] = errors.New("corrupt")
	repo.readErr[repository.CollectionEvaluationResults] = errors.New("corrupt")

	view, _ := newTestPendingService(repo, nil).PendingView(context.Background(), Viewer{Username: "u1"})

	require.Len(t, view.PendingTasks, 1)
	assert.NotNil(t, view.UnreadNotifications)
	assert.Empty(t, view.UnreadNotifications)
	assert.Empty(t, view.UnreadComments)
}

func TestPendingService_EverythingUnreadable(t *testing.T) {
	repo := newFakeRepository()
	for _, c := range []repository.Collection{
		repository.CollectionTasks,
		repository.CollectionNotifications,
		repository.CollectionComments,
		repository.CollectionEvaluationResults,
		repository.CollectionUsers,
	} {
		repo.readErr[c] = repository.ErrCollectionRead
	}

	view, user := newTestPendingService(repo, nil).PendingView(context.Background(), Viewer{Username: "u1", Role: models.RoleStudent})

	assert.Equal(t, "u1", user.Username)
	assert.True(t, view.IsCaughtUp())
}
