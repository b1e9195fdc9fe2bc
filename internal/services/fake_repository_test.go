package services

import (
	"context"
	"slices"
	"sync"

	"github.com/yukikurage/classroom-sync/internal/models"
	"github.com/yukikurage/classroom-sync/internal/repository"
)

// fakeRepository is an in-memory CollectionRepository with error injection.
type fakeRepository struct {
	mu sync.Mutex

	tasks         []models.Task
	notifications []models.Notification
	comments      []models.Comment
	results       []models.EvaluationResult
	users         []models.User

	readErr  map[repository.Collection]error
	writeErr map[repository.Collection]error
	writes   map[repository.Collection]int

	// block, when set, is received from before each ListTasks returns
	block chan struct{}
	reads int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		readErr:  map[repository.Collection]error{},
		writeErr: map[repository.Collection]error{},
		writes:   map[repository.Collection]int{},
	}
}

func (f *fakeRepository) ListTasks(ctx context.Context) ([]models.Task, error) {
	f.mu.Lock()
	f.reads++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[repository.CollectionTasks]; err != nil {
		return nil, err
	}
	return slices.Clone(f.tasks), nil
}

func (f *fakeRepository) ListNotifications(ctx context.Context) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[repository.CollectionNotifications]; err != nil {
		return nil, err
	}
	return slices.Clone(f.notifications), nil
}

func (f *fakeRepository) ListComments(ctx context.Context) ([]models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[repository.CollectionComments]; err != nil {
		return nil, err
	}
	return slices.Clone(f.comments), nil
}

func (f *fakeRepository) ListEvaluationResults(ctx context.Context) ([]models.EvaluationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[repository.CollectionEvaluationResults]; err != nil {
		return nil, err
	}
	return slices.Clone(f.results), nil
}

func (f *fakeRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[repository.CollectionUsers]; err != nil {
		return nil, err
	}
	return slices.Clone(f.users), nil
}

func (f *fakeRepository) ReplaceTasks(ctx context.Context, tasks []models.Task) error {
	return f.replace(repository.CollectionTasks, func() { f.tasks = slices.Clone(tasks) })
}

func (f *fakeRepository) ReplaceNotifications(ctx context.Context, notifications []models.Notification) error {
	return f.replace(repository.CollectionNotifications, func() { f.notifications = slices.Clone(notifications) })
}

func (f *fakeRepository) ReplaceComments(ctx context.Context, comments []models.Comment) error {
	return f.replace(repository.CollectionComments, func() { f.comments = slices.Clone(comments) })
}

func (f *fakeRepository) ReplaceEvaluationResults(ctx context.Context, results []models.EvaluationResult) error {
	return f.replace(repository.CollectionEvaluationResults, func() { f.results = slices.Clone(results) })
}

func (f *fakeRepository) ReplaceUsers(ctx context.Context, users []models.User) error {
	return f.replace(repository.CollectionUsers, func() { f.users = slices.Clone(users) })
}

func (f *fakeRepository) replace(c repository.Collection, apply func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr[c]; err != nil {
		return err
	}
	f.writes[c]++
	apply()
	return nil
}

func (f *fakeRepository) setTasks(tasks ...models.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = tasks
}

func (f *fakeRepository) notificationsSnapshot() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.notifications)
}

func (f *fakeRepository) writeCount(c repository.Collection) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[c]
}

func (f *fakeRepository) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}
