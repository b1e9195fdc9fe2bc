package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yukikurage/classroom-sync/internal/models"
)

// Collection names the stored collections.
type Collection string

const (
	CollectionTasks             Collection = "tasks"
	CollectionNotifications     Collection = "notifications"
	CollectionComments          Collection = "comments"
	CollectionEvaluationResults Collection = "evaluationResults"
	CollectionUsers             Collection = "users"
)

var (
	// ErrCollectionRead is returned when a whole collection cannot be read.
	ErrCollectionRead = errors.New("collection repository: read failed")
	// ErrCollectionWrite is returned when a whole collection cannot be written.
	ErrCollectionWrite = errors.New("collection repository: write failed")
	// ErrUnknownCollection is returned for a collection name outside the set.
	ErrUnknownCollection = errors.New("collection repository: unknown collection")
)

// ParseCollection maps a collection name or its storage key to a Collection.
func ParseCollection(name string) (Collection, error) {
	for c, key := range storageKeys {
		if name == string(c) || name == key {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCollection, name)
}

// CollectionRepository defines typed access to the named collections. It
// holds no logic: records come back normalized and in stored order, and the
// Replace methods overwrite a whole collection.
type CollectionRepository interface {
	// ListTasks reads the tasks collection
	ListTasks(ctx context.Context) ([]models.Task, error)

	// ListNotifications reads the notifications collection
	ListNotifications(ctx context.Context) ([]models.Notification, error)

	// ListComments reads the comments collection
	ListComments(ctx context.Context) ([]models.Comment, error)

	// ListEvaluationResults reads the evaluation results collection
	ListEvaluationResults(ctx context.Context) ([]models.EvaluationResult, error)

	// ListUsers reads the users collection
	ListUsers(ctx context.Context) ([]models.User, error)

	// ReplaceTasks overwrites the tasks collection
	ReplaceTasks(ctx context.Context, tasks []models.Task) error

	// ReplaceNotifications overwrites the notifications collection
	ReplaceNotifications(ctx context.Context, notifications []models.Notification) error

	// ReplaceComments overwrites the comments collection
	ReplaceComments(ctx context.Context, comments []models.Comment) error

	// ReplaceEvaluationResults overwrites the evaluation results collection
	ReplaceEvaluationResults(ctx context.Context, results []models.EvaluationResult) error

	// ReplaceUsers overwrites the users collection
	ReplaceUsers(ctx context.Context, users []models.User) error
}

// ChangeWatcher is implemented by repositories that can report writes made
// by other processes.
type ChangeWatcher interface {
	// Watch calls onChange for every external change until ctx is done.
	Watch(ctx context.Context, onChange func(Collection)) error
}
