package repository

import (
	"context"
	"fmt"

	"github.com/yukikurage/classroom-sync/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 200

// byTimestamp lets the dialect quote the column, which is a keyword in SQL.
var byTimestamp = clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}

// GormCollectionRepository is a GORM implementation of CollectionRepository
type GormCollectionRepository struct {
	db *gorm.DB
}

// NewCollectionRepository creates a new CollectionRepository backed by GORM
func NewCollectionRepository(db *gorm.DB) CollectionRepository {
	return &GormCollectionRepository{db: db}
}

// ListTasks reads all tasks in creation order
func (r *GormCollectionRepository) ListTasks(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, readError(CollectionTasks, err)
	}
	models.NormalizeTasks(tasks)
	return tasks, nil
}

// ListNotifications reads all notifications in timestamp order
func (r *GormCollectionRepository) ListNotifications(ctx context.Context) ([]models.Notification, error) {
	var notifications []models.Notification
	if err := r.db.WithContext(ctx).Order(byTimestamp).Order("id ASC").Find(&notifications).Error; err != nil {
		return nil, readError(CollectionNotifications, err)
	}
	models.NormalizeNotifications(notifications)
	return notifications, nil
}

// ListComments reads all comments in timestamp order
func (r *GormCollectionRepository) ListComments(ctx context.Context) ([]models.Comment, error) {
	var comments []models.Comment
	if err := r.db.WithContext(ctx).Order(byTimestamp).Order("id ASC").Find(&comments).Error; err != nil {
		return nil, readError(CollectionComments, err)
	}
	models.NormalizeComments(comments)
	return comments, nil
}

// ListEvaluationResults reads all evaluation results
func (r *GormCollectionRepository) ListEvaluationResults(ctx context.Context) ([]models.EvaluationResult, error) {
	var results []models.EvaluationResult
	if err := r.db.WithContext(ctx).Order("completed_at ASC").Find(&results).Error; err != nil {
		return nil, readError(CollectionEvaluationResults, err)
	}
	return results, nil
}

// ListUsers reads all users
func (r *GormCollectionRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, readError(CollectionUsers, err)
	}
	models.NormalizeUsers(users)
	return users, nil
}

// ReplaceTasks overwrites the tasks table
func (r *GormCollectionRepository) ReplaceTasks(ctx context.Context, tasks []models.Task) error {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return writeError(CollectionTasks, r.replace(ctx, &models.Task{}, "id", ids, tasks))
}

// ReplaceNotifications overwrites the notifications table
func (r *GormCollectionRepository) ReplaceNotifications(ctx context.Context, notifications []models.Notification) error {
	ids := make([]string, len(notifications))
	for i, n := range notifications {
		ids[i] = n.ID
	}
	return writeError(CollectionNotifications, r.replace(ctx, &models.Notification{}, "id", ids, notifications))
}

// ReplaceComments overwrites the comments table
func (r *GormCollectionRepository) ReplaceComments(ctx context.Context, comments []models.Comment) error {
	ids := make([]string, len(comments))
	for i, c := range comments {
		ids[i] = c.ID
	}
	return writeError(CollectionComments, r.replace(ctx, &models.Comment{}, "id", ids, comments))
}

// ReplaceEvaluationResults overwrites the evaluation results table
func (r *GormCollectionRepository) ReplaceEvaluationResults(ctx context.Context, results []models.EvaluationResult) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.EvaluationResult{}).Error; err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
		return tx.CreateInBatches(results, insertBatchSize).Error
	})
	return writeError(CollectionEvaluationResults, err)
}

// ReplaceUsers overwrites the users table
func (r *GormCollectionRepository) ReplaceUsers(ctx context.Context, users []models.User) error {
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Username
	}
	return writeError(CollectionUsers, r.replace(ctx, &models.User{}, "username", names, users))
}

// replace deletes rows whose key is not in keys and upserts records, in one
// transaction so a failed write leaves the previous contents in place.
func (r *GormCollectionRepository) replace(ctx context.Context, model interface{}, keyColumn string, keys []string, records interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Where("1 = 1")
		if len(keys) > 0 {
			del = tx.Where(keyColumn+" NOT IN ?", keys)
		}
		if err := del.Delete(model).Error; err != nil {
			return err
		}

		if len(keys) == 0 {
			return nil
		}

		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(records, insertBatchSize).Error
	})
}

func readError(c Collection, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCollectionRead, c, err)
}

func writeError(c Collection, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrCollectionWrite, c, err)
}
