package reconcile

import (
	"fmt"
	"slices"
	"time"

	"github.com/yukikurage/classroom-sync/internal/constants"
	"github.com/yukikurage/classroom-sync/internal/models"
)

// Input is one snapshot of the collections taken at run start.
type Input struct {
	Tasks         []models.Task
	Notifications []models.Notification
	Comments      []models.Comment
	Users         []models.User
	Now           time.Time
}

// Result counts what a reconciliation pass changed.
type Result struct {
	GhostsRemoved        int  `json:"ghostsRemoved"`
	NotificationsCreated int  `json:"notificationsCreated"`
	CommentsRemoved      int  `json:"commentsRemoved"`
	DuplicatesRemoved    int  `json:"duplicatesRemoved"`
	HasChanges           bool `json:"hasChanges"`
}

// Output is the repaired notification and comment sets plus the counts.
// Removed and Created carry record ids for logging.
type Output struct {
	Notifications []models.Notification
	Comments      []models.Comment
	Result        Result

	RemovedNotificationIDs []string
	RemovedCommentIDs      []string
	CreatedNotificationIDs []string
}

// Reconcile repairs drift between the live task set and the notification and
// comment collections:
//
//  1. notifications whose task is gone, or which are malformed, are dropped
//  2. every live task without a new_task notification gets one
//  3. comments whose task is gone, or which are malformed, are dropped
//  4. duplicate notifications are collapsed, keeping the first
//
// Reconcile is idempotent: feeding its output back in with the same tasks
// yields HasChanges == false.
func Reconcile(in Input) Output {
	a := analyze(in.Tasks, in.Notifications, in.Comments)

	notifications := a.notifications
	var created []string
	for _, task := range a.uncovered {
		n := synthesizeNewTask(task, in.Users, in.Now)
		notifications = append(notifications, n)
		created = append(created, n.ID)
	}

	result := Result{
		GhostsRemoved:        len(a.ghostIDs),
		NotificationsCreated: len(created),
		CommentsRemoved:      len(a.orphanIDs),
		DuplicatesRemoved:    len(a.duplicateIDs),
	}
	result.HasChanges = result.GhostsRemoved+result.NotificationsCreated+result.CommentsRemoved+result.DuplicatesRemoved > 0

	return Output{
		Notifications:          notifications,
		Comments:               a.comments,
		Result:                 result,
		RemovedNotificationIDs: append(slices.Clone(a.ghostIDs), a.duplicateIDs...),
		RemovedCommentIDs:      a.orphanIDs,
		CreatedNotificationIDs: created,
	}
}

// analysis is the shared detection pass behind Reconcile and CheckConsistency,
// which keeps the two in agreement.
type analysis struct {
	liveTasks     []models.Task
	notifications []models.Notification
	comments      []models.Comment
	uncovered     []models.Task

	ghostIDs     []string
	duplicateIDs []string
	orphanIDs    []string
}

func analyze(tasks []models.Task, notifications []models.Notification, comments []models.Comment) analysis {
	var a analysis

	live := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if !t.Valid() {
			continue
		}
		if _, dup := live[t.ID]; dup {
			continue
		}
		live[t.ID] = struct{}{}
		a.liveTasks = append(a.liveTasks, t)
	}

	a.notifications = make([]models.Notification, 0, len(notifications))
	seen := make(map[string]struct{}, len(notifications))
	covered := make(map[string]struct{}, len(a.liveTasks))
	for _, n := range notifications {
		if _, ok := live[n.TaskID]; !ok || !n.Valid() {
			a.ghostIDs = append(a.ghostIDs, n.ID)
			continue
		}
		key := dedupeKey(n)
		if _, dup := seen[key]; dup {
			a.duplicateIDs = append(a.duplicateIDs, n.ID)
			continue
		}
		seen[key] = struct{}{}
		if n.Type == models.NotificationNewTask {
			covered[n.TaskID] = struct{}{}
		}
		a.notifications = append(a.notifications, n)
	}

	for _, t := range a.liveTasks {
		if _, ok := covered[t.ID]; !ok {
			a.uncovered = append(a.uncovered, t)
		}
	}

	a.comments = make([]models.Comment, 0, len(comments))
	for _, c := range comments {
		if _, ok := live[c.TaskID]; !ok || !c.Valid() {
			a.orphanIDs = append(a.orphanIDs, c.ID)
			continue
		}
		a.comments = append(a.comments, c)
	}

	return a
}

// dedupeKey identifies notifications that say the same thing: one per type
// and task, whoever sent or receives it.
func dedupeKey(n models.Notification) string {
	return string(n.Type) + "\x00" + n.TaskID
}

func synthesizeNewTask(task models.Task, users []models.User, now time.Time) models.Notification {
	taskType := task.TaskType
	if taskType == "" {
		taskType = models.TaskTypeAssignment
	}
	timestamp := task.CreatedAt
	if timestamp.IsZero() {
		timestamp = models.NewTimestamp(now)
	}

	return models.Notification{
		ID:              fmt.Sprintf("%s%s_%d", constants.AutoSyncIDPrefix, task.ID, now.UnixMilli()),
		Type:            models.NotificationNewTask,
		TaskID:          task.ID,
		TaskTitle:       task.Title,
		TaskType:        taskType,
		TargetUserRole:  models.RoleStudent,
		TargetUsernames: studentsFor(task, users),
		FromUsername:    task.AssignedBy,
		FromDisplayName: task.AssignedByName,
		Course:          task.Course,
		Subject:         task.Subject,
		Timestamp:       timestamp,
		Read:            false,
		ReadBy:          []string{},
	}
}

// studentsFor lists the students a task is addressed to, in users order.
func studentsFor(task models.Task, users []models.User) []string {
	targets := []string{}
	for _, u := range users {
		if u.Role != models.RoleStudent {
			continue
		}
		if IsAssignedTo(task, u) {
			targets = append(targets, u.Username)
		}
	}
	return targets
}
