package models

import (
	"slices"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotificationNewTask             NotificationType = "new_task"
	NotificationTaskSubmission      NotificationType = "task_submission"
	NotificationTaskCompleted       NotificationType = "task_completed"
	NotificationTeacherComment      NotificationType = "teacher_comment"
	NotificationGradeReceived       NotificationType = "grade_received"
	NotificationPendingGrading      NotificationType = "pending_grading"
	NotificationEvaluationCompleted NotificationType = "evaluation_completed"
)

// Notification references its task by id only; the task may be gone.
// Read state is tracked twice: the legacy global Read flag and the per-user
// ReadBy set. Either one marks the notification as read.
type Notification struct {
	ID              string                      `gorm:"primarykey;type:varchar(191)" json:"id"`
	Type            NotificationType            `gorm:"type:varchar(40);index:idx_notifications_type_task" json:"type"`
	TaskID          string                      `gorm:"type:varchar(191);index:idx_notifications_type_task" json:"taskId"`
	TaskTitle       string                      `gorm:"type:varchar(255)" json:"taskTitle"`
	TaskType        TaskType                    `gorm:"type:varchar(20)" json:"taskType,omitempty"`
	TargetUserRole  UserRole                    `gorm:"type:varchar(20)" json:"targetUserRole"`
	TargetUsernames datatypes.JSONSlice[string] `json:"targetUsernames"`
	FromUsername    string                      `gorm:"type:varchar(191)" json:"fromUsername,omitempty"`
	FromDisplayName string                      `gorm:"type:varchar(255)" json:"fromDisplayName,omitempty"`
	Course          string                      `gorm:"type:varchar(191)" json:"course,omitempty"`
	Subject         string                      `gorm:"type:varchar(191)" json:"subject,omitempty"`
	Grade           *float64                    `json:"grade,omitempty"`
	Timestamp       Timestamp                   `json:"timestamp"`
	Read            bool                        `json:"read"`
	ReadBy          datatypes.JSONSlice[string] `json:"readBy"`
}

// Valid reports whether the record carries the fields reconciliation keys on.
// The id is not one of them: id-less records get one at ingestion.
func (n Notification) Valid() bool {
	return n.Type != "" && n.TaskID != ""
}

// IsReadBy honors both read-tracking conventions.
func (n Notification) IsReadBy(username string) bool {
	return n.Read || slices.Contains(n.ReadBy, username)
}

// Targets reports whether username is listed as a recipient.
func (n Notification) Targets(username string) bool {
	return slices.Contains(n.TargetUsernames, username)
}
