package models

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// The Normalize functions run once when records are read from a store, so
// that nothing downstream has to care about legacy shapes.

func NormalizeTask(t *Task) {
	t.ID = strings.TrimSpace(t.ID)
	t.TaskType = TaskType(strings.ToLower(strings.TrimSpace(string(t.TaskType))))
	if t.AssignedStudents == nil {
		t.AssignedStudents = []string{}
	}
}

func NormalizeNotification(n *Notification) {
	n.ID = strings.TrimSpace(n.ID)
	if n.ID == "" {
		n.ID = derivedNotificationID(*n)
	}
	n.TaskType = TaskType(strings.ToLower(strings.TrimSpace(string(n.TaskType))))
	if n.TargetUsernames == nil {
		n.TargetUsernames = []string{}
	}
	if n.ReadBy == nil {
		n.ReadBy = []string{}
	}
}

func NormalizeComment(c *Comment) {
	if c.StudentUsername == "" && c.Username != "" {
		c.StudentUsername = c.Username
	}
	if c.ReadBy == nil {
		c.ReadBy = []string{}
	}
}

func NormalizeUser(u *User) {
	u.Role = UserRole(strings.ToLower(strings.TrimSpace(string(u.Role))))
	if u.ActiveCourses == nil {
		u.ActiveCourses = []string{}
	}
}

func NormalizeTasks(tasks []Task) {
	for i := range tasks {
		NormalizeTask(&tasks[i])
	}
}

func NormalizeNotifications(notifications []Notification) {
	for i := range notifications {
		NormalizeNotification(&notifications[i])
	}
}

func NormalizeComments(comments []Comment) {
	for i := range comments {
		NormalizeComment(&comments[i])
	}
}

func NormalizeUsers(users []User) {
	for i := range users {
		NormalizeUser(&users[i])
	}
}

// derivedNotificationID names a notification stored without an id. The id is
// a hash of its content, so it is stable across reads and identical records
// collapse to one id.
func derivedNotificationID(n Notification) string {
	targets := slices.Clone([]string(n.TargetUsernames))
	slices.Sort(targets)
	content := strings.Join([]string{
		string(n.Type),
		n.TaskID,
		n.FromUsername,
		strings.Join(targets, ","),
		n.Timestamp.UTC().Format(jsTimeLayout),
	}, "\x00")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(content)).String()
}
