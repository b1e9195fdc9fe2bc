package reconcile

import (
	"math"

	"github.com/yukikurage/classroom-sync/internal/models"
)

// Issues counts drift by category. Each count matches what Reconcile would
// repair on the same snapshot.
type Issues struct {
	GhostNotifications     int `json:"ghostNotifications"`
	OrphanTasks            int `json:"orphanTasks"`
	OrphanComments         int `json:"orphanComments"`
	DuplicateNotifications int `json:"duplicateNotifications"`
}

func (i Issues) Total() int {
	return i.GhostNotifications + i.OrphanTasks + i.OrphanComments + i.DuplicateNotifications
}

type ConsistencyReport struct {
	TasksCount         int    `json:"tasksCount"`
	NotificationsCount int    `json:"notificationsCount"`
	CommentsCount      int    `json:"commentsCount"`
	Issues             Issues `json:"issues"`
	HealthScore        int    `json:"healthScore"`
}

// CheckConsistency is the read-only diagnostic counterpart of Reconcile.
func CheckConsistency(tasks []models.Task, notifications []models.Notification, comments []models.Comment) ConsistencyReport {
	a := analyze(tasks, notifications, comments)

	issues := Issues{
		GhostNotifications:     len(a.ghostIDs),
		OrphanTasks:            len(a.uncovered),
		OrphanComments:         len(a.orphanIDs),
		DuplicateNotifications: len(a.duplicateIDs),
	}
	total := len(tasks) + len(notifications) + len(comments)

	return ConsistencyReport{
		TasksCount:         len(tasks),
		NotificationsCount: len(notifications),
		CommentsCount:      len(comments),
		Issues:             issues,
		HealthScore:        HealthScore(total, issues.Total()),
	}
}

// HealthScore is the share of items without problems, as a 0..100 integer.
// An empty system scores 100.
func HealthScore(totalItems, problemItems int) int {
	if totalItems == 0 {
		return 100
	}
	score := int(math.Round((1 - float64(problemItems)/float64(totalItems)) * 100))
	return max(0, score)
}
