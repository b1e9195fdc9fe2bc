package reconcile

import (
	"time"

	"github.com/yukikurage/classroom-sync/internal/constants"
	"github.com/yukikurage/classroom-sync/internal/models"
)

// PendingInput is everything the pending view of one user depends on.
// User carries the viewer's username, role and active courses.
type PendingInput struct {
	User              models.User
	Tasks             []models.Task
	Notifications     []models.Notification
	Comments          []models.Comment
	EvaluationResults []models.EvaluationResult
	Now               time.Time
	Oracle            CompletionOracle
}

// PendingView is what is still outstanding for one user. Each list keeps the
// order of its source collection.
type PendingView struct {
	PendingTasks        []models.Task
	UnreadComments      []models.Comment
	UnreadNotifications []models.Notification
}

// IsCaughtUp drives the dashboard's empty state.
func (v PendingView) IsCaughtUp() bool {
	return len(v.PendingTasks) == 0 && len(v.UnreadComments) == 0 && len(v.UnreadNotifications) == 0
}

// teacherBadgeTypes are the notification types counted on a teacher's bell.
var teacherBadgeTypes = map[models.NotificationType]struct{}{
	models.NotificationPendingGrading:      {},
	models.NotificationTaskCompleted:       {},
	models.NotificationTaskSubmission:      {},
	models.NotificationEvaluationCompleted: {},
	models.NotificationTeacherComment:      {},
}

// NotificationBadge is the count shown on the notification bell. Students'
// teacher comments are already counted as unread comments.
func (v PendingView) NotificationBadge(role models.UserRole) int {
	count := 0
	for _, n := range v.UnreadNotifications {
		switch role {
		case models.RoleTeacher:
			if _, ok := teacherBadgeTypes[n.Type]; ok {
				count++
			}
		case models.RoleStudent:
			if n.Type != models.NotificationTeacherComment {
				count++
			}
		default:
			count++
		}
	}
	return count
}

// ComputePendingView derives the user's pending tasks, unread comments and
// unread notifications from one snapshot.
func ComputePendingView(in PendingInput) PendingView {
	facts := NewFacts(in.Comments, in.EvaluationResults, in.Oracle)
	username := in.User.Username

	view := PendingView{
		PendingTasks:        []models.Task{},
		UnreadComments:      []models.Comment{},
		UnreadNotifications: []models.Notification{},
	}

	tasksByID := make(map[string]models.Task, len(in.Tasks))
	for _, task := range in.Tasks {
		if !task.Valid() {
			continue
		}
		if _, dup := tasksByID[task.ID]; !dup {
			tasksByID[task.ID] = task
		}
		if isPendingTask(task, in.User, in.Now, facts) {
			view.PendingTasks = append(view.PendingTasks, task)
		}
	}

	for _, c := range in.Comments {
		if c.StudentUsername == username || c.IsReadBy(username) || c.IsSubmission {
			continue
		}
		view.UnreadComments = append(view.UnreadComments, c)
	}

	for _, n := range in.Notifications {
		if isUnreadNotification(n, in.User, tasksByID, facts) {
			view.UnreadNotifications = append(view.UnreadNotifications, n)
		}
	}

	return view
}

func isPendingTask(task models.Task, user models.User, now time.Time, facts *Facts) bool {
	if !IsAssignedTo(task, user) || !IsApproaching(task, now) {
		return false
	}
	if facts.IsGradedFor(task, user.Username) {
		return false
	}
	if IsEvaluationTask(task) && facts.IsEvaluationCompletedBy(task, user.Username) {
		return false
	}
	return true
}

func isUnreadNotification(n models.Notification, user models.User, tasksByID map[string]models.Task, facts *Facts) bool {
	username := user.Username

	targeted := n.Targets(username) ||
		(len(n.TargetUsernames) == 0 && n.TargetUserRole != "" && n.TargetUserRole == user.Role)
	if !targeted || n.IsReadBy(username) {
		return false
	}

	if n.FromUsername == username {
		if user.Role == models.RoleTeacher {
			if n.Type == models.NotificationTeacherComment {
				return false
			}
		} else if n.FromUsername != constants.SystemUsername {
			return false
		}
	}

	if n.Type == models.NotificationNewTask {
		if facts.isGraded(n.TaskID, username) {
			return false
		}
		if notifiesEvaluation(n, tasksByID) && facts.isCompleted(n.TaskID, username) {
			return false
		}
	}

	return true
}

// notifiesEvaluation uses the notification's own task type and falls back to
// classifying the referenced task when the notification predates the field.
func notifiesEvaluation(n models.Notification, tasksByID map[string]models.Task) bool {
	if n.TaskType != "" {
		return n.TaskType == models.TaskTypeEvaluation
	}
	task, ok := tasksByID[n.TaskID]
	return ok && IsEvaluationTask(task)
}
