package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/classroom-sync/internal/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTaskNotification(id, taskID string) models.Notification {
	return models.Notification{ID: id, Type: models.NotificationNewTask, TaskID: taskID, ReadBy: []string{}}
}

func TestReconcile_GhostScenario(t *testing.T) {
	out := Reconcile(Input{
		Notifications: []models.Notification{newTaskNotification("n1", "deleted-task")},
		Now:           testNow,
	})

	assert.Equal(t, 1, out.Result.GhostsRemoved)
	assert.Empty(t, out.Notifications)
	assert.True(t, out.Result.HasChanges)
	assert.Equal(t, []string{"n1"}, out.RemovedNotificationIDs)
}

func TestReconcile_DuplicateScenario(t *testing.T) {
	out := Reconcile(Input{
		Tasks: []models.Task{{ID: "t1", Course: "C1"}},
		Notifications: []models.Notification{
			newTaskNotification("n1", "t1"),
			newTaskNotification("n2", "t1"),
		},
		Now: testNow,
	})

	require.Len(t, out.Notifications, 1)
	assert.Equal(t, "n1", out.Notifications[0].ID)
	assert.Equal(t, 1, out.Result.DuplicatesRemoved)
	assert.Equal(t, 0, out.Result.NotificationsCreated)
}

func TestReconcile_DuplicateScenarioWithoutIDs(t *testing.T) {
	notifications := []models.Notification{
		{Type: models.NotificationNewTask, TaskID: "t1"},
		{Type: models.NotificationNewTask, TaskID: "t1"},
	}

	out := Reconcile(Input{Tasks: []models.Task{{ID: "t1"}}, Notifications: notifications, Now: testNow})

	assert.Len(t, out.Notifications, 1)
	assert.Equal(t, 1, out.Result.DuplicatesRemoved)
	assert.Equal(t, 0, out.Result.GhostsRemoved)
	assert.Equal(t, 0, out.Result.NotificationsCreated)

	models.NormalizeNotifications(notifications)
	out = Reconcile(Input{Tasks: []models.Task{{ID: "t1"}}, Notifications: notifications, Now: testNow})

	require.Len(t, out.Notifications, 1)
	assert.NotEmpty(t, out.Notifications[0].ID)
	assert.Equal(t, 1, out.Result.DuplicatesRemoved)
}

func TestReconcile_DuplicatesKeyedByTypeAndTask(t *testing.T) {
	submission := func(id, from string) models.Notification {
		return models.Notification{
			ID: id, Type: models.NotificationTaskSubmission, TaskID: "t1",
			FromUsername: from, TargetUsernames: []string{"teacher"},
		}
	}
	tasks := []models.Task{{ID: "t1"}}
	notifications := []models.Notification{
		newTaskNotification("n0", "t1"),
		submission("s1", "u1"),
		submission("s2", "u2"),
	}

	out := Reconcile(Input{Tasks: tasks, Notifications: notifications, Now: testNow})

	assert.Equal(t, 1, out.Result.DuplicatesRemoved)
	require.Len(t, out.Notifications, 2)
	assert.Equal(t, "n0", out.Notifications[0].ID)
	assert.Equal(t, "s1", out.Notifications[1].ID)
	assert.Equal(t, []string{"s2"}, out.RemovedNotificationIDs)
	assert.Equal(t, 1, CheckConsistency(tasks, notifications, nil).Issues.DuplicateNotifications)
}

func TestReconcile_CreatesMissingNotification(t *testing.T) {
	created := testNow.Add(-time.Hour)
	users := []models.User{
		{Username: "s1", Role: models.RoleStudent, ActiveCourses: []string{"C1"}},
		{Username: "s2", Role: models.RoleStudent, ActiveCourses: []string{"C2"}},
		{Username: "teach", Role: models.RoleTeacher, ActiveCourses: []string{"C1"}},
		{Username: "s3", Role: models.RoleStudent, ActiveCourses: []string{"C1", "C2"}},
	}
	task := models.Task{
		ID: "t1", Title: "Essay", Course: "C1", Subject: "History",
		AssignedBy: "teach", AssignedByName: "Prof", CreatedAt: models.NewTimestamp(created),
	}

	out := Reconcile(Input{Tasks: []models.Task{task}, Users: users, Now: testNow})

	require.Len(t, out.Notifications, 1)
	n := out.Notifications[0]
	assert.True(t, strings.HasPrefix(n.ID, "auto_sync_t1_"))
	assert.Equal(t, models.NotificationNewTask, n.Type)
	assert.Equal(t, "t1", n.TaskID)
	assert.Equal(t, "Essay", n.TaskTitle)
	assert.Equal(t, models.TaskTypeAssignment, n.TaskType)
	assert.Equal(t, models.RoleStudent, n.TargetUserRole)
	assert.Equal(t, []string{"s1", "s3"}, []string(n.TargetUsernames))
	assert.Equal(t, "teach", n.FromUsername)
	assert.True(t, created.Equal(n.Timestamp.Time))
	assert.False(t, n.Read)
	assert.Empty(t, n.ReadBy)
	assert.Equal(t, 1, out.Result.NotificationsCreated)
	assert.True(t, out.Result.HasChanges)
}

func TestReconcile_CreatesNotificationWithoutStudents(t *testing.T) {
	out := Reconcile(Input{Tasks: []models.Task{{ID: "t1", Course: "empty"}}, Now: testNow})

	require.Len(t, out.Notifications, 1)
	assert.Empty(t, out.Notifications[0].TargetUsernames)
	assert.True(t, testNow.Equal(out.Notifications[0].Timestamp.Time))
}

func TestReconcile_OrphanComments(t *testing.T) {
	out := Reconcile(Input{
		Tasks:         []models.Task{{ID: "t1"}},
		Notifications: []models.Notification{newTaskNotification("n1", "t1")},
		Comments: []models.Comment{
			{ID: "c1", TaskID: "t1"},
			{ID: "c2", TaskID: "gone"},
			{ID: "c3"},
		},
		Now: testNow,
	})

	require.Len(t, out.Comments, 1)
	assert.Equal(t, "c1", out.Comments[0].ID)
	assert.Equal(t, 2, out.Result.CommentsRemoved)
	assert.Equal(t, []string{"c2", "c3"}, out.RemovedCommentIDs)
}

func TestReconcile_MalformedNotificationCountsAsGhost(t *testing.T) {
	out := Reconcile(Input{
		Tasks: []models.Task{{ID: "t1"}},
		Notifications: []models.Notification{
			newTaskNotification("n1", "t1"),
			{ID: "broken", TaskID: "t1"},
		},
		Now: testNow,
	})

	assert.Equal(t, 1, out.Result.GhostsRemoved)
	assert.Len(t, out.Notifications, 1)
}

func TestReconcile_DuplicateTaskIDsCreateOneNotification(t *testing.T) {
	out := Reconcile(Input{
		Tasks: []models.Task{{ID: "t1"}, {ID: "t1"}, {}},
		Now:   testNow,
	})

	assert.Equal(t, 1, out.Result.NotificationsCreated)
	assert.Equal(t, 0, out.Result.DuplicatesRemoved)
}

func TestReconcile_NoChanges(t *testing.T) {
	out := Reconcile(Input{
		Tasks:         []models.Task{{ID: "t1"}},
		Notifications: []models.Notification{newTaskNotification("n1", "t1")},
		Comments:      []models.Comment{{ID: "c1", TaskID: "t1"}},
		Now:           testNow,
	})

	assert.False(t, out.Result.HasChanges)
	assert.Equal(t, Result{}, out.Result)
}

func TestReconcile_Properties(t *testing.T) {
	tasks := []models.Task{
		{ID: "t1", Course: "C1"},
		{ID: "t2", Course: "C2"},
		{ID: "t3", Course: "C1", TaskType: models.TaskTypeEvaluation},
	}
	users := []models.User{{Username: "s1", Role: models.RoleStudent, ActiveCourses: []string{"C1"}}}
	notifications := []models.Notification{
		newTaskNotification("n1", "t1"),
		newTaskNotification("n2", "t1"),
		newTaskNotification("n3", "deleted"),
		{ID: "n4", Type: models.NotificationGradeReceived, TaskID: "gone"},
		{ID: "n5", Type: models.NotificationTeacherComment, TaskID: "t2", TargetUsernames: []string{"s1"}},
	}
	comments := []models.Comment{
		{ID: "c1", TaskID: "t1"},
		{ID: "c2", TaskID: "deleted"},
		{ID: "c3", TaskID: "t3", ReplyToID: "c1"},
	}

	first := Reconcile(Input{Tasks: tasks, Notifications: notifications, Comments: comments, Users: users, Now: testNow})
	require.True(t, first.Result.HasChanges)

	liveIDs := map[string]bool{"t1": true, "t2": true, "t3": true}

	// ghost removal and no orphans
	for _, n := range first.Notifications {
		assert.True(t, liveIDs[n.TaskID], "notification %s references dead task", n.ID)
	}
	for _, c := range first.Comments {
		assert.True(t, liveIDs[c.TaskID], "comment %s references dead task", c.ID)
	}

	// coverage: exactly one new_task per live task
	perTask := map[string]int{}
	for _, n := range first.Notifications {
		if n.Type == models.NotificationNewTask {
			perTask[n.TaskID]++
		}
	}
	for id := range liveIDs {
		assert.Equal(t, 1, perTask[id], "task %s", id)
	}

	// idempotence
	second := Reconcile(Input{
		Tasks: tasks, Notifications: first.Notifications, Comments: first.Comments,
		Users: users, Now: testNow.Add(time.Minute),
	})
	assert.False(t, second.Result.HasChanges)
	assert.Equal(t, first.Notifications, second.Notifications)
	assert.Equal(t, first.Comments, second.Comments)
}

func TestReconcile_AgreesWithConsistencyReport(t *testing.T) {
	tasks := []models.Task{{ID: "t1"}, {ID: "t2"}}
	notifications := []models.Notification{
		newTaskNotification("n1", "t1"),
		newTaskNotification("n2", "t1"),
		newTaskNotification("n3", "ghost"),
	}
	comments := []models.Comment{{ID: "c1", TaskID: "ghost"}}

	out := Reconcile(Input{Tasks: tasks, Notifications: notifications, Comments: comments, Now: testNow})
	report := CheckConsistency(tasks, notifications, comments)

	assert.Equal(t, out.Result.GhostsRemoved, report.Issues.GhostNotifications)
	assert.Equal(t, out.Result.NotificationsCreated, report.Issues.OrphanTasks)
	assert.Equal(t, out.Result.CommentsRemoved, report.Issues.OrphanComments)
	assert.Equal(t, out.Result.DuplicatesRemoved, report.Issues.DuplicateNotifications)
}
