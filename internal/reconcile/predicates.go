// Package reconcile holds the side-effect-free core of the sync engine:
// predicates over the four collections, the repair pass that keeps
// notifications and comments consistent with the live task set, the per-user
// pending view and the read-only consistency report.
//
// Nothing in this package performs I/O or reads the clock; callers pass the
// snapshot and the current time in.
package reconcile

import (
	"slices"
	"strings"
	"time"

	"github.com/yukikurage/classroom-sync/internal/models"
)

// CompletionOracle reports evaluation completion known outside the
// evaluation results collection.
type CompletionOracle interface {
	IsEvaluationCompleted(taskID, username string) bool
}

// CompletionFunc adapts a plain function to CompletionOracle.
type CompletionFunc func(taskID, username string) bool

func (f CompletionFunc) IsEvaluationCompleted(taskID, username string) bool {
	return f(taskID, username)
}

// IsEvaluationTask classifies a task as an evaluation. Besides the explicit
// task type, any title containing "eval" or "evaluación" counts. The title
// rule misfires on titles that merely mention the word; downstream filtering
// depends on it, so it stays until task types are backfilled.
func IsEvaluationTask(task models.Task) bool {
	if task.TaskType == models.TaskTypeEvaluation {
		return true
	}
	title := strings.ToLower(task.Title)
	return strings.Contains(title, "eval") || strings.Contains(title, "evaluación")
}

// IsApproaching is true only for tasks due strictly after now.
func IsApproaching(task models.Task, now time.Time) bool {
	return task.DueDate.After(now)
}

// IsAssignedTo reports whether the task is addressed to the user: by explicit
// student list when the task targets students, by course otherwise.
func IsAssignedTo(task models.Task, user models.User) bool {
	if task.AssignedTo == models.AssignedToStudent {
		return slices.Contains(task.AssignedStudents, user.Username)
	}
	return user.InCourse(task.Course)
}

type studentTask struct {
	taskID   string
	username string
}

// Facts indexes comments and evaluation results so per-student questions are
// answered without rescanning the collections.
type Facts struct {
	graded    map[studentTask]struct{}
	submitted map[studentTask]struct{}
	completed map[studentTask]struct{}
	oracle    CompletionOracle
}

// NewFacts builds the index. oracle may be nil.
func NewFacts(comments []models.Comment, results []models.EvaluationResult, oracle CompletionOracle) *Facts {
	f := &Facts{
		graded:    make(map[studentTask]struct{}),
		submitted: make(map[studentTask]struct{}),
		completed: make(map[studentTask]struct{}, len(results)),
		oracle:    oracle,
	}

	for _, c := range comments {
		if c.TaskID == "" || c.StudentUsername == "" {
			continue
		}
		key := studentTask{taskID: c.TaskID, username: c.StudentUsername}
		if c.IsGrade {
			f.graded[key] = struct{}{}
		}
		if c.IsSubmission {
			f.submitted[key] = struct{}{}
			// A submission carrying a grade is graded too.
			if c.Grade != nil {
				f.graded[key] = struct{}{}
			}
		}
	}

	for _, r := range results {
		if r.TaskID == "" || r.StudentUsername == "" {
			continue
		}
		f.completed[studentTask{taskID: r.TaskID, username: r.StudentUsername}] = struct{}{}
	}

	return f
}

func (f *Facts) IsGradedFor(task models.Task, username string) bool {
	return f.isGraded(task.ID, username)
}

func (f *Facts) HasSubmittedFor(task models.Task, username string) bool {
	_, ok := f.submitted[studentTask{taskID: task.ID, username: username}]
	return ok
}

func (f *Facts) IsEvaluationCompletedBy(task models.Task, username string) bool {
	return f.isCompleted(task.ID, username)
}

func (f *Facts) isGraded(taskID, username string) bool {
	_, ok := f.graded[studentTask{taskID: taskID, username: username}]
	return ok
}

func (f *Facts) isCompleted(taskID, username string) bool {
	if _, ok := f.completed[studentTask{taskID: taskID, username: username}]; ok {
		return true
	}
	return f.oracle != nil && f.oracle.IsEvaluationCompleted(taskID, username)
}
