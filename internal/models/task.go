package models

import "gorm.io/datatypes"

type TaskType string

const (
	TaskTypeAssignment TaskType = "assignment"
	TaskTypeEvaluation TaskType = "evaluation"
)

// AssignmentScope says who a task is addressed to.
type AssignmentScope string

const (
	AssignedToCourse  AssignmentScope = "course"
	AssignedToStudent AssignmentScope = "student"
)

// Task is created by a teacher and only ever deleted afterwards; per-student
// progress lives in comments and evaluation results, never on the task.
type Task struct {
	ID               string                      `gorm:"primarykey;type:varchar(191)" json:"id"`
	Title            string                      `gorm:"type:varchar(255)" json:"title"`
	Description      string                      `gorm:"type:text" json:"description,omitempty"`
	Course           string                      `gorm:"type:varchar(191);index" json:"course"`
	Subject          string                      `gorm:"type:varchar(191)" json:"subject"`
	TaskType         TaskType                    `gorm:"type:varchar(20)" json:"taskType,omitempty"`
	DueDate          Timestamp                   `json:"dueDate"`
	AssignedBy       string                      `gorm:"type:varchar(191)" json:"assignedBy"`
	AssignedByName   string                      `gorm:"type:varchar(255)" json:"assignedByName,omitempty"`
	AssignedTo       AssignmentScope             `gorm:"type:varchar(20)" json:"assignedTo,omitempty"`
	AssignedStudents datatypes.JSONSlice[string] `json:"assignedStudents,omitempty"`
	CreatedAt        Timestamp                   `gorm:"autoCreateTime:false" json:"createdAt"`
}

// Valid reports whether the record carries the fields reconciliation keys on.
func (t Task) Valid() bool {
	return t.ID != ""
}
