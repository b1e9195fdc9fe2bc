package models

// EvaluationResult is keyed by (TaskID, StudentUsername).
type EvaluationResult struct {
	TaskID          string    `gorm:"primarykey;type:varchar(191)" json:"taskId"`
	StudentUsername string    `gorm:"primarykey;type:varchar(191)" json:"studentUsername"`
	CompletedAt     Timestamp `json:"completedAt"`
	Percentage      *float64  `json:"percentage,omitempty"`
	Score           *float64  `json:"score,omitempty"`
}
