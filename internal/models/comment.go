package models

import (
	"slices"

	"gorm.io/datatypes"
)

// Comment doubles as submission (IsSubmission) and grade (IsGrade) record.
// Username is the legacy author field; ingestion copies it into
// StudentUsername and nothing else reads it.
type Comment struct {
	ID              string                      `gorm:"primarykey;type:varchar(191)" json:"id"`
	TaskID          string                      `gorm:"type:varchar(191);index" json:"taskId"`
	StudentUsername string                      `gorm:"type:varchar(191);index" json:"studentUsername"`
	Username        string                      `gorm:"type:varchar(191)" json:"username,omitempty"`
	Comment         string                      `gorm:"type:text" json:"comment"`
	IsSubmission    bool                        `json:"isSubmission"`
	IsGrade         bool                        `json:"isGrade"`
	Grade           *float64                    `json:"grade,omitempty"`
	ReplyToID       string                      `gorm:"type:varchar(191)" json:"replyToId,omitempty"`
	Attachments     datatypes.JSON              `json:"attachments,omitempty"`
	ReadBy          datatypes.JSONSlice[string] `json:"readBy"`
	Timestamp       Timestamp                   `json:"timestamp"`
}

// Valid reports whether the record carries the fields reconciliation keys on.
func (c Comment) Valid() bool {
	return c.ID != "" && c.TaskID != ""
}

func (c Comment) IsReadBy(username string) bool {
	return slices.Contains(c.ReadBy, username)
}
