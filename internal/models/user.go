package models

import (
	"slices"

	"gorm.io/datatypes"
)

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// User is read-only here; accounts are managed elsewhere.
type User struct {
	Username      string                      `gorm:"primarykey;type:varchar(191)" json:"username"`
	DisplayName   string                      `gorm:"type:varchar(255)" json:"displayName,omitempty"`
	Role          UserRole                    `gorm:"type:varchar(20);not null" json:"role"`
	ActiveCourses datatypes.JSONSlice[string] `json:"activeCourses"`
}

// InCourse reports whether the user is enrolled in (or teaches) the course.
func (u User) InCourse(course string) bool {
	return course != "" && slices.Contains(u.ActiveCourses, course)
}
