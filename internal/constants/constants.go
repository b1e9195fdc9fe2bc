package constants

// Session and gin context keys.
const (
	ContextKeyUsername = "username"
	ContextKeyUserRole = "user_role"
	SessionName        = "classroom_session"
)

// Storage keys of the named collections. The file store uses them as file
// names so data exported from the browser client can be dropped in as is.
const (
	StorageKeyTasks             = "smart-student-tasks"
	StorageKeyNotifications     = "smart-student-task-notifications"
	StorageKeyComments          = "smart-student-task-comments"
	StorageKeyEvaluationResults = "smart-student-evaluation-results"
	StorageKeyUsers             = "smart-student-users"
)

const (
	// MaxSyncErrors caps the sync error log kept in memory.
	MaxSyncErrors = 50

	// SystemUsername marks notifications produced by the platform itself.
	SystemUsername = "system"

	// AutoSyncIDPrefix prefixes notification ids synthesized by reconciliation.
	AutoSyncIDPrefix = "auto_sync_"
)
