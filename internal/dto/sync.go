package dto

import (
	"github.com/yukikurage/classroom-sync/internal/models"
	"github.com/yukikurage/classroom-sync/internal/reconcile"
)

// PendingCountsDTO carries the badge numbers a dashboard shows
type PendingCountsDTO struct {
	Tasks             int `json:"tasks"`
	Comments          int `json:"comments"`
	Notifications     int `json:"notifications"`
	NotificationBadge int `json:"notificationBadge"`
}

// PendingViewResponse represents the pending view of the session user
type PendingViewResponse struct {
	PendingTasks        []models.Task         `json:"pendingTasks"`
	UnreadComments      []models.Comment      `json:"unreadComments"`
	UnreadNotifications []models.Notification `json:"unreadNotifications"`
	Counts              PendingCountsDTO      `json:"counts"`
	IsCaughtUp          bool                  `json:"isCaughtUp"`
}

// NewPendingViewResponse converts a computed view for the given role
func NewPendingViewResponse(view reconcile.PendingView, role models.UserRole) PendingViewResponse {
	return PendingViewResponse{
		PendingTasks:        view.PendingTasks,
		UnreadComments:      view.UnreadComments,
		UnreadNotifications: view.UnreadNotifications,
		Counts: PendingCountsDTO{
			Tasks:             len(view.PendingTasks),
			Comments:          len(view.UnreadComments),
			Notifications:     len(view.UnreadNotifications),
			NotificationBadge: view.NotificationBadge(role),
		},
		IsCaughtUp: view.IsCaughtUp(),
	}
}

// SyncRunResponse represents the outcome of a forced sync
type SyncRunResponse struct {
	Result reconcile.Result `json:"result"`
}

// SyncConfigRequest represents a runtime sync configuration change
type SyncConfigRequest struct {
	IntervalMs *int64 `json:"intervalMs"`
	Debug      *bool  `json:"debug"`
}

// SyncConfigResponse reports the sync configuration in effect
type SyncConfigResponse struct {
	IsEnabled  bool  `json:"isEnabled"`
	IntervalMs int64 `json:"intervalMs"`
	Debug      bool  `json:"debug"`
}

// SyncTriggerRequest represents an external write signal
type SyncTriggerRequest struct {
	Type       string `json:"type" binding:"required"`
	Collection string `json:"collection"`
}

// SyncTriggerResponse reports whether a run was scheduled
type SyncTriggerResponse struct {
	Scheduled bool   `json:"scheduled"`
	Reason    string `json:"reason,omitempty"`
}
