package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/classroom-sync/internal/dto"
	apierrors "github.com/yukikurage/classroom-sync/internal/errors"
	"github.com/yukikurage/classroom-sync/internal/middleware"
	"github.com/yukikurage/classroom-sync/internal/services"
)

type PendingHandler struct {
	pending *services.PendingService
}

func NewPendingHandler(pending *services.PendingService) *PendingHandler {
	return &PendingHandler{
		pending: pending,
	}
}

// GetPending returns the pending tasks, unread comments and unread
// notifications of the current user
func (h *PendingHandler) GetPending(c *gin.Context) {
	username, exists := middleware.GetUsername(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		return
	}

	view, user := h.pending.PendingView(c.Request.Context(), services.Viewer{
		Username: username,
		Role:     middleware.GetUserRole(c),
	})

	c.JSON(http.StatusOK, dto.NewPendingViewResponse(view, user.Role))
}
