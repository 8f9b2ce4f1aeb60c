package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	notificationdomain "github.com/smallbiznis/matchhub/internal/notification/domain"
)

// PeekNotifications returns the unseen count without clearing it.
func (s *Server) PeekNotifications(c *gin.Context) {
	kind, err := notificationdomain.ParseKind(c.Param("kind"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	count, err := s.notificationSvc.Peek(c.Request.Context(), actorID(c), kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"kind": kind, "unseen_count": count}})
}

// ResetNotifications is called when the user opens the matching list.
func (s *Server) ResetNotifications(c *gin.Context) {
	kind, err := notificationdomain.ParseKind(c.Param("kind"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.notificationSvc.Reset(c.Request.Context(), actorID(c), kind); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
