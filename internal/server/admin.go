package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/matchhub/internal/audit/domain"
	profiledomain "github.com/smallbiznis/matchhub/internal/profile/domain"
	"go.uber.org/zap"
)

type banUserRequest struct {
	Reason string `json:"reason"`
}

// RequireCapability resolves the actor and checks object/action against the
// moderation policy before the handler runs.
func (s *Server) RequireCapability(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		user, err := s.profileSvc.GetUser(ctx, actorID(c))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.authzSvc.Authorize(ctx, user, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) BanUser(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req banUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.profileSvc.Ban(c.Request.Context(), profiledomain.BanRequest{
		UserID:  id,
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: actorID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditModeration(c.Request.Context(), actorID(c), "user.banned", id, map[string]any{"reason": resp.BanReason})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UnbanUser(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.profileSvc.Unban(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditModeration(c.Request.Context(), actorID(c), "user.unbanned", id, nil)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteUser(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.profileSvc.DeleteUser(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditModeration(c.Request.Context(), actorID(c), "user.deleted", id, nil)

	c.Status(http.StatusNoContent)
}

func (s *Server) ListCampaignLedger(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.ledgerSvc.ListByCampaign(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	if s.auditSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	startAt, err := parseOptionalTime(c.Query("start_at"))
	if err != nil {
		AbortWithError(c, newValidationError("start_at", "invalid_start_at", "invalid start_at"))
		return
	}
	endAt, err := parseOptionalTime(c.Query("end_at"))
	if err != nil {
		AbortWithError(c, newValidationError("end_at", "invalid_end_at", "invalid end_at"))
		return
	}
	before, err := optionalInt(c.Query("before"))
	if err != nil {
		AbortWithError(c, newValidationError("before", "invalid_before", "invalid before"))
		return
	}
	pageSize, err := optionalInt(c.Query("page_size"))
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Action:     strings.TrimSpace(c.Query("action")),
		TargetType: strings.TrimSpace(c.Query("target_type")),
		TargetID:   strings.TrimSpace(c.Query("target_id")),
		ActorType:  strings.TrimSpace(c.Query("actor_type")),
		StartAt:    startAt,
		EndAt:      endAt,
		BeforeID:   before,
		PageSize:   int(pageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) auditModeration(ctx context.Context, actor int64, action string, target int64, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, &actor, action, "user", strconv.FormatInt(target, 10), metadata); err != nil {
		s.log.Warn("moderation audit failed", zap.String("action", action), zap.Error(err))
	}
}

func optionalInt(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || parsed < 0 {
		return 0, ErrInvalidRequest
	}
	return parsed, nil
}
