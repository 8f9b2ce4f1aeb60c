package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/matchhub/internal/observability/context"
)

const (
	HeaderUserID     = "X-User-ID"
	contextUserIDKey = "user_id"
)

// ActorRequired resolves the X-User-ID header, set by the trusted UI layer,
// to an internal user id. Unknown external ids get a user row on first use.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		external := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if external == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user, err := s.profileSvc.EnsureUser(c.Request.Context(), external)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActorID(c.Request.Context(), strconv.FormatInt(user.ID, 10))
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserIDKey, user.ID)
		c.Next()
	}
}

func actorID(c *gin.Context) int64 {
	return c.GetInt64(contextUserIDKey)
}
