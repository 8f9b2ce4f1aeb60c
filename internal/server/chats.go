package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	chatdomain "github.com/smallbiznis/matchhub/internal/chat/domain"
)

type chatView struct {
	chatdomain.Channel
	ConfirmBy string `json:"confirm_by"`
	Lapsed    bool   `json:"lapsed"`
}

func (s *Server) GetChat(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	channel, err := s.chatSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if user := actorID(c); user != channel.RequesterUserID && user != channel.ProducerUserID {
		AbortWithError(c, chatdomain.ErrForbidden)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.chatView(channel)})
}

// ConfirmChat records the selected producer's confirmation. It fails once
// the confirmation window has passed, even before the sweep releases the
// selection.
func (s *Server) ConfirmChat(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	channel, err := s.chatSvc.Confirm(c.Request.Context(), id, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.chatView(channel)})
}

func (s *Server) TouchChat(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	channel, err := s.chatSvc.Touch(c.Request.Context(), id, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.chatView(channel)})
}

func (s *Server) chatView(channel chatdomain.Channel) chatView {
	return chatView{
		Channel:   channel,
		ConfirmBy: s.chatSvc.Deadline(channel).Format(time.RFC3339),
		Lapsed:    s.chatSvc.IsLapsed(channel),
	}
}
