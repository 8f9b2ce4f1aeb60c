package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/matchhub/internal/session"
)

const maxSessionBody = 64 << 10

func (s *Server) GetSession(c *gin.Context) {
	raw, err := session.Encode(s.sessions.Get(actorID(c)))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// PutSession replaces the caller's conversation state with the posted
// {"kind": ..., "data": ...} envelope.
func (s *Server) PutSession(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSessionBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	st, err := session.Decode(raw)
	if err != nil {
		if !errors.Is(err, session.ErrUnknownKind) {
			err = invalidRequestError()
		}
		AbortWithError(c, err)
		return
	}
	s.sessions.Put(actorID(c), st)

	c.Status(http.StatusNoContent)
}

func (s *Server) ClearSession(c *gin.Context) {
	s.sessions.Clear(actorID(c))
	c.Status(http.StatusNoContent)
}
