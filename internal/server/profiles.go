package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	profiledomain "github.com/smallbiznis/matchhub/internal/profile/domain"
)

type createProducerRequest struct {
	Name        string   `json:"name"`
	Locations   []string `json:"locations"`
	Categories  []string `json:"categories"`
	Description string   `json:"description"`
}

type createRequesterRequest struct {
	Name        string `json:"name"`
	City        string `json:"city"`
	Description string `json:"description"`
}

func (s *Server) CreateProducerProfile(c *gin.Context) {
	var req createProducerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.profileSvc.CreateProducerProfile(c.Request.Context(), profiledomain.CreateProducerRequest{
		UserID:      actorID(c),
		Name:        strings.TrimSpace(req.Name),
		Locations:   trimAll(req.Locations),
		Categories:  trimAll(req.Categories),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) CreateRequesterProfile(c *gin.Context) {
	var req createRequesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.profileSvc.CreateRequesterProfile(c.Request.Context(), profiledomain.CreateRequesterRequest{
		UserID:      actorID(c),
		Name:        strings.TrimSpace(req.Name),
		City:        strings.TrimSpace(req.City),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// ListMatchingCampaigns lists open campaigns in the caller's categories.
func (s *Server) ListMatchingCampaigns(c *gin.Context) {
	ctx := c.Request.Context()
	producer, err := s.profileSvc.GetProducerByUser(ctx, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.profileSvc.FindCampaignsForProducer(ctx, producer.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
