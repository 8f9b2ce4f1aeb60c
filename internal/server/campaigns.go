package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	campaigndomain "github.com/smallbiznis/matchhub/internal/campaign/domain"
	chatdomain "github.com/smallbiznis/matchhub/internal/chat/domain"
)

type createCampaignRequest struct {
	Title       string   `json:"title"`
	City        string   `json:"city"`
	Categories  []string `json:"categories"`
	Description string   `json:"description"`
	BudgetType  string   `json:"budget_type"`
	BudgetValue *float64 `json:"budget_value"`
	Deadline    string   `json:"deadline"`
}

type createOfferRequest struct {
	ProposedPrice float64 `json:"proposed_price"`
	Currency      string  `json:"currency"`
	ReadyInDays   int     `json:"ready_in_days"`
	Comment       string  `json:"comment"`
}

func (s *Server) CreateCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	deadline, err := parseOptionalTime(req.Deadline)
	if err != nil {
		AbortWithError(c, newValidationError("deadline", "invalid_deadline", "invalid deadline"))
		return
	}

	resp, err := s.campaignSvc.CreateCampaign(c.Request.Context(), campaigndomain.CreateCampaignRequest{
		RequesterUserID: actorID(c),
		Title:           strings.TrimSpace(req.Title),
		City:            strings.TrimSpace(req.City),
		Categories:      trimAll(req.Categories),
		Description:     strings.TrimSpace(req.Description),
		BudgetType:      campaigndomain.BudgetType(strings.ToLower(strings.TrimSpace(req.BudgetType))),
		BudgetValue:     req.BudgetValue,
		Deadline:        deadline,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetCampaign(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.campaignSvc.GetCampaign(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ListOffers is visible to the campaign owner only.
func (s *Server) ListOffers(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	campaign, err := s.campaignSvc.GetCampaign(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if campaign.RequesterUserID != actorID(c) {
		AbortWithError(c, campaigndomain.ErrForbidden)
		return
	}

	resp, err := s.campaignSvc.ListOffers(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateOffer(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.campaignSvc.CreateOffer(c.Request.Context(), campaigndomain.CreateOfferRequest{
		ProducerUserID: actorID(c),
		CampaignID:     id,
		ProposedPrice:  req.ProposedPrice,
		Currency:       strings.TrimSpace(req.Currency),
		ReadyInDays:    req.ReadyInDays,
		Comment:        strings.TrimSpace(req.Comment),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// SelectOffer selects the offer and opens the chat with its producer. A
// selection that lost a race answers 409 and leaves nothing behind. Repeating
// a won selection whose chat never opened opens it instead.
func (s *Server) SelectOffer(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	ok, err := s.campaignSvc.SelectOffer(ctx, campaigndomain.SelectOfferRequest{
		OfferID:         id,
		RequesterUserID: actorID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var channel chatdomain.Channel
	if ok {
		channel, err = s.chatSvc.OpenForSelection(ctx, id)
	} else {
		channel, ok, err = s.chatSvc.OpenPending(ctx, id, actorID(c))
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !ok {
		AbortWithError(c, ErrSelectionLost)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"selected":   true,
		"chat":       channel,
		"confirm_by": s.chatSvc.Deadline(channel),
	}})
}

func (s *Server) CancelCampaign(c *gin.Context) {
	s.transition(c, s.campaignSvc.Cancel)
}

func (s *Server) StartWork(c *gin.Context) {
	s.transition(c, s.campaignSvc.StartWork)
}

func (s *Server) CompleteCampaign(c *gin.Context) {
	s.transition(c, s.campaignSvc.MarkComplete)
}

func (s *Server) transition(c *gin.Context, fn func(ctx context.Context, userID, campaignID int64) (campaigndomain.Campaign, error)) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := fn(c.Request.Context(), actorID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
