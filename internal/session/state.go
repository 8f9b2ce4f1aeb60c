package session

import (
	"errors"
	"time"
)

// Kind tags a State variant in its encoded form.
type Kind string

const (
	KindIdle             Kind = "idle"
	KindDraftingCampaign Kind = "drafting_campaign"
	KindDraftingOffer    Kind = "drafting_offer"
	KindUploadingPhoto   Kind = "uploading_photo"
)

// State is what a user is in the middle of. Exactly one variant applies at a
// time; the set of variants is closed to this package.
type State interface {
	Kind() Kind
	state()
}

type Idle struct{}

// CampaignStep is the next field the campaign wizard asks for.
type CampaignStep string

const (
	StepTitle       CampaignStep = "title"
	StepCity        CampaignStep = "city"
	StepCategories  CampaignStep = "categories"
	StepDescription CampaignStep = "description"
	StepBudget      CampaignStep = "budget"
	StepDeadline    CampaignStep = "deadline"
	StepReview      CampaignStep = "review"
)

var campaignSteps = []CampaignStep{StepTitle, StepCity, StepCategories, StepDescription, StepBudget, StepDeadline, StepReview}

type DraftingCampaign struct {
	Step        CampaignStep `json:"step"`
	Title       string       `json:"title,omitempty"`
	City        string       `json:"city,omitempty"`
	Categories  []string     `json:"categories,omitempty"`
	Description string       `json:"description,omitempty"`
	BudgetType  string       `json:"budget_type,omitempty"`
	BudgetValue *float64     `json:"budget_value,omitempty"`
	Deadline    *time.Time   `json:"deadline,omitempty"`
}

// Next returns the draft advanced to the following step. The last step
// stays put.
func (d DraftingCampaign) Next() DraftingCampaign {
	for i, step := range campaignSteps {
		if step == d.Step && i+1 < len(campaignSteps) {
			d.Step = campaignSteps[i+1]
			return d
		}
	}
	return d
}

type DraftingOffer struct {
	CampaignID    int64   `json:"campaign_id"`
	ProposedPrice float64 `json:"proposed_price,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	ReadyInDays   int     `json:"ready_in_days,omitempty"`
	Comment       string  `json:"comment,omitempty"`
}

type UploadingPhoto struct {
	CampaignID int64    `json:"campaign_id"`
	PhotoRefs  []string `json:"photo_refs,omitempty"`
	Limit      int      `json:"limit"`
}

var ErrPhotoLimit = errors.New("photo_limit_reached")

// Add appends ref, refusing once Limit photos are held.
func (u UploadingPhoto) Add(ref string) (UploadingPhoto, error) {
	if u.Limit > 0 && len(u.PhotoRefs) >= u.Limit {
		return u, ErrPhotoLimit
	}
	u.PhotoRefs = append(append([]string(nil), u.PhotoRefs...), ref)
	return u, nil
}

func (Idle) Kind() Kind             { return KindIdle }
func (DraftingCampaign) Kind() Kind { return KindDraftingCampaign }
func (DraftingOffer) Kind() Kind    { return KindDraftingOffer }
func (UploadingPhoto) Kind() Kind   { return KindUploadingPhoto }

func (Idle) state()             {}
func (DraftingCampaign) state() {}
func (DraftingOffer) state()    {}
func (UploadingPhoto) state()   {}
