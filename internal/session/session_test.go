package session

import (
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/matchhub/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeVariants(t *testing.T) {
	budget := 150.0
	cases := []State{
		Idle{},
		DraftingCampaign{Step: StepBudget, Title: "Promo", Categories: []string{"video"}, BudgetType: "fixed", BudgetValue: &budget},
		DraftingOffer{CampaignID: 7, ProposedPrice: 90, Currency: "USD"},
		UploadingPhoto{CampaignID: 7, PhotoRefs: []string{"f1"}, Limit: 5},
	}
	for _, want := range cases {
		t.Run(string(want.Kind()), func(t *testing.T) {
			raw, err := Encode(want)
			require.NoError(t, err)
			got, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"awaiting_payment"}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	st, err := Decode([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, Idle{}, st)
}

func TestCampaignStepsAdvance(t *testing.T) {
	d := DraftingCampaign{Step: StepTitle}
	for i := 0; i < len(campaignSteps)+2; i++ {
		d = d.Next()
	}
	assert.Equal(t, StepReview, d.Step)
}

func TestUploadingPhotoLimit(t *testing.T) {
	u := UploadingPhoto{Limit: 2}
	u, err := u.Add("a")
	require.NoError(t, err)
	u, err = u.Add("b")
	require.NoError(t, err)
	_, err = u.Add("c")
	assert.ErrorIs(t, err, ErrPhotoLimit)
	assert.Equal(t, []string{"a", "b"}, u.PhotoRefs)
}

func TestStoreExpiresToIdle(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	s := NewStore(clk, func() time.Duration { return time.Hour }, nil)

	assert.Equal(t, Idle{}, s.Get(1))
	s.Put(1, DraftingOffer{CampaignID: 3})
	assert.Equal(t, DraftingOffer{CampaignID: 3}, s.Get(1))
	assert.Equal(t, Idle{}, s.Get(2))

	clk.Advance(time.Hour)
	assert.Equal(t, Idle{}, s.Get(1))

	s.Put(1, DraftingOffer{CampaignID: 4})
	s.Put(1, Idle{})
	assert.Equal(t, Idle{}, s.Get(1))
}

func TestStoreConcurrentUsers(t *testing.T) {
	s := NewStore(clock.NewSystemClock(), func() time.Duration { return time.Hour }, nil)
	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.Put(id, DraftingOffer{CampaignID: id})
			assert.Equal(t, DraftingOffer{CampaignID: id}, s.Get(id))
		}(i)
	}
	wg.Wait()
}
