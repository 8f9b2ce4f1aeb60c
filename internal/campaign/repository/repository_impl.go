package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/matchhub/internal/campaign/domain"
	profiledomain "github.com/smallbiznis/matchhub/internal/profile/domain"
	"github.com/smallbiznis/matchhub/pkg/db"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const campaignSelect = `SELECT c.id, c.requester_id, rp.user_id AS requester_user_id, c.title, c.city,
	c.category, c.description, c.budget_type, c.budget_value, c.deadline, c.status,
	c.selected_producer_id, c.requester_completed, c.producer_completed, c.done,
	c.created_at, c.updated_at
	FROM campaigns c
	JOIN requester_profiles rp ON rp.id = c.requester_id`

const offerSelect = `SELECT o.id, o.campaign_id, o.producer_id, pp.user_id AS producer_user_id,
	o.proposed_price, o.currency, o.ready_in_days, o.comment, o.status, o.created_at
	FROM offers o
	JOIN producer_profiles pp ON pp.id = o.producer_id`

func (r *repo) InsertCampaign(ctx context.Context, tx db.Tx, campaign *domain.Campaign) error {
	var budgetValue, deadline any
	if campaign.BudgetValue != nil {
		budgetValue = *campaign.BudgetValue
	}
	if campaign.Deadline != nil {
		deadline = *campaign.Deadline
	}
	id, err := tx.Insert(ctx,
		`INSERT INTO campaigns (requester_id, title, city, category, description, budget_type, budget_value,
		 deadline, status, requester_completed, producer_completed, done, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		campaign.RequesterID,
		campaign.Title,
		campaign.City,
		profiledomain.JoinTerms(campaign.Categories),
		campaign.Description,
		string(campaign.BudgetType),
		budgetValue,
		deadline,
		string(campaign.Status),
		false,
		false,
		false,
		campaign.CreatedAt,
		campaign.UpdatedAt,
	)
	if err != nil {
		return err
	}
	campaign.ID = id

	for _, category := range campaign.Categories {
		if _, err := tx.Insert(ctx,
			`INSERT INTO campaign_categories (campaign_id, category) VALUES (?, ?)`,
			id, category,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindCampaign(ctx context.Context, tx db.Tx, id int64) (*domain.Campaign, error) {
	row, err := tx.QueryRow(ctx, campaignSelect+` WHERE c.id = ?`, id)
	if errors.Is(err, db.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	campaign := scanCampaign(row)
	return &campaign, nil
}

func (r *repo) ListByRequester(ctx context.Context, tx db.Tx, requesterID int64) ([]domain.Campaign, error) {
	rows, err := tx.Query(ctx, campaignSelect+` WHERE c.requester_id = ? ORDER BY c.created_at DESC, c.id DESC`, requesterID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Campaign, 0, len(rows))
	for _, row := range rows {
		out = append(out, scanCampaign(row))
	}
	return out, nil
}

func scanCampaign(row db.Row) domain.Campaign {
	campaign := domain.Campaign{
		ID:                 row.Int64("id"),
		RequesterID:        row.Int64("requester_id"),
		RequesterUserID:    row.Int64("requester_user_id"),
		Title:              row.String("title"),
		City:               row.String("city"),
		Categories:         profiledomain.SplitTerms(row.String("category")),
		Description:        row.String("description"),
		BudgetType:         domain.BudgetType(row.String("budget_type")),
		Status:             domain.Status(row.String("status")),
		RequesterCompleted: row.Bool("requester_completed"),
		ProducerCompleted:  row.Bool("producer_completed"),
		Done:               row.Bool("done"),
		CreatedAt:          row.Time("created_at"),
		UpdatedAt:          row.Time("updated_at"),
	}
	if !row.IsNull("budget_value") {
		v := row.Float64("budget_value")
		campaign.BudgetValue = &v
	}
	if deadline := row.NullTime("deadline"); deadline.Valid {
		t := deadline.Time
		campaign.Deadline = &t
	}
	if selected := row.NullInt64("selected_producer_id"); selected.Valid {
		v := selected.Int64
		campaign.SelectedProducerID = &v
	}
	return campaign
}

func (r *repo) FindParticipants(ctx context.Context, tx db.Tx, campaignID int64) (*domain.Participants, error) {
	row, err := tx.QueryRow(ctx,
		`SELECT c.id, c.title, c.status, rp.user_id AS requester_user_id, c.selected_producer_id,
		 pp.user_id AS producer_user_id, c.requester_completed, c.producer_completed
		 FROM campaigns c
		 JOIN requester_profiles rp ON rp.id = c.requester_id
		 LEFT JOIN producer_profiles pp ON pp.id = c.selected_producer_id
		 WHERE c.id = ?`,
		campaignID,
	)
	if errors.Is(err, db.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.Participants{
		CampaignID:         row.Int64("id"),
		Title:              row.String("title"),
		Status:             domain.Status(row.String("status")),
		RequesterUserID:    row.Int64("requester_user_id"),
		SelectedProducerID: row.Int64("selected_producer_id"),
		ProducerUserID:     row.Int64("producer_user_id"),
		RequesterCompleted: row.Bool("requester_completed"),
		ProducerCompleted:  row.Bool("producer_completed"),
	}, nil
}

func (r *repo) TouchIfOpen(ctx context.Context, tx db.Tx, campaignID int64, now time.Time) (int64, error) {
	return tx.Exec(ctx,
		`UPDATE campaigns SET updated_at = ? WHERE id = ? AND status = ?`,
		now, campaignID, string(domain.StatusOpen),
	)
}

func (r *repo) InsertOffer(ctx context.Context, tx db.Tx, offer *domain.Offer) error {
	id, err := tx.Insert(ctx,
		`INSERT INTO offers (campaign_id, producer_id, proposed_price, currency, ready_in_days, comment, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		offer.CampaignID,
		offer.ProducerID,
		offer.ProposedPrice,
		offer.Currency,
		offer.ReadyInDays,
		offer.Comment,
		string(offer.Status),
		offer.CreatedAt,
	)
	if err != nil {
		return err
	}
	offer.ID = id
	return nil
}

func (r *repo) FindOffer(ctx context.Context, tx db.Tx, id int64) (*domain.Offer, error) {
	row, err := tx.QueryRow(ctx, offerSelect+` WHERE o.id = ?`, id)
	if errors.Is(err, db.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	offer := scanOffer(row)
	return &offer, nil
}

func (r *repo) ListOffers(ctx context.Context, tx db.Tx, campaignID int64) ([]domain.Offer, error) {
	rows, err := tx.Query(ctx, offerSelect+` WHERE o.campaign_id = ? ORDER BY o.created_at, o.id`, campaignID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Offer, 0, len(rows))
	for _, row := range rows {
		out = append(out, scanOffer(row))
	}
	return out, nil
}

func scanOffer(row db.Row) domain.Offer {
	return domain.Offer{
		ID:             row.Int64("id"),
		CampaignID:     row.Int64("campaign_id"),
		ProducerID:     row.Int64("producer_id"),
		ProducerUserID: row.Int64("producer_user_id"),
		ProposedPrice:  row.Float64("proposed_price"),
		Currency:       row.String("currency"),
		ReadyInDays:    row.Int("ready_in_days"),
		Comment:        row.String("comment"),
		Status:         domain.OfferStatus(row.String("status")),
		CreatedAt:      row.Time("created_at"),
	}
}

func (r *repo) HasActiveOffer(ctx context.Context, tx db.Tx, campaignID, producerID int64) (bool, error) {
	row, err := tx.QueryRow(ctx,
		`SELECT COUNT(*) AS n FROM offers WHERE campaign_id = ? AND producer_id = ? AND status = ?`,
		campaignID, producerID, string(domain.OfferStatusActive),
	)
	if err != nil {
		return false, err
	}
	return row.Int64("n") > 0, nil
}

func (r *repo) FindSelectionTarget(ctx context.Context, tx db.Tx, offerID int64) (*domain.SelectionTarget, error) {
	row, err := tx.QueryRow(ctx,
		`SELECT o.id AS offer_id, o.status AS offer_status, o.campaign_id, c.status AS campaign_status,
		 o.producer_id, pp.user_id AS producer_user_id, rp.user_id AS requester_user_id
		 FROM offers o
		 JOIN campaigns c ON c.id = o.campaign_id
		 JOIN producer_profiles pp ON pp.id = o.producer_id
		 JOIN requester_profiles rp ON rp.id = c.requester_id
		 WHERE o.id = ?`,
		offerID,
	)
	if errors.Is(err, db.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.SelectionTarget{
		OfferID:         row.Int64("offer_id"),
		OfferStatus:     domain.OfferStatus(row.String("offer_status")),
		CampaignID:      row.Int64("campaign_id"),
		CampaignStatus:  domain.Status(row.String("campaign_status")),
		ProducerID:      row.Int64("producer_id"),
		ProducerUserID:  row.Int64("producer_user_id"),
		RequesterUserID: row.Int64("requester_user_id"),
	}, nil
}

func (r *repo) MarkOfferSelected(ctx context.Context, tx db.Tx, offerID int64) (int64, error) {
	return tx.Exec(ctx,
		`UPDATE offers SET status = ? WHERE id = ? AND status = ?`,
		string(domain.OfferStatusSelected), offerID, string(domain.OfferStatusActive),
	)
}

func (r *repo) RejectSiblings(ctx context.Context, tx db.Tx, campaignID, winnerOfferID int64) (int64, error) {
	return tx.Exec(ctx,
		`UPDATE offers SET status = ? WHERE campaign_id = ? AND id <> ? AND status = ?`,
		string(domain.OfferStatusRejected), campaignID, winnerOfferID, string(domain.OfferStatusActive),
	)
}

func (r *repo) CompareAndSwapSelection(ctx context.Context, tx db.Tx, campaignID, producerID int64, now time.Time) (int64, error) {
	args := []any{string(domain.StatusProducerSelected), producerID, now, campaignID}
	args = append(args, domain.StatusArgs(domain.SelectableStatuses)...)
	return tx.Exec(ctx,
		`UPDATE campaigns SET status = ?, selected_producer_id = ?, updated_at = ?
		 WHERE id = ? AND status IN (`+db.Placeholders(len(domain.SelectableStatuses))+`)`,
		args...,
	)
}

func (r *repo) ListExpirable(ctx context.Context, tx db.Tx, now time.Time, limit int) ([]int64, error) {
	args := domain.StatusArgs(domain.CancellableStatuses)
	args = append(args, now, limit)
	rows, err := tx.Query(ctx,
		`SELECT id FROM campaigns
		 WHERE status IN (`+db.Placeholders(len(domain.CancellableStatuses))+`)
		   AND deadline IS NOT NULL AND deadline < ?
		 ORDER BY deadline, id
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.Int64("id"))
	}
	return ids, nil
}

func (r *repo) Expire(ctx context.Context, tx db.Tx, campaignID int64, now time.Time) (int64, error) {
	args := []any{string(domain.StatusExpired), now, campaignID}
	args = append(args, domain.StatusArgs(domain.CancellableStatuses)...)
	args = append(args, now)
	return tx.Exec(ctx,
		`UPDATE campaigns SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (`+db.Placeholders(len(domain.CancellableStatuses))+`)
		   AND deadline IS NOT NULL AND deadline < ?`,
		args...,
	)
}

func (r *repo) ActiveOfferProducerUserIDs(ctx context.Context, tx db.Tx, campaignID int64) ([]int64, error) {
	rows, err := tx.Query(ctx,
		`SELECT DISTINCT pp.user_id FROM offers o
		 JOIN producer_profiles pp ON pp.id = o.producer_id
		 WHERE o.campaign_id = ? AND o.status = ?
		 ORDER BY pp.user_id`,
		campaignID, string(domain.OfferStatusActive),
	)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.Int64("user_id"))
	}
	return ids, nil
}

func (r *repo) RejectActiveOffers(ctx context.Context, tx db.Tx, campaignID int64) (int64, error) {
	return tx.Exec(ctx,
		`UPDATE offers SET status = ? WHERE campaign_id = ? AND status = ?`,
		string(domain.OfferStatusRejected), campaignID, string(domain.OfferStatusActive),
	)
}

func (r *repo) Cancel(ctx context.Context, tx db.Tx, campaignID int64, now time.Time) (int64, error) {
	args := []any{string(domain.StatusCancelled), now, campaignID}
	args = append(args, domain.StatusArgs(domain.CancellableStatuses)...)
	return tx.Exec(ctx,
		`UPDATE campaigns SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (`+db.Placeholders(len(domain.CancellableStatuses))+`)`,
		args...,
	)
}

// MarkSideComplete records one party's completion and flips the campaign to
// completed on the first mark. The per-side flag guard makes a repeated mark
// by the same party a no-op.
func (r *repo) MarkSideComplete(ctx context.Context, tx db.Tx, campaignID int64, side domain.Side, now time.Time) (int64, error) {
	column := "requester_completed"
	if side == domain.SideProducer {
		column = "producer_completed"
	}
	args := []any{true, string(domain.StatusCompleted), now, campaignID}
	args = append(args, domain.StatusArgs(domain.CompletableStatuses)...)
	args = append(args, false)
	return tx.Exec(ctx,
		`UPDATE campaigns SET `+column+` = ?, status = ?, updated_at = ?
		 WHERE id = ? AND status IN (`+db.Placeholders(len(domain.CompletableStatuses))+`)
		   AND `+column+` = ?`,
		args...,
	)
}

func (r *repo) MarkDone(ctx context.Context, tx db.Tx, campaignID int64, now time.Time) (int64, error) {
	return tx.Exec(ctx,
		`UPDATE campaigns SET done = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND done = ?
		   AND (SELECT COUNT(*) FROM reviews WHERE campaign_id = ?) >= 2`,
		true, now, campaignID, string(domain.StatusCompleted), false, campaignID,
	)
}

func (r *repo) MarkContactShared(ctx context.Context, tx db.Tx, campaignID int64, now time.Time) (int64, error) {
	return tx.Exec(ctx,
		`UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(domain.StatusContactShared), now, campaignID, string(domain.StatusProducerSelected),
	)
}

func (r *repo) MarkInProgress(ctx context.Context, tx db.Tx, campaignID int64, now time.Time) (int64, error) {
	return tx.Exec(ctx,
		`UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(domain.StatusInProgress), now, campaignID, string(domain.StatusContactShared),
	)
}

func (r *repo) ReleaseSelection(ctx context.Context, tx db.Tx, campaignID, producerID, offerID int64, now time.Time) (int64, error) {
	args := []any{string(domain.StatusOpen), now, campaignID, producerID}
	args = append(args, domain.StatusArgs(domain.ReleasableStatuses)...)
	n, err := tx.Exec(ctx,
		`UPDATE campaigns SET status = ?, selected_producer_id = NULL, updated_at = ?
		 WHERE id = ? AND selected_producer_id = ?
		   AND status IN (`+db.Placeholders(len(domain.ReleasableStatuses))+`)`,
		args...,
	)
	if err != nil || n == 0 {
		return n, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE offers SET status = ? WHERE id = ? AND status = ?`,
		string(domain.OfferStatusRejected), offerID, string(domain.OfferStatusSelected),
	); err != nil {
		return 0, err
	}
	return n, nil
}
