package repository

import (
	"context"

	"github.com/smallbiznis/matchhub/internal/ledger/domain"
	"github.com/smallbiznis/matchhub/pkg/db"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const columns = `id, user_id, campaign_id, offer_id, type, amount, currency, status, created_at`

func (r *repo) Insert(ctx context.Context, tx db.Tx, txn *domain.Transaction) error {
	id, err := tx.Insert(ctx,
		`INSERT INTO transactions (user_id, campaign_id, offer_id, type, amount, currency, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.UserID,
		nullable(txn.CampaignID),
		nullable(txn.OfferID),
		string(txn.Type),
		txn.Amount,
		txn.Currency,
		string(txn.Status),
		txn.CreatedAt,
	)
	if err != nil {
		return err
	}
	txn.ID = id
	return nil
}

func (r *repo) ListByCampaign(ctx context.Context, tx db.Tx, campaignID int64) ([]domain.Transaction, error) {
	return r.list(ctx, tx, `SELECT `+columns+` FROM transactions WHERE campaign_id = ? ORDER BY id`, campaignID)
}

func (r *repo) ListByUser(ctx context.Context, tx db.Tx, userID int64) ([]domain.Transaction, error) {
	return r.list(ctx, tx, `SELECT `+columns+` FROM transactions WHERE user_id = ? ORDER BY id`, userID)
}

func (r *repo) list(ctx context.Context, tx db.Tx, stmt string, args ...any) ([]domain.Transaction, error) {
	rows, err := tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		txn := domain.Transaction{
			ID:        row.Int64("id"),
			UserID:    row.Int64("user_id"),
			Type:      domain.TransactionType(row.String("type")),
			Amount:    row.Float64("amount"),
			Currency:  row.String("currency"),
			Status:    domain.TransactionStatus(row.String("status")),
			CreatedAt: row.Time("created_at"),
		}
		if v := row.NullInt64("campaign_id"); v.Valid {
			id := v.Int64
			txn.CampaignID = &id
		}
		if v := row.NullInt64("offer_id"); v.Valid {
			id := v.Int64
			txn.OfferID = &id
		}
		out = append(out, txn)
	}
	return out, nil
}

func nullable(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
