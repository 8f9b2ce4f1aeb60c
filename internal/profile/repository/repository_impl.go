package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/matchhub/internal/profile/domain"
	"github.com/smallbiznis/matchhub/pkg/db"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const userColumns = `id, external_id, role, is_banned, ban_reason, banned_at, banned_by, created_at`

const producerColumns = `p.id, p.user_id, p.name, p.locations, p.categories, p.description, p.rating, p.rating_count, p.created_at`

const requesterColumns = `id, user_id, name, city, description, rating, rating_count, created_at`

func (r *repo) InsertUser(ctx context.Context, tx db.Tx, user *domain.User) error {
	id, err := tx.Insert(ctx,
		`INSERT INTO users (external_id, role, is_banned, created_at) VALUES (?, ?, ?, ?)`,
		user.ExternalID,
		user.Role,
		false,
		user.CreatedAt,
	)
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

func (r *repo) FindUserByExternalID(ctx context.Context, tx db.Tx, externalID string) (*domain.User, error) {
	return r.findUser(ctx, tx, `SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID)
}

func (r *repo) FindUser(ctx context.Context, tx db.Tx, id int64) (*domain.User, error) {
	return r.findUser(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *repo) findUser(ctx context.Context, tx db.Tx, stmt string, args ...any) (*domain.User, error) {
	row, err := tx.QueryRow(ctx, stmt, args...)
	if errors.Is(err, db.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user := domain.User{
		ID:         row.Int64("id"),
		ExternalID: row.String("external_id"),
		Role:       row.String("role"),
		IsBanned:   row.Bool("is_banned"),
		BanReason:  row.String("ban_reason"),
		CreatedAt:  row.Time("created_at"),
	}
	if at := row.NullTime("banned_at"); at.Valid {
		t := at.Time
		user.BannedAt = &t
	}
	if by := row.NullInt64("banned_by"); by.Valid {
		v := by.Int64
		user.BannedBy = &v
	}
	return &user, nil
}

func (r *repo) SetBan(ctx context.Context, tx db.Tx, userID int64, banned bool, reason string, at *time.Time, by *int64) (int64, error) {
	var reasonArg any
	if banned {
		reasonArg = reason
	}
	var atArg, byArg any
	if at != nil {
		atArg = *at
	}
	if by != nil {
		byArg = *by
	}
	return tx.Exec(ctx,
		`UPDATE users SET is_banned = ?, ban_reason = ?, banned_at = ?, banned_by = ? WHERE id = ?`,
		banned, reasonArg, atArg, byArg, userID,
	)
}

func (r *repo) DeleteUser(ctx context.Context, tx db.Tx, userID int64) (int64, error) {
	return tx.Exec(ctx, `DELETE FROM users WHERE id = ?`, userID)
}

func (r *repo) InsertProducer(ctx context.Context, tx db.Tx, profile *domain.ProducerProfile) error {
	id, err := tx.Insert(ctx,
		`INSERT INTO producer_profiles (user_id, name, locations, categories, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		profile.UserID,
		profile.Name,
		domain.JoinTerms(profile.Locations),
		domain.JoinTerms(profile.Categories),
		profile.Description,
		profile.CreatedAt,
	)
	if err != nil {
		return err
	}
	profile.ID = id

	for _, category := range profile.Categories {
		if _, err := tx.Insert(ctx,
			`INSERT INTO producer_categories (producer_id, category) VALUES (?, ?)`,
			id, category,
		); err != nil {
			return err
		}
	}
	for _, city := range profile.Locations {
		if _, err := tx.Insert(ctx,
			`INSERT INTO producer_cities (producer_id, city) VALUES (?, ?)`,
			id, city,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindProducerByUser(ctx context.Context, tx db.Tx, userID int64) (*domain.ProducerProfile, error) {
	return r.findProducer(ctx, tx, `SELECT `+producerColumns+` FROM producer_profiles p WHERE p.user_id = ?`, userID)
}

func (r *repo) FindProducer(ctx context.Context, tx db.Tx, id int64) (*domain.ProducerProfile, error) {
	return r.findProducer(ctx, tx, `SELECT `+producerColumns+` FROM producer_profiles p WHERE p.id = ?`, id)
}

func (r *repo) findProducer(ctx context.Context, tx db.Tx, stmt string, args ...any) (*domain.ProducerProfile, error) {
	row, err := tx.QueryRow(ctx, stmt, args...)
	if errors.Is(err, db.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	profile := scanProducer(row)
	return &profile, nil
}

func scanProducer(row db.Row) domain.ProducerProfile {
	return domain.ProducerProfile{
		ID:          row.Int64("id"),
		UserID:      row.Int64("user_id"),
		Name:        row.String("name"),
		Locations:   domain.SplitTerms(row.String("locations")),
		Categories:  domain.SplitTerms(row.String("categories")),
		Description: row.String("description"),
		Rating:      row.Float64("rating"),
		RatingCount: row.Int("rating_count"),
		CreatedAt:   row.Time("created_at"),
	}
}

func (r *repo) InsertRequester(ctx context.Context, tx db.Tx, profile *domain.RequesterProfile) error {
	id, err := tx.Insert(ctx,
		`INSERT INTO requester_profiles (user_id, name, city, description, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		profile.UserID,
		profile.Name,
		profile.City,
		profile.Description,
		profile.CreatedAt,
	)
	if err != nil {
		return err
	}
	profile.ID = id
	return nil
}

func (r *repo) FindRequesterByUser(ctx context.Context, tx db.Tx, userID int64) (*domain.RequesterProfile, error) {
	return r.findRequester(ctx, tx, `SELECT `+requesterColumns+` FROM requester_profiles WHERE user_id = ?`, userID)
}

func (r *repo) FindRequester(ctx context.Context, tx db.Tx, id int64) (*domain.RequesterProfile, error) {
	return r.findRequester(ctx, tx, `SELECT `+requesterColumns+` FROM requester_profiles WHERE id = ?`, id)
}

func (r *repo) findRequester(ctx context.Context, tx db.Tx, stmt string, args ...any) (*domain.RequesterProfile, error) {
	row, err := tx.QueryRow(ctx, stmt, args...)
	if errors.Is(err, db.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.RequesterProfile{
		ID:          row.Int64("id"),
		UserID:      row.Int64("user_id"),
		Name:        row.String("name"),
		City:        row.String("city"),
		Description: row.String("description"),
		Rating:      row.Float64("rating"),
		RatingCount: row.Int("rating_count"),
		CreatedAt:   row.Time("created_at"),
	}, nil
}

// FindProducers matches on the normalized join tables and skips banned users.
func (r *repo) FindProducers(ctx context.Context, tx db.Tx, city string, categories []string) ([]domain.ProducerProfile, error) {
	if city == "" || len(categories) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(categories)+2)
	args = append(args, city)
	for _, category := range categories {
		args = append(args, category)
	}
	args = append(args, false)

	rows, err := tx.Query(ctx,
		`SELECT `+producerColumns+` FROM producer_profiles p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.id IN (SELECT producer_id FROM producer_cities WHERE city = ?)
		   AND p.id IN (SELECT producer_id FROM producer_categories WHERE category IN (`+db.Placeholders(len(categories))+`))
		   AND u.is_banned = ?
		 ORDER BY p.id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProducerProfile, 0, len(rows))
	for _, row := range rows {
		out = append(out, scanProducer(row))
	}
	return out, nil
}

func (r *repo) FindCampaignsForProducer(ctx context.Context, tx db.Tx, producerID int64, status string) ([]domain.CampaignMatch, error) {
	rows, err := tx.Query(ctx,
		`SELECT c.id, c.title, c.city, c.category, c.deadline, c.created_at FROM campaigns c
		 WHERE c.status = ?
		   AND LOWER(c.city) IN (SELECT city FROM producer_cities WHERE producer_id = ?)
		   AND c.id IN (
		     SELECT cc.campaign_id FROM campaign_categories cc
		     JOIN producer_categories pc ON pc.category = cc.category
		     WHERE pc.producer_id = ?
		   )
		 ORDER BY c.created_at DESC, c.id DESC`,
		status, producerID, producerID,
	)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CampaignMatch, 0, len(rows))
	for _, row := range rows {
		match := domain.CampaignMatch{
			ID:        row.Int64("id"),
			Title:     row.String("title"),
			City:      row.String("city"),
			Category:  row.String("category"),
			CreatedAt: row.Time("created_at"),
		}
		if deadline := row.NullTime("deadline"); deadline.Valid {
			t := deadline.Time
			match.Deadline = &t
		}
		out = append(out, match)
	}
	return out, nil
}
