package domain

import (
	"sort"
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID         int64      `json:"id"`
	ExternalID string     `json:"external_id"`
	Role       string     `json:"role"`
	IsBanned   bool       `json:"is_banned"`
	BanReason  string     `json:"ban_reason,omitempty"`
	BannedAt   *time.Time `json:"banned_at,omitempty"`
	BannedBy   *int64     `json:"banned_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type ProducerProfile struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Locations   []string  `json:"locations"`
	Categories  []string  `json:"categories"`
	Description string    `json:"description"`
	Rating      float64   `json:"rating"`
	RatingCount int       `json:"rating_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type RequesterProfile struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	City        string    `json:"city"`
	Description string    `json:"description"`
	Rating      float64   `json:"rating"`
	RatingCount int       `json:"rating_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// CampaignMatch is the directory's view of an open campaign that fits a
// producer's cities and categories.
type CampaignMatch struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	City      string     `json:"city"`
	Category  string     `json:"category"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NormalizeTerms case-folds, trims and de-duplicates search terms so that
// directory lookups can use exact matches.
func NormalizeTerms(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			term := strings.ToLower(strings.TrimSpace(part))
			if term == "" {
				continue
			}
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			out = append(out, term)
		}
	}
	sort.Strings(out)
	return out
}

func JoinTerms(terms []string) string {
	return strings.Join(terms, ", ")
}

func SplitTerms(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	return NormalizeTerms([]string{raw})
}
