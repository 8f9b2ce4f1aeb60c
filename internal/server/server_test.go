package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	auditrepo "github.com/smallbiznis/matchhub/internal/audit/repository"
	auditservice "github.com/smallbiznis/matchhub/internal/audit/service"
	"github.com/smallbiznis/matchhub/internal/authorization"
	campaigndomain "github.com/smallbiznis/matchhub/internal/campaign/domain"
	campaignrepo "github.com/smallbiznis/matchhub/internal/campaign/repository"
	campaignservice "github.com/smallbiznis/matchhub/internal/campaign/service"
	chatrepo "github.com/smallbiznis/matchhub/internal/chat/repository"
	chatservice "github.com/smallbiznis/matchhub/internal/chat/service"
	"github.com/smallbiznis/matchhub/internal/clock"
	"github.com/smallbiznis/matchhub/internal/config"
	ledgerrepo "github.com/smallbiznis/matchhub/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/matchhub/internal/ledger/service"
	"github.com/smallbiznis/matchhub/internal/migration/migrationtest"
	notificationrepo "github.com/smallbiznis/matchhub/internal/notification/repository"
	notificationservice "github.com/smallbiznis/matchhub/internal/notification/service"
	"github.com/smallbiznis/matchhub/internal/observability"
	profilerepo "github.com/smallbiznis/matchhub/internal/profile/repository"
	profileservice "github.com/smallbiznis/matchhub/internal/profile/service"
	"github.com/smallbiznis/matchhub/internal/ratelimit"
	reviewrepo "github.com/smallbiznis/matchhub/internal/review/repository"
	reviewservice "github.com/smallbiznis/matchhub/internal/review/service"
	"github.com/smallbiznis/matchhub/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)

type testServer struct {
	engine    *gin.Engine
	clock     *clock.FakeClock
	campaigns campaigndomain.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := migrationtest.OpenSQLite(t)
	clk := clock.NewFakeClock(epoch)
	policy := config.DefaultPolicy()
	holder := config.NewStaticPolicyHolder(policy)
	log := zap.NewNop()

	profileRepo := profilerepo.Provide()
	campaignRepo := campaignrepo.Provide()
	counters := notificationrepo.Provide()
	ledger := ledgerrepo.Provide()

	profiles := profileservice.New(profileservice.Params{Store: store, Log: log, Clock: clk, Repo: profileRepo})
	campaigns := campaignservice.New(campaignservice.Params{
		Store:    store,
		Log:      log,
		Clock:    clk,
		Repo:     campaignRepo,
		Profiles: profileRepo,
		Counters: counters,
		Ledger:   ledger,
		Limiter:  ratelimit.NewSlidingWindow(clk, policy.RateLimit.Window, policy.RateLimit.SweepEvery),
		Policy:   holder,
	})
	chats := chatservice.New(chatservice.Params{
		Store: store, Log: log, Clock: clk, Repo: chatrepo.Provide(),
		Campaigns: campaignRepo, Ledger: ledger, Policy: holder,
	})
	reviews := reviewservice.New(reviewservice.Params{
		Store: store, Log: log, Clock: clk, Repo: reviewrepo.Provide(), Campaigns: campaignRepo,
	})
	notifications := notificationservice.New(notificationservice.Params{Store: store, Log: log, Clock: clk, Repo: counters})
	audits := auditservice.NewService(auditservice.Params{Store: store, Log: log, Clock: clk, Repo: auditrepo.Provide()})
	enforcer, err := authorization.NewEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{
		Cfg:      config.Config{AdminExternalIDs: []string{"tg:root"}},
		Log:      log,
		Enforcer: enforcer,
		AuditSvc: audits,
	})

	engine := NewEngine(observability.Config{Environment: "test"}, nil)
	NewServer(Params{
		Engine:          engine,
		Log:             log,
		ProfileSvc:      profiles,
		CampaignSvc:     campaigns,
		ChatSvc:         chats,
		ReviewSvc:       reviews,
		NotificationSvc: notifications,
		LedgerSvc:       ledgerservice.NewService(ledgerservice.Params{Store: store, Log: log, Clock: clk, Repo: ledger}),
		AuthzSvc:        authz,
		AuditSvc:        audits,
		Sessions:        session.NewStore(clk, func() time.Duration { return policy.Session.TTL }, log),
	})
	return &testServer{engine: engine, clock: clk, campaigns: campaigns}
}

type apiResponse struct {
	Code   int
	Header http.Header
	Body   map[string]any
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) apiResponse {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	out := apiResponse{Code: rec.Code, Header: rec.Header()}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out.Body), rec.Body.String())
	}
	return out
}

func (r apiResponse) data(t *testing.T) map[string]any {
	t.Helper()
	data, ok := r.Body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", r.Body)
	return data
}

func (r apiResponse) id(t *testing.T) int64 {
	t.Helper()
	return int64(r.data(t)["id"].(float64))
}

func (r apiResponse) errorField(t *testing.T, name string) string {
	t.Helper()
	payload, ok := r.Body["error"].(map[string]any)
	require.True(t, ok, "response has no error object: %v", r.Body)
	v, _ := payload[name].(string)
	return v
}

func (s *testServer) requester(t *testing.T, user string) {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/profiles/requester", user, map[string]any{"name": "Requester", "city": "Almaty"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
}

func (s *testServer) producer(t *testing.T, user string) {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/profiles/producer", user, map[string]any{
		"name": "Producer " + user, "locations": []string{"Almaty"}, "categories": []string{"video"},
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
}

func (s *testServer) campaign(t *testing.T, user string) int64 {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/campaigns", user, map[string]any{
		"title": "Launch video", "city": "Almaty", "categories": []string{"video"},
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	return res.id(t)
}

func (s *testServer) offer(t *testing.T, user string, campaignID int64, price float64) int64 {
	t.Helper()
	res := s.do(t, http.MethodPost, fmt.Sprintf("/api/campaigns/%d/offers", campaignID), user, map[string]any{
		"proposed_price": price, "currency": "usd", "ready_in_days": 3,
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	return res.id(t)
}

func TestHealthAndMissingActor(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "ok", res.Body["status"])

	res = s.do(t, http.MethodGet, "/api/campaigns/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "unauthorized", res.errorField(t, "type"))
}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.requester(t, "tg:alice")
	s.producer(t, "tg:bob")
	s.producer(t, "tg:carol")

	campaignID := s.campaign(t, "tg:alice")
	first := s.offer(t, "tg:bob", campaignID, 50)
	second := s.offer(t, "tg:carol", campaignID, 40)

	res := s.do(t, http.MethodGet, fmt.Sprintf("/api/campaigns/%d/offers", campaignID), "tg:bob", nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = s.do(t, http.MethodGet, fmt.Sprintf("/api/campaigns/%d/offers", campaignID), "tg:alice", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, res.Body["data"], 2)

	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/offers/%d/select", second), "tg:alice", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	chat := res.data(t)["chat"].(map[string]any)
	chatID := int64(chat["id"].(float64))
	assert.Equal(t, epoch.Add(24*time.Hour).Format(time.RFC3339), res.data(t)["confirm_by"])

	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/offers/%d/select", first), "tg:alice", nil)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "selection_lost", res.errorField(t, "message"))

	res = s.do(t, http.MethodGet, fmt.Sprintf("/api/chats/%d", chatID), "tg:bob", nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	s.clock.Advance(2 * time.Hour)
	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/chats/%d/confirm", chatID), "tg:carol", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, true, res.data(t)["producer_confirmed"])
	assert.Equal(t, false, res.data(t)["lapsed"])

	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/campaigns/%d/start", campaignID), "tg:carol", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, "in_progress", res.data(t)["status"])

	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/campaigns/%d/reviews", campaignID), "tg:alice", map[string]any{"rating": 5})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "campaign_not_completed", res.errorField(t, "message"))

	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/campaigns/%d/complete", campaignID), "tg:alice", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, "completed", res.data(t)["status"])

	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/campaigns/%d/reviews", campaignID), "tg:alice", map[string]any{"rating": 5, "comment": "great"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/campaigns/%d/reviews", campaignID), "tg:alice", map[string]any{"rating": 4})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "already_reviewed", res.errorField(t, "message"))

	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/campaigns/%d/reviews", campaignID), "tg:carol", map[string]any{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestConfirmAfterWindowConflicts(t *testing.T) {
	s := newTestServer(t)
	s.requester(t, "tg:alice")
	s.producer(t, "tg:bob")
	campaignID := s.campaign(t, "tg:alice")
	offerID := s.offer(t, "tg:bob", campaignID, 30)

	res := s.do(t, http.MethodPost, fmt.Sprintf("/api/offers/%d/select", offerID), "tg:alice", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	chatID := int64(res.data(t)["chat"].(map[string]any)["id"].(float64))

	s.clock.Advance(25 * time.Hour)
	res = s.do(t, http.MethodGet, fmt.Sprintf("/api/chats/%d", chatID), "tg:alice", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, true, res.data(t)["lapsed"])

	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/chats/%d/confirm", chatID), "tg:bob", nil)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "confirmation_lapsed", res.errorField(t, "message"))
}

func TestReselectOpensChatLeftBehind(t *testing.T) {
	s := newTestServer(t)
	s.requester(t, "tg:alice")
	s.producer(t, "tg:bob")
	campaignID := s.campaign(t, "tg:alice")
	offerID := s.offer(t, "tg:bob", campaignID, 30)

	// Selection committed, chat never opened.
	ok, err := s.campaigns.SelectOffer(context.Background(), campaigndomain.SelectOfferRequest{OfferID: offerID})
	require.NoError(t, err)
	require.True(t, ok)

	res := s.do(t, http.MethodPost, fmt.Sprintf("/api/offers/%d/select", offerID), "tg:bob", nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	s.clock.Advance(time.Hour)
	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/offers/%d/select", offerID), "tg:alice", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, epoch.Add(25*time.Hour).Format(time.RFC3339), res.data(t)["confirm_by"])

	res = s.do(t, http.MethodGet, fmt.Sprintf("/api/campaigns/%d", campaignID), "tg:alice", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "contact_shared", res.data(t)["status"])

	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/offers/%d/select", offerID), "tg:alice", nil)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "selection_lost", res.errorField(t, "message"))
}

func TestCreateCampaignValidationAndRateLimit(t *testing.T) {
	s := newTestServer(t)
	s.requester(t, "tg:alice")

	res := s.do(t, http.MethodPost, "/api/campaigns", "tg:alice", map[string]any{"city": "Almaty", "categories": []string{"video"}})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "validation_error", res.errorField(t, "type"))
	errs := res.Body["error"].(map[string]any)["errors"].([]any)
	assert.Equal(t, "invalid_title", errs[0].(map[string]any)["code"])
	assert.Equal(t, "title", errs[0].(map[string]any)["field"])

	res = s.do(t, http.MethodPost, "/api/campaigns", "tg:alice", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	for i := 0; i < 10; i++ {
		s.campaign(t, "tg:alice")
	}
	res = s.do(t, http.MethodPost, "/api/campaigns", "tg:alice", map[string]any{
		"title": "One too many", "city": "Almaty", "categories": []string{"video"},
	})
	require.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.Equal(t, "3600", res.Header.Get("Retry-After"))
	assert.Equal(t, "rate_limited", res.errorField(t, "type"))
}

func TestCreateCampaignRequiresRequesterProfile(t *testing.T) {
	s := newTestServer(t)
	res := s.do(t, http.MethodPost, "/api/campaigns", "tg:nobody", map[string]any{
		"title": "t", "city": "Almaty", "categories": []string{"video"},
	})
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "requester_profile_required", res.errorField(t, "message"))
}

func TestNotificationsPeekAndReset(t *testing.T) {
	s := newTestServer(t)
	s.requester(t, "tg:alice")
	s.producer(t, "tg:bob")
	s.campaign(t, "tg:alice")

	res := s.do(t, http.MethodGet, "/api/notifications/new_campaigns", "tg:bob", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, float64(1), res.data(t)["unseen_count"])

	res = s.do(t, http.MethodDelete, "/api/notifications/new_campaigns", "tg:bob", nil)
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = s.do(t, http.MethodGet, "/api/notifications/new_campaigns", "tg:bob", nil)
	assert.Equal(t, float64(0), res.data(t)["unseen_count"])

	res = s.do(t, http.MethodGet, "/api/notifications/everything", "tg:bob", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = s.do(t, http.MethodGet, "/api/producers/me/campaigns", "tg:bob", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, res.Body["data"], 1)
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodGet, "/api/session", "tg:alice", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "idle", res.Body["kind"])

	res = s.do(t, http.MethodPut, "/api/session", "tg:alice", map[string]any{
		"kind": "drafting_offer",
		"data": map[string]any{"campaign_id": 7, "currency": "usd"},
	})
	require.Equal(t, http.StatusNoContent, res.Code)

	res = s.do(t, http.MethodGet, "/api/session", "tg:alice", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "drafting_offer", res.Body["kind"])

	res = s.do(t, http.MethodPut, "/api/session", "tg:alice", map[string]any{"kind": "dancing"})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = s.do(t, http.MethodDelete, "/api/session", "tg:alice", nil)
	assert.Equal(t, http.StatusNoContent, res.Code)
	res = s.do(t, http.MethodGet, "/api/session", "tg:alice", nil)
	assert.Equal(t, "idle", res.Body["kind"])
}

func TestAdminModeration(t *testing.T) {
	s := newTestServer(t)
	s.requester(t, "tg:alice")
	s.producer(t, "tg:bob")
	campaignID := s.campaign(t, "tg:alice")
	offerID := s.offer(t, "tg:bob", campaignID, 25)

	res := s.do(t, http.MethodPost, fmt.Sprintf("/api/offers/%d/select", offerID), "tg:alice", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	bobID := int64(res.data(t)["chat"].(map[string]any)["producer_user_id"].(float64))

	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/ban", bobID), "tg:alice", map[string]any{"reason": "spam"})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = s.do(t, http.MethodGet, fmt.Sprintf("/api/admin/campaigns/%d/ledger", campaignID), "tg:root", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	entries := res.Body["data"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "access", entries[0].(map[string]any)["type"])

	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/ban", bobID), "tg:root", map[string]any{"reason": " "})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/ban", bobID), "tg:root", map[string]any{"reason": "spam"})
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, true, res.data(t)["is_banned"])

	res = s.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/unban", bobID), "tg:root", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, false, res.data(t)["is_banned"])

	res = s.do(t, http.MethodDelete, "/api/admin/users/999999", "tg:root", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = s.do(t, http.MethodGet, "/api/admin/audit-logs?action=user.banned", "tg:alice", nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = s.do(t, http.MethodGet, "/api/admin/audit-logs?action=user.banned", "tg:root", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	logs := res.data(t)["audit_logs"].([]any)
	require.Len(t, logs, 1)
	entry := logs[0].(map[string]any)
	assert.Equal(t, fmt.Sprint(bobID), entry["target_id"])
	assert.Equal(t, "spam", entry["metadata"].(map[string]any)["reason"])

	res = s.do(t, http.MethodGet, "/api/admin/audit-logs?action=authorization.denied", "tg:root", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Len(t, res.data(t)["audit_logs"], 2)

	res = s.do(t, http.MethodGet, "/api/admin/audit-logs?page_size=abc", "tg:root", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}
