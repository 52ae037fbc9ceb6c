package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/prospect-outreach/internal/controller"
	"github.com/unclebandit/prospect-outreach/internal/model"
	"github.com/unclebandit/prospect-outreach/internal/repository"
	"github.com/unclebandit/prospect-outreach/internal/service"
)

type testEnv struct {
	router    chi.Router
	campaigns *repository.MemoryCampaignRepo
	prospects *repository.MemoryProspectRepo
	dispatch  *stubDispatcher
}

type stubDispatcher struct {
	called []string
}

func (s *stubDispatcher) DispatchCampaign(_ context.Context, id string) (*service.DispatchSummary, error) {
	s.called = append(s.called, id)
	return &service.DispatchSummary{PassID: "pass-1", Sent: 1}, nil
}

// tuesday 10:00 in New York
var fixedNow = time.Date(2025, 3, 18, 14, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	env := &testEnv{
		campaigns: repository.NewMemoryCampaignRepo(),
		prospects: repository.NewMemoryProspectRepo(),
		dispatch:  &stubDispatcher{},
	}
	accounts := repository.NewMemoryAccountRepo()
	require.NoError(t, accounts.Create(ctx, &model.OutreachAccount{ID: "acc-1", WorkspaceID: "w-1", DailyLimit: 20}))
	require.NoError(t, env.campaigns.Create(ctx, &model.Campaign{
		ID:                "c-1",
		WorkspaceID:       "w-1",
		Name:              "Spring push",
		Channel:           model.ChannelLinkedIn,
		Status:            model.CampaignActive,
		Timezone:          "America/New_York",
		WorkingHoursStart: 9,
		WorkingHoursEnd:   17,
		SkipWeekends:      true,
		OutreachAccountID: "acc-1",
		MessageTemplates:  model.MessageTemplates{ConnectionRequest: "Hi {first_name} {last_name}, how is {company_name}?"},
		DispatchMode:      model.DispatchDirect,
	}))
	require.NoError(t, env.prospects.Create(ctx, &model.Prospect{
		ID:          "p-1",
		CampaignID:  "c-1",
		WorkspaceID: "w-1",
		FirstName:   "Alice",
		LastName:    "Smith",
		CompanyName: "Acme",
		ProfileURL:  "https://linkedin.com/in/alice",
		Status:      model.ProspectApproved,
	}))

	log := zap.NewNop()
	tracker := service.NewTracker(env.prospects, env.campaigns, log)
	svc := &service.CampaignService{
		CampaignRepo: env.campaigns,
		ProspectRepo: env.prospects,
		AccountRepo:  accounts,
		Tracker:      tracker,
		Log:          log,
	}

	cc := controller.NewCampaignController(svc, env.dispatch)
	cc.Now = func() time.Time { return fixedNow }
	pc := controller.NewProspectController(tracker, env.prospects)
	pc.Now = func() time.Time { return fixedNow }

	r := chi.NewRouter()
	cc.Routes(r)
	pc.Routes(r)
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestPersonalizedPreviewHandler(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/campaigns/c-1/personalized-preview", map[string]any{"prospect_id": "p-1"})
	require.Equal(t, http.StatusOK, w.Code)

	var res map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, "Hi Alice Smith, how is Acme?", res["rendered_message"])
}

func TestPersonalizedPreviewHandler_Override(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/campaigns/c-1/personalized-preview", map[string]any{
		"prospect_id":       "p-1",
		"override_template": "Hello {first_name} ({title})",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var res map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, "Hello Alice ()", res["rendered_message"])
}

func TestPersonalizedPreviewHandler_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"missing prospect id", "/campaigns/c-1/personalized-preview", map[string]any{}, http.StatusBadRequest},
		{"unknown prospect", "/campaigns/c-1/personalized-preview", map[string]any{"prospect_id": "nope"}, http.StatusNotFound},
		{"unknown campaign", "/campaigns/c-9/personalized-preview", map[string]any{"prospect_id": "p-1"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestListCampaignsPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	totalCampaigns := 25
	for i := 1; i <= totalCampaigns; i++ {
		require.NoError(t, env.campaigns.Create(ctx, &model.Campaign{
			ID:          fmt.Sprintf("d-%02d", i),
			WorkspaceID: "w-2",
			Name:        "Campaign " + strconv.Itoa(i),
			Channel:     model.ChannelEmail,
			Status:      model.CampaignDraft,
		}))
	}

	pageSize := 10
	seen := map[string]bool{}
	totalPages := (totalCampaigns + pageSize - 1) / pageSize

	for page := 1; page <= totalPages; page++ {
		w := env.do(t, http.MethodGet,
			"/campaigns?page="+strconv.Itoa(page)+
				"&page_size="+strconv.Itoa(pageSize)+
				"&workspace_id=w-2&channel=email&status=draft", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var res struct {
			Data       []model.Campaign `json:"data"`
			Pagination struct {
				Page       int `json:"page"`
				PageSize   int `json:"page_size"`
				TotalCount int `json:"total_count"`
				TotalPages int `json:"total_pages"`
			} `json:"pagination"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&res))

		assert.Equal(t, page, res.Pagination.Page)
		assert.Equal(t, pageSize, res.Pagination.PageSize)
		assert.Equal(t, totalCampaigns, res.Pagination.TotalCount)
		assert.Equal(t, totalPages, res.Pagination.TotalPages)

		for _, c := range res.Data {
			assert.False(t, seen[c.ID], "duplicate campaign %s across pages", c.ID)
			seen[c.ID] = true
			assert.Equal(t, model.ChannelEmail, c.Channel)
			assert.Equal(t, model.CampaignDraft, c.Status)
		}
	}

	assert.Len(t, seen, totalCampaigns)
}

func TestCreateCampaignHandler(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/campaigns", map[string]any{
		"workspace_id":        "w-1",
		"name":                "Autumn push",
		"channel":             "linkedin",
		"timezone":            "America/Chicago",
		"outreach_account_id": "acc-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var c model.Campaign
	require.NoError(t, json.NewDecoder(w.Body).Decode(&c))
	assert.Equal(t, model.CampaignDraft, c.Status)
	assert.Equal(t, 9, c.WorkingHoursStart)
	assert.Equal(t, 17, c.WorkingHoursEnd)

	w = env.do(t, http.MethodPost, "/campaigns", map[string]any{"name": "no workspace"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStatusHandler(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPatch, "/campaigns/c-1/status", map[string]any{"status": "paused"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPatch, "/campaigns/c-1/status", map[string]any{"status": "archived"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPatch, "/campaigns/c-1/status", map[string]any{"status": "active"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPatch, "/campaigns/c-1/status", map[string]any{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueAndDetailsHandlers(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/campaigns/c-1/queue", map[string]any{})
	require.Equal(t, http.StatusOK, w.Code)

	var res service.QueueResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, 1, res.Queued)
	require.NotNil(t, res.FirstSlot)
	assert.True(t, res.FirstSlot.Equal(fixedNow))

	w = env.do(t, http.MethodGet, "/campaigns/c-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var details struct {
		ID    string         `json:"id"`
		Stats map[string]int `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&details))
	assert.Equal(t, "c-1", details.ID)
	assert.Equal(t, 1, details.Stats["queued"])
	assert.Equal(t, 1, details.Stats["total"])

	w = env.do(t, http.MethodGet, "/campaigns/c-1/prospects?status=queued", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []model.Prospect `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "p-1", list.Data[0].ID)

	w = env.do(t, http.MethodGet, "/campaigns/c-1/prospects?status=nonsense", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEligibilityHandler(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/campaigns/c-1/eligibility", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var e map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&e))
	assert.Equal(t, true, e["eligible"])

	// Saturday
	w = env.do(t, http.MethodGet, "/campaigns/c-1/eligibility?at=2025-03-22T15:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	e = nil
	require.NoError(t, json.NewDecoder(w.Body).Decode(&e))
	assert.Equal(t, false, e["eligible"])

	w = env.do(t, http.MethodGet, "/campaigns/c-1/eligibility?at=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDispatchHandler(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/campaigns/c-1/dispatch", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"c-1"}, env.dispatch.called)
}
