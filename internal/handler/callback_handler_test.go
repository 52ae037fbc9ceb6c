package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/prospect-outreach/internal/handler"
	"github.com/unclebandit/prospect-outreach/internal/model"
	"github.com/unclebandit/prospect-outreach/internal/repository"
	"github.com/unclebandit/prospect-outreach/internal/service"
)

func setupCallbackHandler(t *testing.T) (*handler.CallbackHandler, *repository.MemoryProspectRepo) {
	t.Helper()
	ctx := context.Background()
	prospects := repository.NewMemoryProspectRepo()
	campaigns := repository.NewMemoryCampaignRepo()
	require.NoError(t, campaigns.Create(ctx, &model.Campaign{
		ID: "c-1", WorkspaceID: "w-1", Channel: model.ChannelLinkedIn,
		Status: model.CampaignActive, OutreachAccountID: "acc-1",
	}))
	require.NoError(t, prospects.Create(ctx, &model.Prospect{ID: "p-1", CampaignID: "c-1", Status: model.ProspectQueued}))
	require.NoError(t, prospects.Create(ctx, &model.Prospect{ID: "p-2", CampaignID: "c-1", Status: model.ProspectPending}))

	h := handler.NewCallbackHandler(service.NewTracker(prospects, campaigns, zap.NewNop()), "s3cret", zap.NewNop())
	h.Now = func() time.Time { return time.Date(2025, 3, 18, 14, 0, 0, 0, time.UTC) }
	return h, prospects
}

func post(h *handler.CallbackHandler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/callbacks/prospect-status", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ProspectStatus(w, req)
	return w
}

func TestCallbackHandler_StatusCodes(t *testing.T) {
	h, prospects := setupCallbackHandler(t)
	sent := `{"prospect_id":"p-1","status":"connection_requested","contacted_at":"2025-03-18T13:59:00Z"}`

	tests := []struct {
		name  string
		token string
		body  string
		want  int
	}{
		{"missing token", "", sent, http.StatusUnauthorized},
		{"wrong token", "nope", sent, http.StatusUnauthorized},
		{"malformed", "s3cret", `{`, http.StatusBadRequest},
		{"missing status", "s3cret", `{"prospect_id":"p-1"}`, http.StatusBadRequest},
		{"unknown status", "s3cret", `{"prospect_id":"p-1","status":"delivered"}`, http.StatusBadRequest},
		{"unknown prospect", "s3cret", `{"prospect_id":"nobody","status":"replied"}`, http.StatusNotFound},
		{"applied", "s3cret", sent, http.StatusOK},
		{"redelivered", "s3cret", sent, http.StatusOK},
		{"backwards", "s3cret", `{"prospect_id":"p-1","status":"message_sent"}`, http.StatusConflict},
		{"outcome before send", "s3cret", `{"prospect_id":"p-2","status":"replied"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(h, tt.token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	p, err := prospects.GetByID(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, model.ProspectConnectionRequested, p.Status)
	assert.True(t, time.Date(2025, 3, 18, 13, 59, 0, 0, time.UTC).Equal(*p.ContactedAt))
}

func TestCallbackHandler_NoTokenConfiguredRejectsAll(t *testing.T) {
	h, _ := setupCallbackHandler(t)
	h.Token = ""
	w := post(h, "", `{"prospect_id":"p-1","status":"replied"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
