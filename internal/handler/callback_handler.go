package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unclebandit/prospect-outreach/internal/metrics"
	"github.com/unclebandit/prospect-outreach/internal/service"
)

// CallbackHandler receives status reports from the workflow orchestrator.
type CallbackHandler struct {
	Tracker  *service.Tracker
	Validate *validator.Validate
	Token    string
	Log      *zap.Logger
	Now      func() time.Time
}

func NewCallbackHandler(tracker *service.Tracker, token string, log *zap.Logger) *CallbackHandler {
	return &CallbackHandler{
		Tracker:  tracker,
		Validate: validator.New(),
		Token:    token,
		Log:      log,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *CallbackHandler) authorized(r *http.Request) bool {
	if h.Token == "" {
		return false
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) == 1
}

// ProspectStatus applies one callback. A repeated callback answers 200 with
// the current prospect.
func (h *CallbackHandler) ProspectStatus(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		metrics.RecordCallback("http", "unauthorized")
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var cb service.StatusCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		metrics.RecordCallback("http", "malformed")
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.Validate.Struct(cb); err != nil {
		metrics.RecordCallback("http", "invalid")
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.Tracker.ApplyCallback(r.Context(), cb, h.Now())
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			h.Log.Error("status callback failed", zap.String("prospect_id", cb.ProspectID), zap.Error(err))
			metrics.RecordCallback("http", "error")
		} else {
			h.Log.Warn("status callback rejected",
				zap.String("prospect_id", cb.ProspectID),
				zap.String("status", cb.Status),
				zap.Error(err),
			)
			metrics.RecordCallback("http", "rejected")
		}
		Error(w, status, err.Error())
		return
	}

	metrics.RecordCallback("http", "applied")
	JSON(w, http.StatusOK, p)
}
