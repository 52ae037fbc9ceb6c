package controller

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/unclebandit/prospect-outreach/internal/handler"
	"github.com/unclebandit/prospect-outreach/internal/model"
	"github.com/unclebandit/prospect-outreach/internal/repository"
	"github.com/unclebandit/prospect-outreach/internal/service"
)

// ProspectController exposes the lifecycle operations one prospect at a time.
type ProspectController struct {
	Tracker   *service.Tracker
	Prospects repository.ProspectRepositoryInterface
	Validate  *validator.Validate
	Now       func() time.Time
}

func NewProspectController(tracker *service.Tracker, prospects repository.ProspectRepositoryInterface) *ProspectController {
	return &ProspectController{
		Tracker:   tracker,
		Prospects: prospects,
		Validate:  validator.New(),
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (c *ProspectController) Routes(r chi.Router) {
	r.Get("/prospects/{id}", c.Get)
	r.Post("/prospects/{id}/approve", c.Approve)
	r.Post("/prospects/{id}/reject", c.Reject)
	r.Post("/prospects/{id}/enqueue", c.Enqueue)
	r.Post("/prospects/{id}/mark-sent", c.MarkSent)
	r.Post("/prospects/{id}/outcome", c.RecordOutcome)
	r.Post("/prospects/{id}/reset", c.Reset)
}

func (c *ProspectController) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		handler.Error(w, http.StatusBadRequest, "invalid body")
		return false
	}
	if err := c.Validate.Struct(v); err != nil {
		handler.Error(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func respond(w http.ResponseWriter, p *model.Prospect, err error) {
	if err != nil {
		handler.Fail(w, err)
		return
	}
	handler.JSON(w, http.StatusOK, p)
}

func (c *ProspectController) Get(w http.ResponseWriter, r *http.Request) {
	p, err := c.Prospects.GetByID(r.Context(), chi.URLParam(r, "id"))
	respond(w, p, err)
}

func (c *ProspectController) Approve(w http.ResponseWriter, r *http.Request) {
	p, err := c.Tracker.Approve(r.Context(), chi.URLParam(r, "id"))
	respond(w, p, err)
}

func (c *ProspectController) Reject(w http.ResponseWriter, r *http.Request) {
	p, err := c.Tracker.Reject(r.Context(), chi.URLParam(r, "id"))
	respond(w, p, err)
}

func (c *ProspectController) Enqueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ScheduledSendAt time.Time `json:"scheduled_send_at" validate:"required"`
	}
	if !c.decode(w, r, &body) {
		return
	}
	p, err := c.Tracker.Enqueue(r.Context(), chi.URLParam(r, "id"), body.ScheduledSendAt)
	respond(w, p, err)
}

func (c *ProspectController) MarkSent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SentAt            *time.Time    `json:"sent_at"`
		Channel           model.Channel `json:"channel" validate:"omitempty,oneof=linkedin linkedin_message email"`
		AccountID         string        `json:"account_id" validate:"required"`
		ProviderMessageID string        `json:"provider_message_id"`
	}
	if !c.decode(w, r, &body) {
		return
	}
	sentAt := c.Now()
	if body.SentAt != nil {
		sentAt = *body.SentAt
	}
	p, err := c.Tracker.MarkSent(r.Context(), chi.URLParam(r, "id"), sentAt, model.ChannelResult{
		Channel:           body.Channel,
		AccountID:         body.AccountID,
		ProviderMessageID: body.ProviderMessageID,
	})
	respond(w, p, err)
}

func (c *ProspectController) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Outcome model.ProspectStatus `json:"outcome" validate:"required,oneof=replied bounced failed"`
	}
	if !c.decode(w, r, &body) {
		return
	}
	p, err := c.Tracker.RecordOutcome(r.Context(), chi.URLParam(r, "id"), body.Outcome)
	respond(w, p, err)
}

func (c *ProspectController) Reset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Operator string `json:"operator" validate:"required"`
		Reason   string `json:"reason" validate:"required"`
	}
	if !c.decode(w, r, &body) {
		return
	}
	p, err := c.Tracker.ResetToPending(r.Context(), chi.URLParam(r, "id"), body.Operator, body.Reason)
	respond(w, p, err)
}
