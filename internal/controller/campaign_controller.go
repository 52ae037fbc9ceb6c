// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/unclebandit/prospect-outreach/internal/handler"
	"github.com/unclebandit/prospect-outreach/internal/model"
	"github.com/unclebandit/prospect-outreach/internal/service"
)

// CampaignDispatcher runs a manual dispatch pass for one campaign.
type CampaignDispatcher interface {
	DispatchCampaign(ctx context.Context, campaignID string) (*service.DispatchSummary, error)
}

type CampaignController struct {
	CampaignService *service.CampaignService
	Dispatcher      CampaignDispatcher
	Validate        *validator.Validate
	Now             func() time.Time
}

func NewCampaignController(svc *service.CampaignService, dispatcher CampaignDispatcher) *CampaignController {
	return &CampaignController{
		CampaignService: svc,
		Dispatcher:      dispatcher,
		Validate:        validator.New(),
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

// Routes mounts the campaign endpoints on r.
func (c *CampaignController) Routes(r chi.Router) {
	r.Post("/campaigns", c.CreateCampaign)
	r.Get("/campaigns", c.ListCampaigns)
	r.Get("/campaigns/{id}", c.GetCampaignDetails)
	r.Patch("/campaigns/{id}/status", c.UpdateStatus)
	r.Post("/campaigns/{id}/queue", c.QueueCampaign)
	r.Post("/campaigns/{id}/dispatch", c.DispatchCampaign)
	r.Get("/campaigns/{id}/eligibility", c.Eligibility)
	r.Get("/campaigns/{id}/prospects", c.ListProspects)
	r.Post("/campaigns/{id}/personalized-preview", c.PersonalizedPreview)
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")

	var body struct {
		ProspectID       string  `json:"prospect_id" validate:"required"`
		OverrideTemplate *string `json:"override_template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.Error(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := c.Validate.Struct(body); err != nil {
		handler.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	rendered, err := c.CampaignService.RenderPreview(r.Context(), campaignID, body.ProspectID, body.OverrideTemplate)
	if err != nil {
		handler.Fail(w, err)
		return
	}

	handler.JSON(w, http.StatusOK, map[string]interface{}{
		"rendered_message": rendered,
		"used_template":    body.OverrideTemplate,
		"prospect_id":      body.ProspectID,
	})
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CreateCampaignInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.Error(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := c.Validate.Struct(body); err != nil {
		handler.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), body)
	if err != nil {
		handler.Fail(w, err)
		return
	}

	handler.JSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	workspaceID := r.URL.Query().Get("workspace_id")
	channel := r.URL.Query().Get("channel")
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, workspaceID, channel, status)
	if err != nil {
		handler.Fail(w, err)
		return
	}

	handler.JSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handler.Fail(w, err)
		return
	}
	handler.JSON(w, http.StatusOK, details)
}

func (c *CampaignController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.CampaignStatus `json:"status" validate:"required,oneof=draft active scheduled paused archived"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.Error(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := c.Validate.Struct(body); err != nil {
		handler.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	campaign, err := c.CampaignService.UpdateStatus(r.Context(), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		handler.Fail(w, err)
		return
	}
	handler.JSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) QueueCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StartAt        *time.Time `json:"start_at"`
		IncludePending bool       `json:"include_pending"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			handler.Error(w, http.StatusBadRequest, "invalid body")
			return
		}
	}
	start := c.Now()
	if body.StartAt != nil {
		start = body.StartAt.UTC()
	}

	result, err := c.CampaignService.QueueCampaign(r.Context(), chi.URLParam(r, "id"), start, body.IncludePending)
	if err != nil {
		handler.Fail(w, err)
		return
	}
	handler.JSON(w, http.StatusOK, result)
}

func (c *CampaignController) DispatchCampaign(w http.ResponseWriter, r *http.Request) {
	if c.Dispatcher == nil {
		handler.Error(w, http.StatusServiceUnavailable, "dispatch is not configured")
		return
	}
	summary, err := c.Dispatcher.DispatchCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handler.Fail(w, err)
		return
	}
	handler.JSON(w, http.StatusOK, summary)
}

func (c *CampaignController) Eligibility(w http.ResponseWriter, r *http.Request) {
	at := c.Now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			handler.Error(w, http.StatusBadRequest, "at must be RFC3339")
			return
		}
		at = t
	}

	e, err := c.CampaignService.Eligibility(r.Context(), chi.URLParam(r, "id"), at)
	if err != nil {
		handler.Fail(w, err)
		return
	}
	handler.JSON(w, http.StatusOK, e)
}

func (c *CampaignController) ListProspects(w http.ResponseWriter, r *http.Request) {
	var statuses []model.ProspectStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, ok := model.ParseProspectStatus(strings.TrimSpace(s))
			if !ok {
				handler.Error(w, http.StatusBadRequest, "unknown status "+s)
				return
			}
			statuses = append(statuses, st)
		}
	}

	prospects, err := c.CampaignService.ListProspects(r.Context(), chi.URLParam(r, "id"), statuses)
	if err != nil {
		handler.Fail(w, err)
		return
	}
	handler.JSON(w, http.StatusOK, map[string]interface{}{"data": prospects})
}
