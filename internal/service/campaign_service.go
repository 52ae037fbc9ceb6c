package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
	"github.com/unclebandit/prospect-outreach/internal/model"
	"github.com/unclebandit/prospect-outreach/internal/repository"
	"github.com/unclebandit/prospect-outreach/internal/schedule"
)

// DefaultProspectSpacing separates consecutive send slots when a campaign is queued.
const DefaultProspectSpacing = 30 * time.Minute

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ProspectRepo repository.ProspectRepositoryInterface
	AccountRepo  repository.AccountRepositoryInterface
	Tracker      *Tracker
	Evaluator    *schedule.Evaluator
	Spacing      time.Duration
	Log          *zap.Logger
}

type CreateCampaignInput struct {
	WorkspaceID       string                 `json:"workspace_id" validate:"required"`
	Name              string                 `json:"name" validate:"required,max=200"`
	Channel           model.Channel          `json:"channel" validate:"required,oneof=linkedin linkedin_message email"`
	Timezone          string                 `json:"timezone"`
	WorkingHoursStart *int                   `json:"working_hours_start" validate:"omitempty,min=0,max=23"`
	WorkingHoursEnd   *int                   `json:"working_hours_end" validate:"omitempty,min=1,max=24"`
	SkipWeekends      *bool                  `json:"skip_weekends"`
	SkipHolidays      bool                   `json:"skip_holidays"`
	HolidayCountry    string                 `json:"holiday_country" validate:"omitempty,max=8"`
	OutreachAccountID string                 `json:"outreach_account_id" validate:"required"`
	MessageTemplates  model.MessageTemplates `json:"message_templates"`
	DispatchMode      model.DispatchMode     `json:"dispatch_mode" validate:"omitempty,oneof=direct webhook"`
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

type QueueResult struct {
	CampaignID string     `json:"campaign_id"`
	Queued     int        `json:"queued"`
	Skipped    []string   `json:"skipped,omitempty"`
	FirstSlot  *time.Time `json:"first_slot,omitempty"`
	LastSlot   *time.Time `json:"last_slot,omitempty"`
}

func (s *CampaignService) evaluator() *schedule.Evaluator {
	if s.Evaluator == nil {
		s.Evaluator = schedule.NewEvaluator(nil)
	}
	return s.Evaluator
}

// CreateCampaign stores a draft campaign. The outreach account must exist
// and belong to the same workspace.
func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	c := &model.Campaign{
		WorkspaceID:       in.WorkspaceID,
		Name:              strings.TrimSpace(in.Name),
		Channel:           in.Channel,
		Status:            model.CampaignDraft,
		Timezone:          in.Timezone,
		WorkingHoursStart: 9,
		WorkingHoursEnd:   17,
		SkipWeekends:      true,
		SkipHolidays:      in.SkipHolidays,
		HolidayCountry:    strings.ToUpper(in.HolidayCountry),
		OutreachAccountID: in.OutreachAccountID,
		MessageTemplates:  in.MessageTemplates,
		DispatchMode:      in.DispatchMode,
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.DispatchMode == "" {
		c.DispatchMode = model.DispatchDirect
	}
	if in.WorkingHoursStart != nil {
		c.WorkingHoursStart = *in.WorkingHoursStart
	}
	if in.WorkingHoursEnd != nil {
		c.WorkingHoursEnd = *in.WorkingHoursEnd
	}
	if in.SkipWeekends != nil {
		c.SkipWeekends = *in.SkipWeekends
	}

	if c.WorkingHoursStart >= c.WorkingHoursEnd {
		return nil, appErrors.NewValidation("working_hours_end", "must be after working_hours_start")
	}
	if _, warn := schedule.ResolveLocation(c.Timezone); warn != nil {
		return nil, appErrors.NewValidation("timezone", warn.Message)
	}

	account, err := s.AccountRepo.GetByID(ctx, in.OutreachAccountID)
	if err != nil {
		return nil, err
	}
	if account.WorkspaceID != in.WorkspaceID {
		return nil, appErrors.NewValidation("outreach_account_id", "account belongs to another workspace")
	}

	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, workspaceID, channel, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, workspaceID, channel, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID string) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	counts, err := s.ProspectRepo.CountByStatus(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	stats := map[string]int{"total": 0}
	for _, st := range model.AllProspectStatuses {
		stats[string(st)] = counts[st]
		stats["total"] += counts[st]
	}

	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

// UpdateStatus moves a campaign along its lifecycle. Pausing only stops new
// claims; sends already claimed by a running pass finish.
func (s *CampaignService) UpdateStatus(ctx context.Context, campaignID string, to model.CampaignStatus) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status == to {
		return c, nil
	}
	if !c.Status.CanTransition(to) {
		return nil, &appErrors.CampaignTransitionError{CampaignID: campaignID, From: string(c.Status), To: string(to)}
	}

	n, err := s.CampaignRepo.UpdateStatus(ctx, campaignID, c.Status, to)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		cur, err := s.CampaignRepo.GetByID(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		if cur.Status == to {
			return cur, nil
		}
		return nil, &appErrors.CampaignTransitionError{CampaignID: campaignID, From: string(cur.Status), To: string(to)}
	}

	s.Log.Info("campaign status changed",
		zap.String("campaign_id", campaignID),
		zap.String("from", string(c.Status)),
		zap.String("to", string(to)),
	)
	return s.CampaignRepo.GetByID(ctx, campaignID)
}

// QueueCampaign enqueues the campaign's approved prospects (and pending ones
// when includePending is set) on spaced send slots starting at start.
// Prospects that cannot be queued are listed in Skipped.
func (s *CampaignService) QueueCampaign(ctx context.Context, campaignID string, start time.Time, includePending bool) (*QueueResult, error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status == model.CampaignArchived {
		return nil, appErrors.NewValidation("status", "archived campaigns cannot be queued")
	}

	statuses := []model.ProspectStatus{model.ProspectApproved}
	if includePending {
		statuses = append(statuses, model.ProspectPending)
	}
	prospects, err := s.ProspectRepo.ListByCampaign(ctx, campaignID, statuses)
	if err != nil {
		return nil, err
	}

	spacing := s.Spacing
	if spacing <= 0 {
		spacing = DefaultProspectSpacing
	}
	cfg := schedule.ConfigFromCampaign(c)
	res := &QueueResult{CampaignID: campaignID}

	for _, p := range prospects {
		slot, err := s.evaluator().NextSendSlot(cfg, start, res.Queued, spacing)
		if err != nil {
			return nil, err
		}
		if _, err := s.Tracker.Enqueue(ctx, p.ID, slot); err != nil {
			if appErrors.IsInvalidTransition(err) || errors.Is(err, appErrors.ErrClaimLost) {
				res.Skipped = append(res.Skipped, p.ID)
				continue
			}
			return nil, err
		}
		res.Queued++
		if res.FirstSlot == nil {
			res.FirstSlot = &slot
		}
		res.LastSlot = &slot
	}

	s.Log.Info("campaign queued",
		zap.String("campaign_id", campaignID),
		zap.Int("queued", res.Queued),
		zap.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}

// ListProspects returns the campaign's prospects, optionally filtered by status.
func (s *CampaignService) ListProspects(ctx context.Context, campaignID string, statuses []model.ProspectStatus) ([]*model.Prospect, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.ProspectRepo.ListByCampaign(ctx, campaignID, statuses)
}

// Eligibility reports whether the campaign may send at now.
func (s *CampaignService) Eligibility(ctx context.Context, campaignID string, now time.Time) (*schedule.Eligibility, error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	e := s.evaluator().IsEligibleNow(schedule.ConfigFromCampaign(c), now)
	return &e, nil
}

// RenderPreview personalizes the campaign's first-step template, or
// overrideTemplate when given, for one prospect.
func (s *CampaignService) RenderPreview(ctx context.Context, campaignID, prospectID string, overrideTemplate *string) (string, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return "", err
	}
	prospect, err := s.ProspectRepo.GetByID(ctx, prospectID)
	if err != nil {
		return "", err
	}
	if prospect.CampaignID != campaign.ID {
		return "", appErrors.NewValidation("prospect_id", "prospect is not part of this campaign")
	}

	template := campaign.MessageTemplates.FirstStep()
	if overrideTemplate != nil && strings.TrimSpace(*overrideTemplate) != "" {
		template = *overrideTemplate
	}
	if strings.TrimSpace(template) == "" {
		return "", appErrors.NewValidation("template", "template cannot be empty")
	}

	return RenderProspectMessage(template, prospect), nil
}
