package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
	"github.com/unclebandit/prospect-outreach/internal/integration"
	"github.com/unclebandit/prospect-outreach/internal/metrics"
	"github.com/unclebandit/prospect-outreach/internal/model"
	"github.com/unclebandit/prospect-outreach/internal/repository"
	"github.com/unclebandit/prospect-outreach/internal/schedule"
)

// DefaultDailyLimit matches the provider's safe daily connection-request volume.
const DefaultDailyLimit = 20

type Outcome string

const (
	OutcomeSent           Outcome = "sent"
	OutcomeHandedOff      Outcome = "handed_off"
	OutcomeClaimLost      Outcome = "claim_lost"
	OutcomeFailed         Outcome = "failed"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeQuotaExhausted Outcome = "quota_exhausted"
	OutcomeCancelled      Outcome = "cancelled"
)

// InviteSender is the direct path to the outreach provider.
type InviteSender interface {
	SendInvite(ctx context.Context, req integration.InviteRequest) (*integration.InviteResult, error)
}

// BatchTrigger hands a batch to the workflow orchestrator.
type BatchTrigger interface {
	TriggerBatch(ctx context.Context, job integration.BatchJob) error
}

// SendQuota caps sends per account per day.
type SendQuota interface {
	Reserve(ctx context.Context, accountID string, limit int, now time.Time) (bool, error)
	Release(ctx context.Context, accountID string, now time.Time) error
}

type ProspectOutcome struct {
	ProspectID string  `json:"prospect_id"`
	CampaignID string  `json:"campaign_id"`
	Outcome    Outcome `json:"outcome"`
	Error      string  `json:"error,omitempty"`
}

type CampaignSkip struct {
	CampaignID string `json:"campaign_id"`
	Reason     string `json:"reason"`
}

// DispatchSummary aggregates one pass. Skipped counts due prospects that
// were never attempted; Failed covers definite errors and timeouts.
type DispatchSummary struct {
	PassID           string            `json:"pass_id"`
	StartedAt        time.Time         `json:"started_at"`
	Duration         time.Duration     `json:"duration"`
	Due              int               `json:"due"`
	Sent             int               `json:"sent"`
	HandedOff        int               `json:"handed_off"`
	Skipped          int               `json:"skipped"`
	Failed           int               `json:"failed"`
	ClaimLost        int               `json:"claim_lost"`
	Outcomes         []ProspectOutcome `json:"outcomes"`
	SkippedCampaigns []CampaignSkip    `json:"skipped_campaigns,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
}

func (s *DispatchSummary) record(p *model.Prospect, outcome Outcome, err error) {
	o := ProspectOutcome{ProspectID: p.ID, CampaignID: p.CampaignID, Outcome: outcome}
	if err != nil {
		o.Error = err.Error()
	}
	s.Outcomes = append(s.Outcomes, o)

	switch outcome {
	case OutcomeSent:
		s.Sent++
	case OutcomeHandedOff:
		s.HandedOff++
	case OutcomeClaimLost:
		s.ClaimLost++
	case OutcomeFailed, OutcomeTimeout:
		s.Failed++
	case OutcomeQuotaExhausted, OutcomeCancelled:
		s.Skipped++
	}
	metrics.RecordDispatchOutcome(string(outcome))
}

func (s *DispatchSummary) skipCampaign(campaignID, reason string) {
	s.SkippedCampaigns = append(s.SkippedCampaigns, CampaignSkip{CampaignID: campaignID, Reason: reason})
	metrics.RecordCampaignSkipped(reason)
}

// Dispatcher runs dispatch passes: eligibility, due selection, claim, send
// or hand-off, mark sent.
type Dispatcher struct {
	Tracker   *Tracker
	Campaigns repository.CampaignRepositoryInterface
	Accounts  repository.AccountRepositoryInterface
	Evaluator *schedule.Evaluator
	Sender    InviteSender
	Webhook   BatchTrigger
	Quota     SendQuota
	Limiter   *rate.Limiter
	Log       *zap.Logger

	SendTimeout       time.Duration
	DefaultDailyLimit int
	CallbackURL       string
	Now               func() time.Time
}

// NewPacer spaces direct sends to perMinute. Zero or less disables pacing.
func NewPacer(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) newSummary() *DispatchSummary {
	return &DispatchSummary{PassID: uuid.NewString(), StartedAt: d.now(), Outcomes: []ProspectOutcome{}}
}

// RunPass dispatches every active campaign once. Cancelling ctx stops new
// claims; sends already in flight finish or time out.
func (d *Dispatcher) RunPass(ctx context.Context) (*DispatchSummary, error) {
	sum := d.newSummary()
	start := time.Now()

	campaigns, err := d.Campaigns.ListByStatus(ctx, model.CampaignActive)
	if err != nil {
		return nil, err
	}

	for _, c := range campaigns {
		if ctx.Err() != nil {
			break
		}
		if err := d.dispatchCampaign(ctx, c, sum); err != nil {
			d.Log.Error("campaign dispatch failed",
				zap.String("pass_id", sum.PassID),
				zap.String("campaign_id", c.ID),
				zap.Error(err),
			)
			sum.skipCampaign(c.ID, "error")
		}
	}

	d.finish(sum, start)
	return sum, nil
}

// DispatchCampaign runs a pass over one campaign, for manual triggers.
func (d *Dispatcher) DispatchCampaign(ctx context.Context, campaignID string) (*DispatchSummary, error) {
	c, err := d.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignActive {
		return nil, appErrors.NewValidation("status", "campaign "+campaignID+" is "+string(c.Status)+", not active")
	}

	sum := d.newSummary()
	start := time.Now()
	if err := d.dispatchCampaign(ctx, c, sum); err != nil {
		return nil, err
	}
	d.finish(sum, start)
	return sum, nil
}

func (d *Dispatcher) finish(sum *DispatchSummary, start time.Time) {
	sum.Duration = time.Since(start)
	metrics.ObservePassDuration(sum.Duration)
	d.Log.Info("dispatch pass finished",
		zap.String("pass_id", sum.PassID),
		zap.Int("due", sum.Due),
		zap.Int("sent", sum.Sent),
		zap.Int("handed_off", sum.HandedOff),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Int("claim_lost", sum.ClaimLost),
		zap.Int("campaigns_skipped", len(sum.SkippedCampaigns)),
		zap.Duration("duration", sum.Duration),
	)
}

func (d *Dispatcher) evaluator() *schedule.Evaluator {
	if d.Evaluator == nil {
		d.Evaluator = schedule.NewEvaluator(nil)
	}
	return d.Evaluator
}

func (d *Dispatcher) dispatchCampaign(ctx context.Context, c *model.Campaign, sum *DispatchSummary) error {
	now := d.now()

	elig := d.evaluator().IsEligibleNow(schedule.ConfigFromCampaign(c), now)
	for _, w := range elig.Warnings {
		sum.Warnings = append(sum.Warnings, c.ID+": "+w.Error())
		d.Log.Warn("campaign schedule misconfigured",
			zap.String("campaign_id", c.ID),
			zap.String("field", w.Field),
			zap.String("message", w.Message),
		)
	}
	if !elig.Eligible {
		sum.skipCampaign(c.ID, string(elig.Reason))
		return nil
	}

	if c.OutreachAccountID == "" {
		sum.skipCampaign(c.ID, "no_account")
		return nil
	}
	webhook := c.DispatchMode == model.DispatchWebhook
	if (webhook && d.Webhook == nil) || (!webhook && d.Sender == nil) {
		sum.skipCampaign(c.ID, "no_transport")
		return nil
	}
	template := c.MessageTemplates.FirstStep()
	if strings.TrimSpace(template) == "" && c.Channel != model.ChannelLinkedIn {
		sum.skipCampaign(c.ID, "no_template")
		return nil
	}

	account, err := d.Accounts.GetByID(ctx, c.OutreachAccountID)
	if err != nil {
		return err
	}

	due, err := d.Tracker.ClaimDueForDispatch(ctx, c.ID, now)
	if err != nil {
		return err
	}
	sum.Due += len(due)
	if len(due) == 0 {
		return nil
	}

	if webhook {
		d.handOff(ctx, c, account, template, due, sum)
		return nil
	}
	d.sendDirect(ctx, c, account, template, due, sum)
	return nil
}

func (d *Dispatcher) dailyLimit(a *model.OutreachAccount) int {
	if a.DailyLimit > 0 {
		return a.DailyLimit
	}
	if d.DefaultDailyLimit > 0 {
		return d.DefaultDailyLimit
	}
	return DefaultDailyLimit
}

// reserve takes one unit of the account's daily allowance. Without a quota
// store every send is allowed; a failing store allows none.
func (d *Dispatcher) reserve(ctx context.Context, a *model.OutreachAccount, now time.Time) (bool, error) {
	if d.Quota == nil {
		return true, nil
	}
	return d.Quota.Reserve(ctx, a.ID, d.dailyLimit(a), now)
}

func (d *Dispatcher) unreserve(ctx context.Context, a *model.OutreachAccount, now time.Time) {
	if d.Quota == nil {
		return
	}
	if err := d.Quota.Release(ctx, a.ID, now); err != nil {
		d.Log.Warn("quota release failed", zap.String("account_id", a.ID), zap.Error(err))
	}
}

// claim reserves quota and then the prospect. It records the outcome and
// returns false when the prospect must not be sent.
func (d *Dispatcher) claim(ctx context.Context, p *model.Prospect, a *model.OutreachAccount, now time.Time, sum *DispatchSummary) (bool, bool) {
	ok, err := d.reserve(ctx, a, now)
	if err != nil {
		sum.record(p, OutcomeQuotaExhausted, err)
		return false, true
	}
	if !ok {
		sum.record(p, OutcomeQuotaExhausted, nil)
		return false, true
	}

	if err := d.Tracker.Claim(ctx, p.ID, sum.PassID, now); err != nil {
		d.unreserve(ctx, a, now)
		if errors.Is(err, appErrors.ErrClaimLost) {
			d.Log.Debug("claim lost", zap.String("pass_id", sum.PassID), zap.String("prospect_id", p.ID))
			sum.record(p, OutcomeClaimLost, nil)
			return false, false
		}
		sum.record(p, OutcomeFailed, err)
		return false, false
	}
	return true, false
}

// ambiguous reports errors after which the remote side may already have acted.
func ambiguous(err error) bool {
	return appErrors.IsProviderTimeout(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func (d *Dispatcher) sendTimeout() time.Duration {
	if d.SendTimeout > 0 {
		return d.SendTimeout
	}
	return 30 * time.Second
}

func (d *Dispatcher) sendDirect(ctx context.Context, c *model.Campaign, a *model.OutreachAccount, template string, due []*model.Prospect, sum *DispatchSummary) {
	for i, p := range due {
		if ctx.Err() != nil {
			sum.record(p, OutcomeCancelled, ctx.Err())
			continue
		}
		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				sum.record(p, OutcomeCancelled, err)
				continue
			}
		}

		now := d.now()
		claimed, exhausted := d.claim(ctx, p, a, now, sum)
		if exhausted {
			for _, rest := range due[i+1:] {
				sum.record(rest, OutcomeQuotaExhausted, nil)
			}
			return
		}
		if !claimed {
			continue
		}

		// A claimed send runs to completion even when the pass is cancelled.
		claimCtx := context.WithoutCancel(ctx)
		sendCtx, cancel := context.WithTimeout(claimCtx, d.sendTimeout())
		res, err := d.Sender.SendInvite(sendCtx, integration.InviteRequest{
			AccountCredential:   a.ExternalAccountID,
			RecipientIdentifier: p.ProfileURL,
			MessageText:         RenderProspectMessage(template, p),
		})
		cancel()

		if err != nil {
			if ambiguous(err) {
				// The claim and the quota unit stay held until the lease
				// runs out; the prospect stays queued.
				metrics.RecordIntegrationError("provider", "timeout")
				d.Log.Warn("provider send outcome unknown",
					zap.String("pass_id", sum.PassID),
					zap.String("prospect_id", p.ID),
					zap.Error(err),
				)
				sum.record(p, OutcomeTimeout, err)
				continue
			}
			metrics.RecordIntegrationError("provider", "error")
			if rerr := d.Tracker.Release(claimCtx, p.ID, sum.PassID, err.Error()); rerr != nil {
				d.Log.Warn("claim release failed", zap.String("prospect_id", p.ID), zap.Error(rerr))
			}
			d.unreserve(claimCtx, a, now)
			sum.record(p, OutcomeFailed, err)
			continue
		}

		_, err = d.Tracker.MarkSent(claimCtx, p.ID, d.now(), model.ChannelResult{
			Channel:           c.Channel,
			AccountID:         a.ID,
			ProviderMessageID: res.ProviderMessageID,
		})
		if err != nil {
			d.Log.Error("send succeeded but was not recorded",
				zap.String("pass_id", sum.PassID),
				zap.String("prospect_id", p.ID),
				zap.String("provider_message_id", res.ProviderMessageID),
				zap.Error(err),
			)
			sum.record(p, OutcomeFailed, err)
			continue
		}
		sum.record(p, OutcomeSent, nil)
	}
}

func (d *Dispatcher) handOff(ctx context.Context, c *model.Campaign, a *model.OutreachAccount, template string, due []*model.Prospect, sum *DispatchSummary) {
	now := d.now()
	claimed := make([]*model.Prospect, 0, len(due))
	batch := make([]integration.BatchProspect, 0, len(due))

	for i, p := range due {
		if ctx.Err() != nil {
			sum.record(p, OutcomeCancelled, ctx.Err())
			continue
		}
		ok, exhausted := d.claim(ctx, p, a, now, sum)
		if exhausted {
			for _, rest := range due[i+1:] {
				sum.record(rest, OutcomeQuotaExhausted, nil)
			}
			break
		}
		if !ok {
			continue
		}
		claimed = append(claimed, p)
		batch = append(batch, integration.BatchProspect{
			ID:          p.ID,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			CompanyName: p.CompanyName,
			Title:       p.Title,
			ProfileURL:  p.ProfileURL,
			Message:     RenderProspectMessage(template, p),
		})
	}
	if len(claimed) == 0 {
		return
	}

	job := integration.BatchJob{
		WorkspaceID:      c.WorkspaceID,
		CampaignID:       c.ID,
		Prospects:        batch,
		MessageTemplates: c.MessageTemplates,
		Credentials: integration.Credentials{
			AccountID:         a.ID,
			Provider:          a.Provider,
			ExternalAccountID: a.ExternalAccountID,
		},
		CallbackURL: d.CallbackURL,
	}

	claimCtx := context.WithoutCancel(ctx)
	hookCtx, cancel := context.WithTimeout(claimCtx, d.sendTimeout())
	err := d.Webhook.TriggerBatch(hookCtx, job)
	cancel()

	switch {
	case err == nil:
		// Accepted prospects are pinned until the orchestrator reports back.
		at := d.now()
		for _, p := range claimed {
			if merr := d.Tracker.MarkHandedOff(claimCtx, p.ID, sum.PassID, at); merr != nil {
				d.Log.Error("hand-off accepted but not pinned",
					zap.String("pass_id", sum.PassID),
					zap.String("prospect_id", p.ID),
					zap.Error(merr),
				)
			}
			sum.record(p, OutcomeHandedOff, nil)
		}
	case ambiguous(err):
		metrics.RecordIntegrationError("orchestrator", "timeout")
		for _, p := range claimed {
			sum.record(p, OutcomeTimeout, err)
		}
	default:
		metrics.RecordIntegrationError("orchestrator", "error")
		for _, p := range claimed {
			if rerr := d.Tracker.Release(claimCtx, p.ID, sum.PassID, err.Error()); rerr != nil {
				d.Log.Warn("claim release failed", zap.String("prospect_id", p.ID), zap.Error(rerr))
			}
			d.unreserve(claimCtx, a, now)
			sum.record(p, OutcomeFailed, err)
		}
	}
}
