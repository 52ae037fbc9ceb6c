package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
	"github.com/unclebandit/prospect-outreach/internal/metrics"
	"github.com/unclebandit/prospect-outreach/internal/model"
	"github.com/unclebandit/prospect-outreach/internal/repository"
)

const (
	DefaultClaimLease = 15 * time.Minute
	DefaultBatchSize  = 50
)

// Tracker owns every legal prospect status change.
type Tracker struct {
	Prospects repository.ProspectRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
	Log       *zap.Logger
	Lease     time.Duration
	BatchSize int
}

func NewTracker(prospects repository.ProspectRepositoryInterface, campaigns repository.CampaignRepositoryInterface, log *zap.Logger) *Tracker {
	return &Tracker{
		Prospects: prospects,
		Campaigns: campaigns,
		Log:       log,
		Lease:     DefaultClaimLease,
		BatchSize: DefaultBatchSize,
	}
}

var (
	enqueueFrom  = []model.ProspectStatus{model.ProspectPending, model.ProspectApproved}
	markSentFrom = []model.ProspectStatus{model.ProspectQueued, model.ProspectPending, model.ProspectApproved}
	outcomeFrom  = []model.ProspectStatus{model.ProspectConnectionRequested, model.ProspectMessageSent}
)

func invalid(p *model.Prospect, to model.ProspectStatus, reason string) error {
	return appErrors.NewInvalidTransition(p.ID, string(p.Status), string(to), reason)
}

// Enqueue schedules a pending or approved prospect for dispatch.
func (t *Tracker) Enqueue(ctx context.Context, prospectID string, scheduledSendAt time.Time) (*model.Prospect, error) {
	p, err := t.Prospects.GetByID(ctx, prospectID)
	if err != nil {
		return nil, err
	}
	if p.ContactedAt != nil {
		return nil, invalid(p, model.ProspectQueued, "prospect was already contacted")
	}
	if !p.Status.CanTransition(model.ProspectQueued) {
		return nil, invalid(p, model.ProspectQueued, "")
	}

	n, err := t.Prospects.Enqueue(ctx, prospectID, enqueueFrom, scheduledSendAt.UTC())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, t.lostRace(ctx, prospectID, model.ProspectQueued)
	}
	metrics.RecordTransition(string(p.Status), string(model.ProspectQueued))
	return t.Prospects.GetByID(ctx, prospectID)
}

// ClaimDueForDispatch lists queued prospects whose send time has come. It
// does not mutate anything; pair it with Claim.
func (t *Tracker) ClaimDueForDispatch(ctx context.Context, campaignID string, now time.Time) ([]*model.Prospect, error) {
	limit := t.BatchSize
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	return t.Prospects.ListDue(ctx, campaignID, now, limit)
}

// Claim makes passID the only dispatcher allowed to send to the prospect
// until the lease runs out. Losing returns ErrClaimLost.
func (t *Tracker) Claim(ctx context.Context, prospectID, passID string, now time.Time) error {
	lease := t.Lease
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	n, err := t.Prospects.Claim(ctx, prospectID, passID, now, lease)
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrClaimLost
	}
	return nil
}

// MarkHandedOff pins passID's claim once the orchestrator accepted the
// prospect. The claim then outlives the lease until a callback or a reset.
func (t *Tracker) MarkHandedOff(ctx context.Context, prospectID, passID string, at time.Time) error {
	n, err := t.Prospects.MarkHandedOff(ctx, prospectID, passID, at)
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrClaimLost
	}
	return nil
}

// Release gives the claim back after the provider definitely refused the send.
func (t *Tracker) Release(ctx context.Context, prospectID, passID, reason string) error {
	n, err := t.Prospects.ReleaseClaim(ctx, prospectID, passID, reason)
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrClaimLost
	}
	return nil
}

// MarkSent records a completed send. It is the only path that sets
// contacted_at, and repeating it with the same channel and account is a
// no-op.
func (t *Tracker) MarkSent(ctx context.Context, prospectID string, sentAt time.Time, res model.ChannelResult) (*model.Prospect, error) {
	p, err := t.Prospects.GetByID(ctx, prospectID)
	if err != nil {
		return nil, err
	}
	campaign, err := t.Campaigns.GetByID(ctx, p.CampaignID)
	if err != nil {
		return nil, err
	}

	channel := res.Channel
	if channel == "" {
		channel = campaign.Channel
	}
	target, ok := channel.SentStatus()
	if !ok {
		return nil, invalid(p, model.ProspectStatus("sent"), "unknown channel "+string(channel))
	}

	// One credential per campaign: any other account would be a second send.
	if campaign.OutreachAccountID == "" || res.AccountID != campaign.OutreachAccountID {
		return nil, invalid(p, target, "account "+res.AccountID+" is not the campaign's outreach account")
	}

	if p.Status.IsContacted() {
		if sameSend(p, target, res.AccountID) {
			return p, nil
		}
		return nil, invalid(p, target, "prospect already in a contacted state")
	}
	if !p.Status.CanTransition(target) {
		return nil, invalid(p, target, "")
	}

	n, err := t.Prospects.MarkSent(ctx, prospectID, markSentFrom, repository.SentUpdate{
		Status:            target,
		SentAt:            sentAt.UTC(),
		AccountID:         res.AccountID,
		ProviderMessageID: res.ProviderMessageID,
	})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		cur, err := t.Prospects.GetByID(ctx, prospectID)
		if err != nil {
			return nil, err
		}
		if sameSend(cur, target, res.AccountID) {
			return cur, nil
		}
		if cur.Status.IsContacted() || cur.Status.IsTerminal() {
			return nil, invalid(cur, target, "prospect changed concurrently")
		}
		return nil, appErrors.ErrClaimLost
	}

	metrics.RecordTransition(string(p.Status), string(target))
	t.Log.Info("prospect marked sent",
		zap.String("prospect_id", prospectID),
		zap.String("campaign_id", p.CampaignID),
		zap.String("status", string(target)),
		zap.String("account_id", res.AccountID),
	)
	return t.Prospects.GetByID(ctx, prospectID)
}

func sameSend(p *model.Prospect, target model.ProspectStatus, accountID string) bool {
	return p.Status == target && p.ContactedByAccountID != nil && *p.ContactedByAccountID == accountID
}

// RecordOutcome moves a sent prospect to replied, bounced or failed.
func (t *Tracker) RecordOutcome(ctx context.Context, prospectID string, outcome model.ProspectStatus) (*model.Prospect, error) {
	p, err := t.Prospects.GetByID(ctx, prospectID)
	if err != nil {
		return nil, err
	}
	if !outcome.IsOutcome() {
		return nil, invalid(p, outcome, "not an outcome status")
	}
	if p.Status == outcome {
		return p, nil
	}
	if !p.Status.CanTransition(outcome) {
		return nil, invalid(p, outcome, "")
	}

	n, err := t.Prospects.TransitionStatus(ctx, prospectID, outcomeFrom, outcome)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, t.lostRace(ctx, prospectID, outcome)
	}
	metrics.RecordTransition(string(p.Status), string(outcome))
	return t.Prospects.GetByID(ctx, prospectID)
}

// Approve moves a pending prospect to approved.
func (t *Tracker) Approve(ctx context.Context, prospectID string) (*model.Prospect, error) {
	return t.toggle(ctx, prospectID, model.ProspectApproved)
}

// Reject is terminal.
func (t *Tracker) Reject(ctx context.Context, prospectID string) (*model.Prospect, error) {
	return t.toggle(ctx, prospectID, model.ProspectRejected)
}

func (t *Tracker) toggle(ctx context.Context, prospectID string, to model.ProspectStatus) (*model.Prospect, error) {
	p, err := t.Prospects.GetByID(ctx, prospectID)
	if err != nil {
		return nil, err
	}
	if p.Status == to {
		return p, nil
	}
	if !p.Status.CanTransition(to) || (p.Status != model.ProspectPending && p.Status != model.ProspectApproved) {
		return nil, invalid(p, to, "")
	}

	n, err := t.Prospects.TransitionStatus(ctx, prospectID, []model.ProspectStatus{p.Status}, to)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, t.lostRace(ctx, prospectID, to)
	}
	metrics.RecordTransition(string(p.Status), string(to))
	return t.Prospects.GetByID(ctx, prospectID)
}

// ResetToPending is the operator override for a send that never happened.
// It ignores the lifecycle table and is always logged.
func (t *Tracker) ResetToPending(ctx context.Context, prospectID, operator, reason string) (*model.Prospect, error) {
	if operator == "" {
		return nil, appErrors.NewValidation("operator", "required for a manual reset")
	}
	p, err := t.Prospects.GetByID(ctx, prospectID)
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("prospect_id", prospectID),
		zap.String("campaign_id", p.CampaignID),
		zap.String("previous_status", string(p.Status)),
		zap.String("operator", operator),
		zap.String("reason", reason),
	}
	if p.ContactedAt != nil {
		fields = append(fields, zap.Time("previous_contacted_at", *p.ContactedAt))
	}
	if p.ContactedByAccountID != nil {
		fields = append(fields, zap.String("previous_account_id", *p.ContactedByAccountID))
	}

	n, err := t.Prospects.ResetToPending(ctx, prospectID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, appErrors.NewProspectNotFound(prospectID)
	}
	t.Log.Warn("prospect manually reset to pending", fields...)
	metrics.RecordTransition(string(p.Status), string(model.ProspectPending))
	return t.Prospects.GetByID(ctx, prospectID)
}

// StatusCallback is what the workflow orchestrator reports after it acted.
type StatusCallback struct {
	ProspectID        string     `json:"prospect_id" validate:"required"`
	Status            string     `json:"status" validate:"required"`
	ContactedAt       *time.Time `json:"contacted_at,omitempty"`
	AccountID         string     `json:"account_id,omitempty"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	Error             string     `json:"error,omitempty"`
}

// ApplyCallback routes an orchestrator report through the same rules a
// direct caller gets. Redelivery of an applied callback is a no-op.
func (t *Tracker) ApplyCallback(ctx context.Context, cb StatusCallback, now time.Time) (*model.Prospect, error) {
	status, ok := model.ParseProspectStatus(cb.Status)
	if !ok {
		return nil, appErrors.NewValidation("status", "unknown status "+cb.Status)
	}

	p, err := t.Prospects.GetByID(ctx, cb.ProspectID)
	if err != nil {
		return nil, err
	}

	switch {
	case status.IsSent():
		campaign, err := t.Campaigns.GetByID(ctx, p.CampaignID)
		if err != nil {
			return nil, err
		}
		accountID := cb.AccountID
		if accountID == "" {
			accountID = campaign.OutreachAccountID
		}
		sentAt := now
		if cb.ContactedAt != nil {
			sentAt = *cb.ContactedAt
		}
		return t.MarkSent(ctx, p.ID, sentAt, model.ChannelResult{
			Channel:           channelFor(status, campaign.Channel),
			AccountID:         accountID,
			ProviderMessageID: cb.ProviderMessageID,
		})

	case status == model.ProspectFailed && p.Status == model.ProspectQueued:
		// The orchestrator gave up before sending: the prospect stays queued
		// for a later pass.
		if p.ClaimedBy != nil {
			if err := t.Release(ctx, p.ID, *p.ClaimedBy, callbackError(cb)); err != nil && !errors.Is(err, appErrors.ErrClaimLost) {
				return nil, err
			}
		}
		t.Log.Warn("orchestrator reported a failed send",
			zap.String("prospect_id", p.ID), zap.String("error", cb.Error))
		return t.Prospects.GetByID(ctx, p.ID)

	case status.IsOutcome():
		return t.RecordOutcome(ctx, p.ID, status)
	}

	return nil, invalid(p, status, "callbacks may only report sends or outcomes")
}

func channelFor(status model.ProspectStatus, campaignChannel model.Channel) model.Channel {
	if s, ok := campaignChannel.SentStatus(); ok && s == status {
		return campaignChannel
	}
	if status == model.ProspectConnectionRequested {
		return model.ChannelLinkedIn
	}
	return model.ChannelLinkedInMessage
}

func callbackError(cb StatusCallback) string {
	if cb.Error != "" {
		return cb.Error
	}
	return "orchestrator reported failure"
}

// lostRace explains a conditional update that matched nothing.
func (t *Tracker) lostRace(ctx context.Context, prospectID string, to model.ProspectStatus) error {
	cur, err := t.Prospects.GetByID(ctx, prospectID)
	if err != nil {
		return err
	}
	if !cur.Status.CanTransition(to) {
		return invalid(cur, to, "prospect changed concurrently")
	}
	return appErrors.ErrClaimLost
}
