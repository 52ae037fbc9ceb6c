package model

import "time"

type Prospect struct {
	ID                   string         `db:"id" json:"id"`
	CampaignID           string         `db:"campaign_id" json:"campaign_id"`
	WorkspaceID          string         `db:"workspace_id" json:"workspace_id"`
	FirstName            string         `db:"first_name" json:"first_name"`
	LastName             string         `db:"last_name" json:"last_name"`
	CompanyName          string         `db:"company_name" json:"company_name,omitempty"`
	Title                string         `db:"title" json:"title,omitempty"`
	ProfileURL           string         `db:"profile_url" json:"profile_url"`
	Status               ProspectStatus `db:"status" json:"status"`
	ContactedAt          *time.Time     `db:"contacted_at" json:"contacted_at,omitempty"`
	ScheduledSendAt      *time.Time     `db:"scheduled_send_at" json:"scheduled_send_at,omitempty"`
	ContactedByAccountID *string        `db:"contacted_by_account_id" json:"contacted_by_account_id,omitempty"`
	ProviderMessageID    *string        `db:"provider_message_id" json:"provider_message_id,omitempty"`
	ClaimedBy            *string        `db:"claimed_by" json:"-"`
	ClaimedAt            *time.Time     `db:"claimed_at" json:"-"`
	HandedOffAt          *time.Time     `db:"handed_off_at" json:"handed_off_at,omitempty"`
	LastError            *string        `db:"last_error" json:"last_error,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
}

// IsDue reports whether a queued prospect may be picked up at now. A
// prospect handed to the orchestrator waits for its callback instead.
func (p *Prospect) IsDue(now time.Time) bool {
	return p.Status == ProspectQueued && p.HandedOffAt == nil &&
		p.ScheduledSendAt != nil && !p.ScheduledSendAt.After(now)
}

// ContactInvariantHolds checks that contacted_at is set exactly when the
// status says the prospect was contacted.
func (p *Prospect) ContactInvariantHolds() bool {
	return (p.ContactedAt != nil) == p.Status.IsContacted()
}

// ChannelResult describes a completed send.
type ChannelResult struct {
	Channel           Channel `json:"channel"`
	AccountID         string  `json:"account_id"`
	ProviderMessageID string  `json:"provider_message_id,omitempty"`
}
