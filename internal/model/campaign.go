// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignPaused    CampaignStatus = "paused"
	CampaignArchived  CampaignStatus = "archived"
)

// CanTransition reports whether a campaign may move from s to to.
func (s CampaignStatus) CanTransition(to CampaignStatus) bool {
	switch s {
	case CampaignDraft:
		return to == CampaignActive || to == CampaignScheduled || to == CampaignArchived
	case CampaignScheduled:
		return to == CampaignActive || to == CampaignPaused || to == CampaignArchived
	case CampaignActive:
		return to == CampaignPaused || to == CampaignArchived
	case CampaignPaused:
		return to == CampaignActive || to == CampaignArchived
	case CampaignArchived:
		return false
	}
	return false
}

type DispatchMode string

const (
	DispatchDirect  DispatchMode = "direct"
	DispatchWebhook DispatchMode = "webhook"
)

type Campaign struct {
	ID                string           `db:"id" json:"id"`
	WorkspaceID       string           `db:"workspace_id" json:"workspace_id"`
	Name              string           `db:"name" json:"name"`
	Channel           Channel          `db:"channel" json:"channel"`
	Status            CampaignStatus   `db:"status" json:"status"`
	Timezone          string           `db:"timezone" json:"timezone"`
	WorkingHoursStart int              `db:"working_hours_start" json:"working_hours_start"`
	WorkingHoursEnd   int              `db:"working_hours_end" json:"working_hours_end"`
	SkipWeekends      bool             `db:"skip_weekends" json:"skip_weekends"`
	SkipHolidays      bool             `db:"skip_holidays" json:"skip_holidays"`
	HolidayCountry    string           `db:"holiday_country" json:"holiday_country,omitempty"`
	OutreachAccountID string           `db:"outreach_account_id" json:"outreach_account_id"`
	MessageTemplates  MessageTemplates `db:"message_templates" json:"message_templates"`
	DispatchMode      DispatchMode     `db:"dispatch_mode" json:"dispatch_mode"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time       `db:"updated_at" json:"updated_at,omitempty"`
}
