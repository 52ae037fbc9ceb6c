// Package integration holds the shapes and failure handling shared by the
// outreach provider and workflow orchestrator clients.
package integration

import "github.com/unclebandit/prospect-outreach/internal/model"

// InviteRequest is the direct-send call to the outreach provider.
type InviteRequest struct {
	AccountCredential   string `json:"account_credential"`
	RecipientIdentifier string `json:"recipient_identifier"`
	MessageText         string `json:"message_text"`
}

// InviteResult is the provider's answer. Status is "ok" or "error".
type InviteResult struct {
	Status            string `json:"status"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// BatchProspect is one recipient inside an orchestrator job.
type BatchProspect struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	CompanyName string `json:"company_name,omitempty"`
	Title       string `json:"title,omitempty"`
	ProfileURL  string `json:"profile_url"`
	Message     string `json:"message"`
}

// Credentials names the single account the orchestrator may send from.
type Credentials struct {
	AccountID         string `json:"account_id"`
	Provider          string `json:"provider"`
	ExternalAccountID string `json:"external_account_id"`
}

// BatchJob is posted to the orchestrator webhook.
type BatchJob struct {
	WorkspaceID      string                 `json:"workspace_id"`
	CampaignID       string                 `json:"campaign_id"`
	Prospects        []BatchProspect        `json:"prospects"`
	MessageTemplates model.MessageTemplates `json:"message_templates"`
	Credentials      Credentials            `json:"credentials"`
	CallbackURL      string                 `json:"callback_url,omitempty"`
}
