package model

import "time"

// OutreachAccount is a provider credential owned by a workspace.
type OutreachAccount struct {
	ID                string    `db:"id" json:"id"`
	WorkspaceID       string    `db:"workspace_id" json:"workspace_id"`
	Provider          string    `db:"provider" json:"provider"`
	ExternalAccountID string    `db:"external_account_id" json:"external_account_id"`
	Name              string    `db:"name" json:"name"`
	DailyLimit        int       `db:"daily_limit" json:"daily_limit"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
