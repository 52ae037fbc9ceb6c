package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
	"github.com/unclebandit/prospect-outreach/internal/model"
)

// AccountRepositoryInterface defines methods used by service
type AccountRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.OutreachAccount, error)
	Create(ctx context.Context, a *model.OutreachAccount) error
}

// AccountRepository is the concrete implementation
type AccountRepository struct {
	DB *sql.DB
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.OutreachAccount, error) {
	query := `
        SELECT id, workspace_id, provider, external_account_id, name, daily_limit, created_at
        FROM outreach_accounts
        WHERE id = $1
    `
	var a model.OutreachAccount
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.WorkspaceID, &a.Provider, &a.ExternalAccountID, &a.Name, &a.DailyLimit, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewAccountNotFound(id)
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepository) Create(ctx context.Context, a *model.OutreachAccount) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	query := `
        INSERT INTO outreach_accounts (id, workspace_id, provider, external_account_id, name, daily_limit, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := r.DB.ExecContext(ctx, query, a.ID, a.WorkspaceID, a.Provider, a.ExternalAccountID, a.Name, a.DailyLimit, a.CreatedAt)
	return err
}

var _ AccountRepositoryInterface = (*AccountRepository)(nil)
