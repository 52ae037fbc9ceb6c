package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
	"github.com/unclebandit/prospect-outreach/internal/model"
)

// SentUpdate carries the columns written by a successful send.
type SentUpdate struct {
	Status            model.ProspectStatus
	SentAt            time.Time
	AccountID         string
	ProviderMessageID string
}

// ProspectRepositoryInterface is the tenant data store for prospects. Every
// mutating method is a conditional update and returns the affected row
// count; zero means the row no longer matched.
type ProspectRepositoryInterface interface {
	Create(ctx context.Context, p *model.Prospect) error
	GetByID(ctx context.Context, id string) (*model.Prospect, error)
	ListByCampaign(ctx context.Context, campaignID string, statuses []model.ProspectStatus) ([]*model.Prospect, error)
	ListDue(ctx context.Context, campaignID string, now time.Time, limit int) ([]*model.Prospect, error)
	ListContactInconsistent(ctx context.Context, workspaceID string) ([]*model.Prospect, error)
	CountByStatus(ctx context.Context, campaignID string) (map[model.ProspectStatus]int, error)

	TransitionStatus(ctx context.Context, id string, from []model.ProspectStatus, to model.ProspectStatus) (int64, error)
	Enqueue(ctx context.Context, id string, from []model.ProspectStatus, scheduledAt time.Time) (int64, error)
	MarkSent(ctx context.Context, id string, from []model.ProspectStatus, u SentUpdate) (int64, error)
	Claim(ctx context.Context, id, passID string, now time.Time, lease time.Duration) (int64, error)
	MarkHandedOff(ctx context.Context, id, passID string, at time.Time) (int64, error)
	ReleaseClaim(ctx context.Context, id, passID, lastError string) (int64, error)
	ResetToPending(ctx context.Context, id string) (int64, error)
}

// ProspectRepository is the Postgres implementation.
type ProspectRepository struct {
	DB *sql.DB
}

const prospectColumns = `id, campaign_id, workspace_id, first_name, last_name, company_name, title, profile_url,
        status, contacted_at, scheduled_send_at, contacted_by_account_id, provider_message_id,
        claimed_by, claimed_at, handed_off_at, last_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProspect(row rowScanner) (*model.Prospect, error) {
	var p model.Prospect
	err := row.Scan(
		&p.ID, &p.CampaignID, &p.WorkspaceID, &p.FirstName, &p.LastName, &p.CompanyName, &p.Title, &p.ProfileURL,
		&p.Status, &p.ContactedAt, &p.ScheduledSendAt, &p.ContactedByAccountID, &p.ProviderMessageID,
		&p.ClaimedBy, &p.ClaimedAt, &p.HandedOffAt, &p.LastError, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanProspects(rows *sql.Rows) ([]*model.Prospect, error) {
	defer rows.Close()
	out := []*model.Prospect{}
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func statusArray(statuses []model.ProspectStatus) any {
	s := make([]string, len(statuses))
	for i, st := range statuses {
		s[i] = string(st)
	}
	return pq.Array(s)
}

// contactedStatuses are the states that require contacted_at.
func contactedStatuses() []model.ProspectStatus {
	var out []model.ProspectStatus
	for _, s := range model.AllProspectStatuses {
		if s.IsContacted() {
			out = append(out, s)
		}
	}
	return out
}

func (r *ProspectRepository) Create(ctx context.Context, p *model.Prospect) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = model.ProspectPending
	}
	query := `
        INSERT INTO prospects (id, campaign_id, workspace_id, first_name, last_name, company_name, title, profile_url, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
    `
	_, err := r.DB.ExecContext(ctx, query, p.ID, p.CampaignID, p.WorkspaceID, p.FirstName, p.LastName,
		p.CompanyName, p.Title, p.ProfileURL, p.Status, now)
	return err
}

func (r *ProspectRepository) GetByID(ctx context.Context, id string) (*model.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects WHERE id = $1`
	p, err := scanProspect(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewProspectNotFound(id)
		}
		return nil, err
	}
	return p, nil
}

func (r *ProspectRepository) ListByCampaign(ctx context.Context, campaignID string, statuses []model.ProspectStatus) ([]*model.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects WHERE campaign_id = $1`
	args := []any{campaignID}
	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		args = append(args, statusArray(statuses))
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanProspects(rows)
}

// ListDue is a plain read. Claims are taken one row at a time with Claim.
func (r *ProspectRepository) ListDue(ctx context.Context, campaignID string, now time.Time, limit int) ([]*model.Prospect, error) {
	query := `
        SELECT ` + prospectColumns + `
        FROM prospects
        WHERE campaign_id = $1 AND status = 'queued' AND scheduled_send_at <= $2 AND handed_off_at IS NULL
        ORDER BY scheduled_send_at, id
        LIMIT $3
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID, now, limit)
	if err != nil {
		return nil, err
	}
	return scanProspects(rows)
}

// ListContactInconsistent returns rows where contacted_at disagrees with
// status. An empty workspaceID scans every tenant.
func (r *ProspectRepository) ListContactInconsistent(ctx context.Context, workspaceID string) ([]*model.Prospect, error) {
	query := `
        SELECT ` + prospectColumns + `
        FROM prospects
        WHERE ((contacted_at IS NULL AND status = ANY($1))
            OR (contacted_at IS NOT NULL AND NOT (status = ANY($1))))`
	args := []any{statusArray(contactedStatuses())}
	if workspaceID != "" {
		query += ` AND workspace_id = $2`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY workspace_id, campaign_id, id`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanProspects(rows)
}

func (r *ProspectRepository) CountByStatus(ctx context.Context, campaignID string) (map[model.ProspectStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM prospects WHERE campaign_id = $1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[model.ProspectStatus]int, len(model.AllProspectStatuses))
	for _, s := range model.AllProspectStatuses {
		stats[s] = 0
	}
	for rows.Next() {
		var status model.ProspectStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (r *ProspectRepository) TransitionStatus(ctx context.Context, id string, from []model.ProspectStatus, to model.ProspectStatus) (int64, error) {
	query := `UPDATE prospects SET status = $2, updated_at = NOW() WHERE id = $1 AND status = ANY($3)`
	return r.exec(ctx, query, id, to, statusArray(from))
}

func (r *ProspectRepository) Enqueue(ctx context.Context, id string, from []model.ProspectStatus, scheduledAt time.Time) (int64, error) {
	query := `
        UPDATE prospects
        SET status = 'queued', scheduled_send_at = $2, last_error = NULL, updated_at = NOW()
        WHERE id = $1 AND status = ANY($3) AND contacted_at IS NULL
    `
	return r.exec(ctx, query, id, scheduledAt, statusArray(from))
}

// MarkSent is the only statement that writes contacted_at.
func (r *ProspectRepository) MarkSent(ctx context.Context, id string, from []model.ProspectStatus, u SentUpdate) (int64, error) {
	query := `
        UPDATE prospects
        SET status = $2, contacted_at = $3, contacted_by_account_id = $4, provider_message_id = NULLIF($5, ''),
            claimed_by = NULL, claimed_at = NULL, handed_off_at = NULL, last_error = NULL, updated_at = NOW()
        WHERE id = $1 AND status = ANY($6) AND contacted_at IS NULL
    `
	return r.exec(ctx, query, id, u.Status, u.SentAt, u.AccountID, u.ProviderMessageID, statusArray(from))
}

// Claim takes the dispatch lease on a queued prospect. A lease older than
// lease is treated as abandoned unless the row was handed off.
func (r *ProspectRepository) Claim(ctx context.Context, id, passID string, now time.Time, lease time.Duration) (int64, error) {
	query := `
        UPDATE prospects
        SET claimed_by = $2, claimed_at = $3, updated_at = $3
        WHERE id = $1 AND status = 'queued' AND handed_off_at IS NULL AND (claimed_by IS NULL OR claimed_at < $4)
    `
	return r.exec(ctx, query, id, passID, now, now.Add(-lease))
}

// MarkHandedOff pins a claim after the orchestrator accepted the batch. The
// claim no longer expires; only a release or a reset clears it.
func (r *ProspectRepository) MarkHandedOff(ctx context.Context, id, passID string, at time.Time) (int64, error) {
	query := `
        UPDATE prospects
        SET handed_off_at = $3, updated_at = $3
        WHERE id = $1 AND status = 'queued' AND claimed_by = $2
    `
	return r.exec(ctx, query, id, passID, at)
}

func (r *ProspectRepository) ReleaseClaim(ctx context.Context, id, passID, lastError string) (int64, error) {
	query := `
        UPDATE prospects
        SET claimed_by = NULL, claimed_at = NULL, handed_off_at = NULL, last_error = NULLIF($3, ''), updated_at = NOW()
        WHERE id = $1 AND claimed_by = $2
    `
	return r.exec(ctx, query, id, passID, lastError)
}

func (r *ProspectRepository) ResetToPending(ctx context.Context, id string) (int64, error) {
	query := `
        UPDATE prospects
        SET status = 'pending', contacted_at = NULL, scheduled_send_at = NULL, contacted_by_account_id = NULL,
            provider_message_id = NULL, claimed_by = NULL, claimed_at = NULL, handed_off_at = NULL, last_error = NULL,
            updated_at = NOW()
        WHERE id = $1
    `
	return r.exec(ctx, query, id)
}

func (r *ProspectRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prospects update: %w", err)
	}
	return res.RowsAffected()
}

var _ ProspectRepositoryInterface = (*ProspectRepository)(nil)
