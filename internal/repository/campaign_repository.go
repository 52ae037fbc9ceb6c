package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
	"github.com/unclebandit/prospect-outreach/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	UpdateStatus(ctx context.Context, id string, from, to model.CampaignStatus) (int64, error)
	ListCampaigns(ctx context.Context, offset, limit int, workspaceID, channel, status string) ([]*model.Campaign, int, error)
	ListByStatus(ctx context.Context, status model.CampaignStatus) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, workspace_id, name, channel, status, timezone, working_hours_start, working_hours_end,
        skip_weekends, skip_holidays, holiday_country, outreach_account_id, message_templates, dispatch_mode,
        created_at, updated_at`

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.WorkspaceID, &c.Name, &c.Channel, &c.Status, &c.Timezone, &c.WorkingHoursStart, &c.WorkingHoursEnd,
		&c.SkipWeekends, &c.SkipHolidays, &c.HolidayCountry, &c.OutreachAccountID, &c.MessageTemplates, &c.DispatchMode,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	query := `
        INSERT INTO campaigns (id, workspace_id, name, channel, status, timezone, working_hours_start, working_hours_end,
            skip_weekends, skip_holidays, holiday_country, outreach_account_id, message_templates, dispatch_mode, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `
	_, err := r.DB.ExecContext(ctx, query,
		c.ID, c.WorkspaceID, c.Name, c.Channel, c.Status, c.Timezone, c.WorkingHoursStart, c.WorkingHoursEnd,
		c.SkipWeekends, c.SkipHolidays, c.HolidayCountry, c.OutreachAccountID, c.MessageTemplates, c.DispatchMode, c.CreatedAt,
	)
	return err
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

// UpdateStatus only applies when the campaign is still in from.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id string, from, to model.CampaignStatus) (int64, error) {
	query := `UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	res, err := r.DB.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, workspaceID, channel, status string) ([]*model.Campaign, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argPos := 1

	if workspaceID != "" {
		where += fmt.Sprintf(" AND workspace_id = $%d", argPos)
		args = append(args, workspaceID)
		argPos++
	}
	if channel != "" {
		where += fmt.Sprintf(" AND channel = $%d", argPos)
		args = append(args, channel)
		argPos++
	}
	if status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

func (r *CampaignRepository) ListByStatus(ctx context.Context, status model.CampaignStatus) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
