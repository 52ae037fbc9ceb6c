package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
	"github.com/unclebandit/prospect-outreach/internal/model"
)

// NewSupabaseClient connects with the service-role key. The key bypasses row
// level security, so every query below filters by id or workspace itself.
func NewSupabaseClient(url, serviceKey string) (*supabase.Client, error) {
	client, err := supabase.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return client, nil
}

// supabaseProspect mirrors the prospects row including the claim columns
// that model.Prospect hides from JSON.
type supabaseProspect struct {
	model.Prospect
	ClaimedBy *string    `json:"claimed_by"`
	ClaimedAt *time.Time `json:"claimed_at"`
}

func (s supabaseProspect) toModel() *model.Prospect {
	p := s.Prospect
	p.ClaimedBy = s.ClaimedBy
	p.ClaimedAt = s.ClaimedAt
	return &p
}

func decodeProspects(body []byte) ([]*model.Prospect, error) {
	var rows []supabaseProspect
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode prospects: %w", err)
	}
	out := make([]*model.Prospect, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func statusList(statuses []model.ProspectStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// SupabaseProspectRepo talks to the prospects table through PostgREST.
// Conditional updates ask for the updated rows back and count them.
type SupabaseProspectRepo struct {
	Client *supabase.Client
}

const prospectsTable = "prospects"

func (r *SupabaseProspectRepo) Create(_ context.Context, p *model.Prospect) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		p.Status = model.ProspectPending
	}
	_, _, err := r.Client.From(prospectsTable).Insert(p, false, "", "minimal", "").Execute()
	return err
}

func (r *SupabaseProspectRepo) GetByID(_ context.Context, id string) (*model.Prospect, error) {
	body, _, err := r.Client.From(prospectsTable).Select("*", "", false).Eq("id", id).Execute()
	if err != nil {
		return nil, err
	}
	rows, err := decodeProspects(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, appErrors.NewProspectNotFound(id)
	}
	return rows[0], nil
}

func (r *SupabaseProspectRepo) ListByCampaign(_ context.Context, campaignID string, statuses []model.ProspectStatus) ([]*model.Prospect, error) {
	q := r.Client.From(prospectsTable).Select("*", "", false).Eq("campaign_id", campaignID)
	if len(statuses) > 0 {
		q = q.In("status", statusList(statuses))
	}
	body, _, err := q.Order("created_at", &postgrest.OrderOpts{Ascending: true}).Execute()
	if err != nil {
		return nil, err
	}
	return decodeProspects(body)
}

func (r *SupabaseProspectRepo) ListDue(_ context.Context, campaignID string, now time.Time, limit int) ([]*model.Prospect, error) {
	body, _, err := r.Client.From(prospectsTable).Select("*", "", false).
		Eq("campaign_id", campaignID).
		Eq("status", string(model.ProspectQueued)).
		Lte("scheduled_send_at", ts(now)).
		Is("handed_off_at", "null").
		Order("scheduled_send_at", &postgrest.OrderOpts{Ascending: true}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, err
	}
	return decodeProspects(body)
}

func (r *SupabaseProspectRepo) ListContactInconsistent(_ context.Context, workspaceID string) ([]*model.Prospect, error) {
	contacted := strings.Join(statusList(contactedStatuses()), ",")
	filter := fmt.Sprintf("and(contacted_at.is.null,status.in.(%s)),and(contacted_at.not.is.null,status.not.in.(%s))", contacted, contacted)

	q := r.Client.From(prospectsTable).Select("*", "", false).Or(filter, "")
	if workspaceID != "" {
		q = q.Eq("workspace_id", workspaceID)
	}
	body, _, err := q.Execute()
	if err != nil {
		return nil, err
	}
	return decodeProspects(body)
}

func (r *SupabaseProspectRepo) CountByStatus(_ context.Context, campaignID string) (map[model.ProspectStatus]int, error) {
	var rows []struct {
		Status model.ProspectStatus `json:"status"`
	}
	if _, err := r.Client.From(prospectsTable).Select("status", "", false).Eq("campaign_id", campaignID).ExecuteTo(&rows); err != nil {
		return nil, err
	}
	stats := make(map[model.ProspectStatus]int, len(model.AllProspectStatuses))
	for _, s := range model.AllProspectStatuses {
		stats[s] = 0
	}
	for _, row := range rows {
		stats[row.Status]++
	}
	return stats, nil
}

func (r *SupabaseProspectRepo) updated(q *postgrest.FilterBuilder) (int64, error) {
	body, _, err := q.Execute()
	if err != nil {
		return 0, fmt.Errorf("prospects update: %w", err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, fmt.Errorf("prospects update: %w", err)
	}
	return int64(len(rows)), nil
}

func (r *SupabaseProspectRepo) patch(values map[string]any) *postgrest.FilterBuilder {
	values["updated_at"] = ts(time.Now())
	return r.Client.From(prospectsTable).Update(values, "representation", "")
}

func (r *SupabaseProspectRepo) TransitionStatus(_ context.Context, id string, from []model.ProspectStatus, to model.ProspectStatus) (int64, error) {
	return r.updated(r.patch(map[string]any{"status": to}).
		Eq("id", id).In("status", statusList(from)))
}

func (r *SupabaseProspectRepo) Enqueue(_ context.Context, id string, from []model.ProspectStatus, scheduledAt time.Time) (int64, error) {
	return r.updated(r.patch(map[string]any{
		"status":            model.ProspectQueued,
		"scheduled_send_at": ts(scheduledAt),
		"last_error":        nil,
	}).Eq("id", id).In("status", statusList(from)).Is("contacted_at", "null"))
}

func (r *SupabaseProspectRepo) MarkSent(_ context.Context, id string, from []model.ProspectStatus, u SentUpdate) (int64, error) {
	var providerID any
	if u.ProviderMessageID != "" {
		providerID = u.ProviderMessageID
	}
	return r.updated(r.patch(map[string]any{
		"status":                  u.Status,
		"contacted_at":            ts(u.SentAt),
		"contacted_by_account_id": u.AccountID,
		"provider_message_id":     providerID,
		"claimed_by":              nil,
		"claimed_at":              nil,
		"handed_off_at":           nil,
		"last_error":              nil,
	}).Eq("id", id).In("status", statusList(from)).Is("contacted_at", "null"))
}

func (r *SupabaseProspectRepo) Claim(_ context.Context, id, passID string, now time.Time, lease time.Duration) (int64, error) {
	stale := fmt.Sprintf("claimed_by.is.null,claimed_at.lt.%s", ts(now.Add(-lease)))
	return r.updated(r.patch(map[string]any{
		"claimed_by": passID,
		"claimed_at": ts(now),
	}).Eq("id", id).Eq("status", string(model.ProspectQueued)).Is("handed_off_at", "null").Or(stale, ""))
}

func (r *SupabaseProspectRepo) MarkHandedOff(_ context.Context, id, passID string, at time.Time) (int64, error) {
	return r.updated(r.patch(map[string]any{
		"handed_off_at": ts(at),
	}).Eq("id", id).Eq("status", string(model.ProspectQueued)).Eq("claimed_by", passID))
}

func (r *SupabaseProspectRepo) ReleaseClaim(_ context.Context, id, passID, lastError string) (int64, error) {
	var lastErr any
	if lastError != "" {
		lastErr = lastError
	}
	return r.updated(r.patch(map[string]any{
		"claimed_by":    nil,
		"claimed_at":    nil,
		"handed_off_at": nil,
		"last_error":    lastErr,
	}).Eq("id", id).Eq("claimed_by", passID))
}

func (r *SupabaseProspectRepo) ResetToPending(_ context.Context, id string) (int64, error) {
	return r.updated(r.patch(map[string]any{
		"status":                  model.ProspectPending,
		"contacted_at":            nil,
		"scheduled_send_at":       nil,
		"contacted_by_account_id": nil,
		"provider_message_id":     nil,
		"claimed_by":              nil,
		"claimed_at":              nil,
		"handed_off_at":           nil,
		"last_error":              nil,
	}).Eq("id", id))
}

// SupabaseCampaignRepo reads and writes campaigns through PostgREST.
type SupabaseCampaignRepo struct {
	Client *supabase.Client
}

const campaignsTable = "campaigns"

func (r *SupabaseCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	_, _, err := r.Client.From(campaignsTable).Insert(c, false, "", "minimal", "").Execute()
	return err
}

func (r *SupabaseCampaignRepo) GetByID(_ context.Context, id string) (*model.Campaign, error) {
	var rows []*model.Campaign
	if _, err := r.Client.From(campaignsTable).Select("*", "", false).Eq("id", id).ExecuteTo(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return rows[0], nil
}

func (r *SupabaseCampaignRepo) UpdateStatus(_ context.Context, id string, from, to model.CampaignStatus) (int64, error) {
	body, _, err := r.Client.From(campaignsTable).
		Update(map[string]any{"status": to, "updated_at": ts(time.Now())}, "representation", "").
		Eq("id", id).Eq("status", string(from)).
		Execute()
	if err != nil {
		return 0, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (r *SupabaseCampaignRepo) ListCampaigns(_ context.Context, offset, limit int, workspaceID, channel, status string) ([]*model.Campaign, int, error) {
	q := r.Client.From(campaignsTable).Select("*", "exact", false)
	if workspaceID != "" {
		q = q.Eq("workspace_id", workspaceID)
	}
	if channel != "" {
		q = q.Eq("channel", channel)
	}
	if status != "" {
		q = q.Eq("status", status)
	}

	campaigns := []*model.Campaign{}
	total, err := q.Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Range(offset, offset+limit-1, "").
		ExecuteTo(&campaigns)
	if err != nil {
		return nil, 0, err
	}
	return campaigns, int(total), nil
}

func (r *SupabaseCampaignRepo) ListByStatus(_ context.Context, status model.CampaignStatus) ([]*model.Campaign, error) {
	campaigns := []*model.Campaign{}
	_, err := r.Client.From(campaignsTable).Select("*", "", false).
		Eq("status", string(status)).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&campaigns)
	return campaigns, err
}

// SupabaseAccountRepo reads outreach accounts through PostgREST.
type SupabaseAccountRepo struct {
	Client *supabase.Client
}

const accountsTable = "outreach_accounts"

func (r *SupabaseAccountRepo) GetByID(_ context.Context, id string) (*model.OutreachAccount, error) {
	var rows []*model.OutreachAccount
	if _, err := r.Client.From(accountsTable).Select("*", "", false).Eq("id", id).ExecuteTo(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, appErrors.NewAccountNotFound(id)
	}
	return rows[0], nil
}

func (r *SupabaseAccountRepo) Create(_ context.Context, a *model.OutreachAccount) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	_, _, err := r.Client.From(accountsTable).Insert(a, false, "", "minimal", "").Execute()
	return err
}

var (
	_ ProspectRepositoryInterface = (*SupabaseProspectRepo)(nil)
	_ CampaignRepositoryInterface = (*SupabaseCampaignRepo)(nil)
	_ AccountRepositoryInterface  = (*SupabaseAccountRepo)(nil)
)
