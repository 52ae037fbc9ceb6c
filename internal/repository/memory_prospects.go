package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
	"github.com/unclebandit/prospect-outreach/internal/model"
)

// MemoryProspectRepo keeps prospects in process. Conditional updates run
// under one mutex, so they behave like the row-level updates in Postgres.
type MemoryProspectRepo struct {
	mu        sync.RWMutex
	prospects map[string]*model.Prospect
	now       func() time.Time
}

func NewMemoryProspectRepo() *MemoryProspectRepo {
	return &MemoryProspectRepo{
		prospects: map[string]*model.Prospect{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func cloneProspect(p *model.Prospect) *model.Prospect {
	cp := *p
	return &cp
}

func ptr[T any](v T) *T {
	return &v
}

func (r *MemoryProspectRepo) Create(_ context.Context, p *model.Prospect) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.ProspectPending
	}
	now := r.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.prospects[p.ID] = cloneProspect(p)
	return nil
}

func (r *MemoryProspectRepo) GetByID(_ context.Context, id string) (*model.Prospect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prospects[id]
	if !ok {
		return nil, appErrors.NewProspectNotFound(id)
	}
	return cloneProspect(p), nil
}

func (r *MemoryProspectRepo) filter(keep func(*model.Prospect) bool) []*model.Prospect {
	out := []*model.Prospect{}
	for _, p := range r.prospects {
		if keep(p) {
			out = append(out, cloneProspect(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *MemoryProspectRepo) ListByCampaign(_ context.Context, campaignID string, statuses []model.ProspectStatus) ([]*model.Prospect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filter(func(p *model.Prospect) bool {
		return p.CampaignID == campaignID && (len(statuses) == 0 || slices.Contains(statuses, p.Status))
	}), nil
}

func (r *MemoryProspectRepo) ListDue(_ context.Context, campaignID string, now time.Time, limit int) ([]*model.Prospect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := r.filter(func(p *model.Prospect) bool {
		return p.CampaignID == campaignID && p.IsDue(now)
	})
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].ScheduledSendAt.Before(*due[j].ScheduledSendAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *MemoryProspectRepo) ListContactInconsistent(_ context.Context, workspaceID string) ([]*model.Prospect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filter(func(p *model.Prospect) bool {
		return (workspaceID == "" || p.WorkspaceID == workspaceID) && !p.ContactInvariantHolds()
	}), nil
}

func (r *MemoryProspectRepo) CountByStatus(_ context.Context, campaignID string) (map[model.ProspectStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[model.ProspectStatus]int, len(model.AllProspectStatuses))
	for _, s := range model.AllProspectStatuses {
		stats[s] = 0
	}
	for _, p := range r.prospects {
		if p.CampaignID == campaignID {
			stats[p.Status]++
		}
	}
	return stats, nil
}

// update applies fn to the row when match holds and reports one affected row.
func (r *MemoryProspectRepo) update(id string, match func(*model.Prospect) bool, fn func(*model.Prospect)) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prospects[id]
	if !ok || !match(p) {
		return 0
	}
	fn(p)
	p.UpdatedAt = r.now()
	return 1
}

func (r *MemoryProspectRepo) TransitionStatus(_ context.Context, id string, from []model.ProspectStatus, to model.ProspectStatus) (int64, error) {
	return r.update(id,
		func(p *model.Prospect) bool { return slices.Contains(from, p.Status) },
		func(p *model.Prospect) { p.Status = to },
	), nil
}

func (r *MemoryProspectRepo) Enqueue(_ context.Context, id string, from []model.ProspectStatus, scheduledAt time.Time) (int64, error) {
	return r.update(id,
		func(p *model.Prospect) bool { return slices.Contains(from, p.Status) && p.ContactedAt == nil },
		func(p *model.Prospect) {
			p.Status = model.ProspectQueued
			p.ScheduledSendAt = ptr(scheduledAt)
			p.LastError = nil
		},
	), nil
}

func (r *MemoryProspectRepo) MarkSent(_ context.Context, id string, from []model.ProspectStatus, u SentUpdate) (int64, error) {
	return r.update(id,
		func(p *model.Prospect) bool { return slices.Contains(from, p.Status) && p.ContactedAt == nil },
		func(p *model.Prospect) {
			p.Status = u.Status
			p.ContactedAt = ptr(u.SentAt)
			p.ContactedByAccountID = ptr(u.AccountID)
			p.ProviderMessageID = nil
			if u.ProviderMessageID != "" {
				p.ProviderMessageID = ptr(u.ProviderMessageID)
			}
			p.ClaimedBy, p.ClaimedAt, p.HandedOffAt, p.LastError = nil, nil, nil, nil
		},
	), nil
}

func (r *MemoryProspectRepo) Claim(_ context.Context, id, passID string, now time.Time, lease time.Duration) (int64, error) {
	cutoff := now.Add(-lease)
	return r.update(id,
		func(p *model.Prospect) bool {
			return p.Status == model.ProspectQueued && p.HandedOffAt == nil &&
				(p.ClaimedBy == nil || p.ClaimedAt.Before(cutoff))
		},
		func(p *model.Prospect) {
			p.ClaimedBy = ptr(passID)
			p.ClaimedAt = ptr(now)
		},
	), nil
}

func (r *MemoryProspectRepo) MarkHandedOff(_ context.Context, id, passID string, at time.Time) (int64, error) {
	return r.update(id,
		func(p *model.Prospect) bool {
			return p.Status == model.ProspectQueued && p.ClaimedBy != nil && *p.ClaimedBy == passID
		},
		func(p *model.Prospect) { p.HandedOffAt = ptr(at) },
	), nil
}

func (r *MemoryProspectRepo) ReleaseClaim(_ context.Context, id, passID, lastError string) (int64, error) {
	return r.update(id,
		func(p *model.Prospect) bool { return p.ClaimedBy != nil && *p.ClaimedBy == passID },
		func(p *model.Prospect) {
			p.ClaimedBy, p.ClaimedAt, p.HandedOffAt = nil, nil, nil
			p.LastError = nil
			if lastError != "" {
				p.LastError = ptr(lastError)
			}
		},
	), nil
}

func (r *MemoryProspectRepo) ResetToPending(_ context.Context, id string) (int64, error) {
	return r.update(id,
		func(*model.Prospect) bool { return true },
		func(p *model.Prospect) {
			p.Status = model.ProspectPending
			p.ContactedAt, p.ScheduledSendAt = nil, nil
			p.ContactedByAccountID, p.ProviderMessageID = nil, nil
			p.ClaimedBy, p.ClaimedAt, p.HandedOffAt, p.LastError = nil, nil, nil, nil
		},
	), nil
}

// Put stores p as-is, bypassing lifecycle rules. Used to seed fixtures,
// including rows that break the contact invariant.
func (r *MemoryProspectRepo) Put(p *model.Prospect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prospects[p.ID] = cloneProspect(p)
}

var _ ProspectRepositoryInterface = (*MemoryProspectRepo)(nil)
