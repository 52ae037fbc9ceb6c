package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
	"github.com/unclebandit/prospect-outreach/internal/model"
)

// MemoryCampaignRepo is used by tests and STORE_BACKEND=memory.
type MemoryCampaignRepo struct {
	mu        sync.RWMutex
	campaigns map[string]*model.Campaign
}

func NewMemoryCampaignRepo() *MemoryCampaignRepo {
	return &MemoryCampaignRepo{campaigns: map[string]*model.Campaign{}}
}

func cloneCampaign(c *model.Campaign) *model.Campaign {
	cp := *c
	cp.MessageTemplates.FollowUps = append([]string(nil), c.MessageTemplates.FollowUps...)
	cp.MessageTemplates.FollowUpDelayDays = append([]int(nil), c.MessageTemplates.FollowUpDelayDays...)
	return &cp
}

func (r *MemoryCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (r *MemoryCampaignRepo) GetByID(_ context.Context, id string) (*model.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return cloneCampaign(c), nil
}

func (r *MemoryCampaignRepo) UpdateStatus(_ context.Context, id string, from, to model.CampaignStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[id]
	if !ok || c.Status != from {
		return 0, nil
	}
	c.Status = to
	now := time.Now().UTC()
	c.UpdatedAt = &now
	return 1, nil
}

func (r *MemoryCampaignRepo) ListCampaigns(_ context.Context, offset, limit int, workspaceID, channel, status string) ([]*model.Campaign, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := []*model.Campaign{}
	for _, c := range r.campaigns {
		if workspaceID != "" && c.WorkspaceID != workspaceID {
			continue
		}
		if channel != "" && string(c.Channel) != channel {
			continue
		}
		if status != "" && string(c.Status) != status {
			continue
		}
		all = append(all, cloneCampaign(c))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	total := len(all)
	start := min(offset, total)
	end := min(start+limit, total)
	return all[start:end], total, nil
}

func (r *MemoryCampaignRepo) ListByStatus(_ context.Context, status model.CampaignStatus) ([]*model.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.Status == status {
			out = append(out, cloneCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MemoryAccountRepo holds outreach accounts in process.
type MemoryAccountRepo struct {
	mu       sync.RWMutex
	accounts map[string]*model.OutreachAccount
}

func NewMemoryAccountRepo() *MemoryAccountRepo {
	return &MemoryAccountRepo{accounts: map[string]*model.OutreachAccount{}}
}

func (r *MemoryAccountRepo) GetByID(_ context.Context, id string) (*model.OutreachAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, appErrors.NewAccountNotFound(id)
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAccountRepo) Create(_ context.Context, a *model.OutreachAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

var (
	_ CampaignRepositoryInterface = (*MemoryCampaignRepo)(nil)
	_ AccountRepositoryInterface  = (*MemoryAccountRepo)(nil)
)
