package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/prospect-outreach/internal/model"
)

func TestMemoryProspectRepo_ClaimIsExclusive(t *testing.T) {
	repo := NewMemoryProspectRepo()
	ctx := context.Background()
	now := time.Date(2025, 3, 18, 14, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &model.Prospect{ID: "p-1", CampaignID: "c-1"}))
	n, err := repo.Enqueue(ctx, "p-1", []model.ProspectStatus{model.ProspectPending}, now.Add(-time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, _ := repo.Claim(ctx, "p-1", string(rune('a'+i)), now, 15*time.Minute)
			wins.Add(n)
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestMemoryProspectRepo_ExpiredLeaseCanBeReclaimed(t *testing.T) {
	repo := NewMemoryProspectRepo()
	ctx := context.Background()
	now := time.Date(2025, 3, 18, 14, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &model.Prospect{ID: "p-1", CampaignID: "c-1"}))
	_, _ = repo.Enqueue(ctx, "p-1", []model.ProspectStatus{model.ProspectPending}, now)

	n, _ := repo.Claim(ctx, "p-1", "first", now, 15*time.Minute)
	require.EqualValues(t, 1, n)

	n, _ = repo.Claim(ctx, "p-1", "second", now.Add(10*time.Minute), 15*time.Minute)
	assert.EqualValues(t, 0, n)

	n, _ = repo.Claim(ctx, "p-1", "second", now.Add(16*time.Minute), 15*time.Minute)
	assert.EqualValues(t, 1, n)

	n, _ = repo.ReleaseClaim(ctx, "p-1", "first", "")
	assert.EqualValues(t, 0, n, "stale owner cannot release")
}

func TestMemoryProspectRepo_HandedOffClaimDoesNotExpire(t *testing.T) {
	repo := NewMemoryProspectRepo()
	ctx := context.Background()
	now := time.Date(2025, 3, 18, 14, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &model.Prospect{ID: "p-1", CampaignID: "c-1"}))
	_, _ = repo.Enqueue(ctx, "p-1", []model.ProspectStatus{model.ProspectPending}, now)

	n, _ := repo.Claim(ctx, "p-1", "first", now, 15*time.Minute)
	require.EqualValues(t, 1, n)

	n, _ = repo.MarkHandedOff(ctx, "p-1", "other", now)
	assert.EqualValues(t, 0, n, "only the owner marks the hand-off")
	n, _ = repo.MarkHandedOff(ctx, "p-1", "first", now)
	require.EqualValues(t, 1, n)

	n, _ = repo.Claim(ctx, "p-1", "second", now.Add(24*time.Hour), 15*time.Minute)
	assert.EqualValues(t, 0, n)

	due, err := repo.ListDue(ctx, "c-1", now.Add(24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	n, _ = repo.ReleaseClaim(ctx, "p-1", "first", "orchestrator failed")
	require.EqualValues(t, 1, n)

	p, err := repo.GetByID(ctx, "p-1")
	require.NoError(t, err)
	assert.Nil(t, p.HandedOffAt)

	n, _ = repo.Claim(ctx, "p-1", "second", now.Add(time.Hour), 15*time.Minute)
	assert.EqualValues(t, 1, n)
}

func TestMemoryProspectRepo_MarkSentRequiresUncontacted(t *testing.T) {
	repo := NewMemoryProspectRepo()
	ctx := context.Background()
	sentAt := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, &model.Prospect{ID: "p-1", CampaignID: "c-1"}))
	from := []model.ProspectStatus{model.ProspectPending}
	u := SentUpdate{Status: model.ProspectMessageSent, SentAt: sentAt, AccountID: "acc-1"}

	n, _ := repo.MarkSent(ctx, "p-1", from, u)
	require.EqualValues(t, 1, n)
	n, _ = repo.MarkSent(ctx, "p-1", []model.ProspectStatus{model.ProspectMessageSent}, u)
	assert.EqualValues(t, 0, n)

	p, err := repo.GetByID(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, p.ContactInvariantHolds())
	assert.Nil(t, p.ProviderMessageID)
}

func TestMemoryProspectRepo_ListContactInconsistent(t *testing.T) {
	repo := NewMemoryProspectRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	repo.Put(&model.Prospect{ID: "ok", WorkspaceID: "w-1", Status: model.ProspectPending})
	repo.Put(&model.Prospect{ID: "sent-no-date", WorkspaceID: "w-1", Status: model.ProspectConnectionRequested})
	repo.Put(&model.Prospect{ID: "date-no-send", WorkspaceID: "w-2", Status: model.ProspectQueued, ContactedAt: &now})

	all, err := repo.ListContactInconsistent(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := repo.ListContactInconsistent(ctx, "w-1")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "sent-no-date", scoped[0].ID)
}

func TestMemoryCampaignRepo_ListCampaignsPages(t *testing.T) {
	repo := NewMemoryCampaignRepo()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &model.Campaign{
			WorkspaceID: "w-1",
			Status:      model.CampaignDraft,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}))
	}

	page, total, err := repo.ListCampaigns(ctx, 2, 2, "w-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.Equal(base.Add(2*time.Hour)))

	page, _, err = repo.ListCampaigns(ctx, 10, 2, "w-1", "", "")
	require.NoError(t, err)
	assert.Empty(t, page)
}
