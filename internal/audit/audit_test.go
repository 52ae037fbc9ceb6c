package audit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/unclebandit/prospect-outreach/internal/model"
	"github.com/unclebandit/prospect-outreach/internal/repository"
)

var auditNow = time.Date(2025, 3, 18, 14, 0, 0, 0, time.UTC)

func seededRepo() *repository.MemoryProspectRepo {
	repo := repository.NewMemoryProspectRepo()
	contacted := auditNow.Add(-time.Hour)

	// consistent
	repo.Put(&model.Prospect{ID: "ok-1", CampaignID: "c-1", WorkspaceID: "w-1", Status: model.ProspectPending})
	repo.Put(&model.Prospect{ID: "ok-2", CampaignID: "c-1", WorkspaceID: "w-1", Status: model.ProspectConnectionRequested, ContactedAt: &contacted})

	// broken both ways
	repo.Put(&model.Prospect{ID: "bad-1", CampaignID: "c-1", WorkspaceID: "w-1", Status: model.ProspectConnectionRequested})
	repo.Put(&model.Prospect{ID: "bad-2", CampaignID: "c-1", WorkspaceID: "w-1", Status: model.ProspectPending, ContactedAt: &contacted})
	repo.Put(&model.Prospect{ID: "bad-3", CampaignID: "c-2", WorkspaceID: "w-2", Status: model.ProspectMessageSent})
	return repo
}

func findingsByID(r *Report) map[string]Finding {
	out := map[string]Finding{}
	for _, f := range r.Findings {
		out[f.ProspectID] = f
	}
	return out
}

func TestAuditor_Run(t *testing.T) {
	a := &Auditor{Prospects: seededRepo(), Log: zap.NewNop()}

	report, err := a.Run(context.Background(), "w-1", auditNow)
	require.NoError(t, err)
	assert.False(t, report.Clean())

	got := findingsByID(report)
	require.Len(t, got, 2)
	assert.Equal(t, ProblemMissingContactedAt, got["bad-1"].Problem)
	assert.Equal(t, ProblemStrayContactedAt, got["bad-2"].Problem)
	assert.Equal(t, auditNow, report.CheckedAt)
}

func TestAuditor_Run_AllWorkspaces(t *testing.T) {
	a := &Auditor{Prospects: seededRepo(), Log: zap.NewNop()}

	report, err := a.Run(context.Background(), "", auditNow)
	require.NoError(t, err)
	assert.Len(t, report.Findings, 3)
}

func TestAuditor_Run_Clean(t *testing.T) {
	repo := repository.NewMemoryProspectRepo()
	repo.Put(&model.Prospect{ID: "ok-1", WorkspaceID: "w-1", Status: model.ProspectApproved})
	a := &Auditor{Prospects: repo, Log: zap.NewNop()}

	report, err := a.Run(context.Background(), "w-1", auditNow)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.NotNil(t, report.Findings)
}

func TestWriteXLSX(t *testing.T) {
	contacted := auditNow.Add(-time.Hour)
	report := &Report{
		CheckedAt: auditNow,
		Findings: []Finding{
			{ProspectID: "bad-1", CampaignID: "c-1", WorkspaceID: "w-1", Status: model.ProspectConnectionRequested, Problem: ProblemMissingContactedAt},
			{ProspectID: "bad-2", CampaignID: "c-1", WorkspaceID: "w-1", Status: model.ProspectPending, ContactedAt: &contacted, Problem: ProblemStrayContactedAt},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, report))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, "bad-1", rows[1][0])
	assert.Equal(t, ProblemMissingContactedAt, rows[1][5])
	assert.Equal(t, contacted.Format(time.RFC3339), rows[2][4])
}
