// Package audit checks stored prospects against the contacted_at rule and
// exports the findings for operators.
package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/unclebandit/prospect-outreach/internal/model"
	"github.com/unclebandit/prospect-outreach/internal/repository"
)

const (
	ProblemMissingContactedAt = "contacted status without contacted_at"
	ProblemStrayContactedAt   = "contacted_at set on uncontacted status"
)

type Finding struct {
	ProspectID  string               `json:"prospect_id"`
	CampaignID  string               `json:"campaign_id"`
	WorkspaceID string               `json:"workspace_id"`
	Status      model.ProspectStatus `json:"status"`
	ContactedAt *time.Time           `json:"contacted_at,omitempty"`
	Problem     string               `json:"problem"`
}

type Report struct {
	WorkspaceID string    `json:"workspace_id,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
	Findings    []Finding `json:"findings"`
}

// Clean reports whether the audit found nothing.
func (r *Report) Clean() bool { return len(r.Findings) == 0 }

type Auditor struct {
	Prospects repository.ProspectRepositoryInterface
	Log       *zap.Logger
}

// Run lists every prospect in workspaceID (all workspaces when empty) whose
// contacted_at disagrees with its status.
func (a *Auditor) Run(ctx context.Context, workspaceID string, now time.Time) (*Report, error) {
	rows, err := a.Prospects.ListContactInconsistent(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list inconsistent prospects: %w", err)
	}

	report := &Report{WorkspaceID: workspaceID, CheckedAt: now.UTC(), Findings: []Finding{}}
	for _, p := range rows {
		if p.ContactInvariantHolds() {
			continue
		}
		problem := ProblemStrayContactedAt
		if p.Status.IsContacted() {
			problem = ProblemMissingContactedAt
		}
		report.Findings = append(report.Findings, Finding{
			ProspectID:  p.ID,
			CampaignID:  p.CampaignID,
			WorkspaceID: p.WorkspaceID,
			Status:      p.Status,
			ContactedAt: p.ContactedAt,
			Problem:     problem,
		})
	}

	if !report.Clean() {
		a.Log.Warn("contacted_at audit found inconsistent prospects",
			zap.String("workspace_id", workspaceID),
			zap.Int("count", len(report.Findings)),
		)
	}
	return report, nil
}

const sheetName = "Findings"

var headers = []string{"Prospect ID", "Campaign ID", "Workspace ID", "Status", "Contacted At", "Problem"}

// WriteXLSX renders the report as a single-sheet workbook.
func WriteXLSX(w io.Writer, report *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, fd := range report.Findings {
		row := i + 2
		contacted := ""
		if fd.ContactedAt != nil {
			contacted = fd.ContactedAt.UTC().Format(time.RFC3339)
		}
		values := []any{fd.ProspectID, fd.CampaignID, fd.WorkspaceID, string(fd.Status), contacted, fd.Problem}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}

	f.SetColWidth(sheetName, "A", "F", 24)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
