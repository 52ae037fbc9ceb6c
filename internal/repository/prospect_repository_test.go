package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
	"github.com/unclebandit/prospect-outreach/internal/model"
)

var prospectRowColumns = []string{
	"id", "campaign_id", "workspace_id", "first_name", "last_name", "company_name", "title", "profile_url",
	"status", "contacted_at", "scheduled_send_at", "contacted_by_account_id", "provider_message_id",
	"claimed_by", "claimed_at", "handed_off_at", "last_error", "created_at", "updated_at",
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestProspectRepository_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := &ProspectRepository{DB: db}

	created := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	sent := time.Date(2025, 3, 18, 14, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(prospectRowColumns).
		AddRow("p-1", "c-1", "w-1", "Ada", "Lovelace", "Analytical", "CTO", "https://linkedin.com/in/ada",
			"connection_requested", sent, nil, "acc-1", "msg-9", nil, nil, nil, nil, created, created)

	mock.ExpectQuery(`SELECT .* FROM prospects WHERE id = \$1`).
		WithArgs("p-1").
		WillReturnRows(rows)

	p, err := repo.GetByID(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, model.ProspectConnectionRequested, p.Status)
	require.NotNil(t, p.ContactedAt)
	assert.True(t, sent.Equal(*p.ContactedAt))
	assert.Nil(t, p.ScheduledSendAt)
	require.NotNil(t, p.ContactedByAccountID)
	assert.Equal(t, "acc-1", *p.ContactedByAccountID)
	assert.True(t, p.ContactInvariantHolds())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProspectRepository_GetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := &ProspectRepository{DB: db}

	mock.ExpectQuery(`SELECT .* FROM prospects WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProspectRepository_ListDue(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := &ProspectRepository{DB: db}

	now := time.Date(2025, 3, 18, 14, 0, 0, 0, time.UTC)
	due := now.Add(-2 * time.Minute)
	rows := sqlmock.NewRows(prospectRowColumns).
		AddRow("p-1", "c-1", "w-1", "Ada", "Lovelace", "", "", "ada",
			"queued", nil, due, nil, nil, nil, nil, nil, nil, now, now)

	mock.ExpectQuery(`SELECT .* FROM prospects\s+WHERE campaign_id = \$1 AND status = 'queued' AND scheduled_send_at <= \$2 AND handed_off_at IS NULL`).
		WithArgs("c-1", now, 25).
		WillReturnRows(rows)

	got, err := repo.ListDue(context.Background(), "c-1", now, 25)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsDue(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProspectRepository_Claim(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := &ProspectRepository{DB: db}

	now := time.Date(2025, 3, 18, 14, 0, 0, 0, time.UTC)
	lease := 15 * time.Minute

	mock.ExpectExec(`UPDATE prospects\s+SET claimed_by = \$2, claimed_at = \$3, updated_at = \$3\s+WHERE id = \$1 AND status = 'queued' AND handed_off_at IS NULL AND \(claimed_by IS NULL OR claimed_at < \$4\)`).
		WithArgs("p-1", "pass-a", now, now.Add(-lease)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE prospects\s+SET claimed_by`).
		WithArgs("p-1", "pass-b", now, now.Add(-lease)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.Claim(context.Background(), "p-1", "pass-a", now, lease)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.Claim(context.Background(), "p-1", "pass-b", now, lease)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProspectRepository_MarkHandedOff(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := &ProspectRepository{DB: db}

	at := time.Date(2025, 3, 18, 14, 1, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE prospects\s+SET handed_off_at = \$3, updated_at = \$3\s+WHERE id = \$1 AND status = 'queued' AND claimed_by = \$2`).
		WithArgs("p-1", "pass-a", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE prospects\s+SET claimed_by = NULL, claimed_at = NULL, handed_off_at = NULL`).
		WithArgs("p-1", "pass-a", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.MarkHandedOff(context.Background(), "p-1", "pass-a", at)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.ReleaseClaim(context.Background(), "p-1", "pass-a", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProspectRepository_MarkSent(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := &ProspectRepository{DB: db}

	sentAt := time.Date(2025, 3, 18, 14, 5, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE prospects\s+SET status = \$2, contacted_at = \$3.*WHERE id = \$1 AND status = ANY\(\$6\) AND contacted_at IS NULL`).
		WithArgs("p-1", "connection_requested", sentAt, "acc-1", "msg-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.MarkSent(context.Background(), "p-1",
		[]model.ProspectStatus{model.ProspectQueued},
		SentUpdate{Status: model.ProspectConnectionRequested, SentAt: sentAt, AccountID: "acc-1", ProviderMessageID: "msg-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProspectRepository_Enqueue(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := &ProspectRepository{DB: db}

	at := time.Date(2025, 3, 18, 13, 58, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE prospects\s+SET status = 'queued', scheduled_send_at = \$2.*contacted_at IS NULL`).
		WithArgs("p-1", at, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.Enqueue(context.Background(), "p-1", []model.ProspectStatus{model.ProspectPending, model.ProspectApproved}, at)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProspectRepository_ResetToPending(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := &ProspectRepository{DB: db}

	mock.ExpectExec(`UPDATE prospects\s+SET status = 'pending', contacted_at = NULL, scheduled_send_at = NULL`).
		WithArgs("p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.ResetToPending(context.Background(), "p-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProspectRepository_CountByStatus(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := &ProspectRepository{DB: db}

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM prospects WHERE campaign_id = \$1 GROUP BY status`).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("queued", 3).
			AddRow("connection_requested", 2))

	stats, err := repo.CountByStatus(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats[model.ProspectQueued])
	assert.Equal(t, 2, stats[model.ProspectConnectionRequested])
	assert.Equal(t, 0, stats[model.ProspectReplied])
	assert.Len(t, stats, len(model.AllProspectStatuses))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProspectRepository_ListContactInconsistent_ScopesWorkspace(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := &ProspectRepository{DB: db}

	now := time.Now().UTC()
	mock.ExpectQuery(`contacted_at IS NULL AND status = ANY\(\$1\).* AND workspace_id = \$2`).
		WithArgs(sqlmock.AnyArg(), "w-1").
		WillReturnRows(sqlmock.NewRows(prospectRowColumns).
			AddRow("p-7", "c-1", "w-1", "Grace", "Hopper", "", "", "grace",
				"connection_requested", nil, nil, nil, nil, nil, nil, nil, nil, now, now))

	got, err := repo.ListContactInconsistent(context.Background(), "w-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].ContactInvariantHolds())
	assert.NoError(t, mock.ExpectationsWereMet())
}
