// Package app wires configuration into the stores and services shared by
// the commands.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/prospect-outreach/internal/config"
	"github.com/unclebandit/prospect-outreach/internal/db"
	"github.com/unclebandit/prospect-outreach/internal/integration"
	"github.com/unclebandit/prospect-outreach/internal/integration/n8n"
	"github.com/unclebandit/prospect-outreach/internal/integration/unipile"
	"github.com/unclebandit/prospect-outreach/internal/quota"
	"github.com/unclebandit/prospect-outreach/internal/repository"
	"github.com/unclebandit/prospect-outreach/internal/schedule"
	"github.com/unclebandit/prospect-outreach/internal/service"
)

// Store bundles the three repositories of one backend.
type Store struct {
	Prospects repository.ProspectRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
	Accounts  repository.AccountRepositoryInterface

	close func() error
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// MemoryStore returns an empty in-process store.
func MemoryStore() *Store {
	return &Store{
		Prospects: repository.NewMemoryProspectRepo(),
		Campaigns: repository.NewMemoryCampaignRepo(),
		Accounts:  repository.NewMemoryAccountRepo(),
	}
}

// OpenStore connects the backend named by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		log.Warn("using in-memory store; data is lost on exit")
		return MemoryStore(), nil

	case config.StoreSupabase:
		client, err := repository.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, err
		}
		log.Info("using supabase store", zap.String("url", cfg.SupabaseURL))
		return &Store{
			Prospects: &repository.SupabaseProspectRepo{Client: client},
			Campaigns: &repository.SupabaseCampaignRepo{Client: client},
			Accounts:  &repository.SupabaseAccountRepo{Client: client},
		}, nil

	case config.StorePostgres:
		conn, err := db.Open(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return postgresStore(conn), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func postgresStore(conn *sql.DB) *Store {
	return &Store{
		Prospects: &repository.ProspectRepository{DB: conn},
		Campaigns: &repository.CampaignRepository{DB: conn},
		Accounts:  &repository.AccountRepository{DB: conn},
		close:     conn.Close,
	}
}

// Evaluator loads cfg.HolidayFile when set and falls back to the embedded
// calendar otherwise.
func Evaluator(cfg *config.Config) (*schedule.Evaluator, error) {
	if cfg.HolidayFile == "" {
		return schedule.NewEvaluator(nil), nil
	}
	cal, err := schedule.LoadHolidayFile(cfg.HolidayFile)
	if err != nil {
		return nil, err
	}
	return schedule.NewEvaluator(cal), nil
}

// Tracker builds the lifecycle tracker with the configured lease and batch size.
func Tracker(cfg *config.Config, store *Store, log *zap.Logger) *service.Tracker {
	t := service.NewTracker(store.Prospects, store.Campaigns, log)
	t.Lease = cfg.ClaimLease
	if cfg.DispatchBatchSize > 0 {
		t.BatchSize = cfg.DispatchBatchSize
	}
	return t
}

func retryPolicy(cfg *config.Config) integration.RetryPolicy {
	return integration.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
}

// Dispatcher assembles a dispatcher from cfg. The provider and webhook
// clients are attached only when configured; campaigns whose transport is
// missing are skipped with reason no_transport. A nil q leaves sends
// unmetered.
func Dispatcher(cfg *config.Config, store *Store, tracker *service.Tracker, q *quota.DailyQuota, log *zap.Logger) (*service.Dispatcher, error) {
	evaluator, err := Evaluator(cfg)
	if err != nil {
		return nil, err
	}

	d := &service.Dispatcher{
		Tracker:           tracker,
		Campaigns:         store.Campaigns,
		Accounts:          store.Accounts,
		Evaluator:         evaluator,
		Limiter:           service.NewPacer(cfg.SendsPerMinute),
		Log:               log.Named("dispatcher"),
		SendTimeout:       cfg.ProviderTimeout,
		DefaultDailyLimit: cfg.DefaultDailyLimit,
	}
	if q != nil {
		d.Quota = q
	}
	if cfg.ProviderBaseURL != "" {
		d.Sender = unipile.New(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout, retryPolicy(cfg), log.Named("unipile"))
	}
	if cfg.WebhookURL != "" {
		d.Webhook = n8n.New(cfg.WebhookURL, cfg.WebhookTimeout, retryPolicy(cfg), log.Named("n8n"))
		d.CallbackURL = cfg.CallbackURL
	}
	return d, nil
}
