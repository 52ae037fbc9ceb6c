// cmd/dispatcher runs dispatch passes on a cron schedule. Overlapping ticks
// are skipped; concurrent dispatcher processes are safe because every send
// is claimed first.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/unclebandit/prospect-outreach/internal/app"
	"github.com/unclebandit/prospect-outreach/internal/config"
	"github.com/unclebandit/prospect-outreach/internal/logger"
	"github.com/unclebandit/prospect-outreach/internal/quota"
	"github.com/unclebandit/prospect-outreach/internal/service"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}

func main() {
	once := flag.Bool("once", false, "run a single pass, print its summary and exit")
	passTimeout := flag.Duration("pass-timeout", 10*time.Minute, "upper bound on one pass")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "outreach-dispatcher")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	rdb, err := quota.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	tracker := app.Tracker(cfg, store, log.Named("tracker"))
	dispatcher, err := app.Dispatcher(cfg, store, tracker, &quota.DailyQuota{Redis: rdb}, log)
	if err != nil {
		log.Fatal("failed to build dispatcher", zap.Error(err))
	}

	if *once {
		sum, err := runPass(ctx, dispatcher, *passTimeout)
		if err != nil {
			log.Fatal("dispatch pass failed", zap.Error(err))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(sum)
		return
	}

	cl := cronLogger{s: log.Named("cron").Sugar()}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	_, err = c.AddFunc(cfg.DispatchCron, func() {
		if _, err := runPass(ctx, dispatcher, *passTimeout); err != nil {
			log.Error("dispatch pass failed", zap.Error(err))
		}
	})
	if err != nil {
		log.Fatal("invalid DISPATCH_CRON", zap.String("spec", cfg.DispatchCron), zap.Error(err))
	}

	c.Start()
	log.Info("dispatcher scheduled", zap.String("cron", cfg.DispatchCron))

	<-ctx.Done()
	log.Info("dispatcher stopping, waiting for running pass")
	<-c.Stop().Done()
}

func runPass(ctx context.Context, d *service.Dispatcher, timeout time.Duration) (*service.DispatchSummary, error) {
	passCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.RunPass(passCtx)
}
