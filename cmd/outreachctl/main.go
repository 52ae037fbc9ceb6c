// outreachctl is the operator tool for prospect data.
//
//	outreachctl audit [-workspace ID] [-xlsx FILE]
//	outreachctl reset -prospect ID -operator NAME -reason TEXT
//	outreachctl eligibility -campaign ID [-at RFC3339]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/prospect-outreach/internal/app"
	"github.com/unclebandit/prospect-outreach/internal/audit"
	"github.com/unclebandit/prospect-outreach/internal/config"
	"github.com/unclebandit/prospect-outreach/internal/logger"
	"github.com/unclebandit/prospect-outreach/internal/schedule"
	"github.com/unclebandit/prospect-outreach/internal/service"
)

const usage = `usage:
  outreachctl audit [-workspace ID] [-xlsx FILE]
  outreachctl reset -prospect ID -operator NAME -reason TEXT
  outreachctl eligibility -campaign ID [-at RFC3339]`

// errFindings makes audit exit non-zero when the data is inconsistent.
var errFindings = errors.New("audit found inconsistent prospects")

type env struct {
	store     *app.Store
	tracker   *service.Tracker
	evaluator *schedule.Evaluator
	log       *zap.Logger
	out       io.Writer
	now       func() time.Time
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, "console", "outreachctl")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	evaluator, err := app.Evaluator(cfg)
	if err != nil {
		log.Fatal("failed to load holiday calendar", zap.Error(err))
	}

	e := &env{
		store:     store,
		tracker:   app.Tracker(cfg, store, log),
		evaluator: evaluator,
		log:       log,
		out:       os.Stdout,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if err := e.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (e *env) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "audit":
		return e.audit(ctx, args[1:])
	case "reset":
		return e.reset(ctx, args[1:])
	case "eligibility":
		return e.eligibility(ctx, args[1:])
	}
	return fmt.Errorf("unknown command %q\n%s", args[0], usage)
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (e *env) audit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	workspace := fs.String("workspace", "", "limit to one workspace")
	xlsx := fs.String("xlsx", "", "also write findings to this workbook")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a := &audit.Auditor{Prospects: e.store.Prospects, Log: e.log}
	report, err := a.Run(ctx, *workspace, e.now())
	if err != nil {
		return err
	}

	if *xlsx != "" {
		f, err := os.Create(*xlsx)
		if err != nil {
			return err
		}
		if err := audit.WriteXLSX(f, report); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	if err := e.printJSON(report); err != nil {
		return err
	}
	if !report.Clean() {
		return errFindings
	}
	return nil
}

func (e *env) reset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	prospect := fs.String("prospect", "", "prospect id")
	operator := fs.String("operator", "", "who is resetting")
	reason := fs.String("reason", "", "why the send never happened")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *prospect == "" || *reason == "" {
		return errors.New("reset needs -prospect and -reason")
	}

	p, err := e.tracker.ResetToPending(ctx, *prospect, *operator, *reason)
	if err != nil {
		return err
	}
	return e.printJSON(p)
}

func (e *env) eligibility(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eligibility", flag.ContinueOnError)
	campaign := fs.String("campaign", "", "campaign id")
	at := fs.String("at", "", "instant to evaluate (RFC3339, default now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *campaign == "" {
		return errors.New("eligibility needs -campaign")
	}

	now := e.now()
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("-at: %w", err)
		}
		now = t
	}

	c, err := e.store.Campaigns.GetByID(ctx, *campaign)
	if err != nil {
		return err
	}
	return e.printJSON(e.evaluator.IsEligibleNow(schedule.ConfigFromCampaign(c), now))
}
