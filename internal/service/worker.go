package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
	"github.com/unclebandit/prospect-outreach/internal/metrics"
)

// Worker applies status callbacks delivered through a queue.
type Worker struct {
	Tracker  *Tracker
	Validate *validator.Validate
	Log      *zap.Logger
	Now      func() time.Time
}

func NewWorker(tracker *Tracker, log *zap.Logger) *Worker {
	return &Worker{
		Tracker:  tracker,
		Validate: validator.New(),
		Log:      log,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes one queued callback. A nil return means the job is done,
// including jobs that were rejected for good; an error asks for redelivery.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var cb StatusCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		w.Log.Warn("dropping malformed status callback", zap.Error(err))
		metrics.RecordCallback("queue", "malformed")
		return nil
	}
	if err := w.Validate.Struct(cb); err != nil {
		w.Log.Warn("dropping invalid status callback", zap.String("prospect_id", cb.ProspectID), zap.Error(err))
		metrics.RecordCallback("queue", "invalid")
		return nil
	}

	p, err := w.Tracker.ApplyCallback(ctx, cb, w.Now())
	switch {
	case err == nil:
		metrics.RecordCallback("queue", "applied")
		w.Log.Debug("status callback applied",
			zap.String("prospect_id", p.ID),
			zap.String("status", string(p.Status)),
		)
		return nil
	case appErrors.IsInvalidTransition(err):
		metrics.RecordCallback("queue", "conflict")
		w.Log.Warn("status callback rejected", zap.String("prospect_id", cb.ProspectID), zap.Error(err))
		return nil
	case appErrors.IsNotFound(err), appErrors.IsValidation(err):
		metrics.RecordCallback("queue", "invalid")
		w.Log.Warn("status callback rejected", zap.String("prospect_id", cb.ProspectID), zap.Error(err))
		return nil
	case errors.Is(err, appErrors.ErrClaimLost):
		metrics.RecordCallback("queue", "retry")
		return err
	}

	metrics.RecordCallback("queue", "error")
	w.Log.Error("status callback failed", zap.String("prospect_id", cb.ProspectID), zap.Error(err))
	return err
}
