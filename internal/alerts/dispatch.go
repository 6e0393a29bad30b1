package alerts

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gosnaggit/internal/mail"
)

// Skip reasons reported by DispatchSearch.
const (
	ReasonCooldown       = "cooldown"
	ReasonAlertsDisabled = "alerts_disabled"
	ReasonNoEmailEnabled = "no_email_enabled"
	ReasonDailyLimit     = "daily_limit"
	ReasonNoPending      = "no_pending"
)

// Store is the slice of persistence the dispatcher drives. *Repo is the
// production implementation.
type Store interface {
	SweepStuck(ctx context.Context, searchID uint64, olderThan time.Duration) (int, error)
	SweepStuckAll(ctx context.Context, olderThan time.Duration) (int, error)
	LastSentAt(ctx context.Context, searchID uint64) (*time.Time, error)
	ClaimPending(ctx context.Context, searchID uint64, limit int) ([]AlertEvent, error)
	MarkSent(ctx context.Context, ids []uint64) error
	RequeueFailed(ctx context.Context, eventID uint64, errMsg string, delay time.Duration) error
	MarkTerminal(ctx context.Context, eventID uint64, errMsg string) error
	Settings(ctx context.Context, searchID uint64) (AlertSetting, error)
	RecordDigestSent(ctx context.Context, searchID uint64, at time.Time) error
	EmailDestination(ctx context.Context, searchID uint64) (*NotificationSetting, error)
	ItemsForEvents(ctx context.Context, ids []uint64) ([]EmailItem, error)
	SearchName(ctx context.Context, searchID uint64) (string, error)
	SearchIDsWithEmailEnabled(ctx context.Context) ([]uint64, error)
}

// Dispatcher runs the crash-safe alert delivery pipeline. Claims happen in
// a single committed statement; the email send never holds row locks.
type Dispatcher struct {
	Store  Store
	Mailer mail.Sender
	Log    *zap.Logger

	Cooldown    time.Duration
	StuckAfter  time.Duration
	RetryBase   time.Duration
	RetryMax    time.Duration
	MaxAttempts int

	now func() time.Time
}

func (d *Dispatcher) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

type Options struct {
	// Force overrides the cooldown, the enabled flag, and the daily cap.
	Force bool
}

type Result struct {
	SearchID uint64 `json:"search_id"`
	Skipped  bool   `json:"skipped"`
	Reason   string `json:"reason,omitempty"`
	Sent     int    `json:"sent"`
	Failed   int    `json:"failed"`
}

// DispatchSearch runs one dispatch attempt for one search.
func (d *Dispatcher) DispatchSearch(ctx context.Context, searchID uint64, opts Options) (Result, error) {
	res := Result{SearchID: searchID}
	now := d.clock()

	// recover alerts a crashed worker left in sending
	if swept, err := d.Store.SweepStuck(ctx, searchID, d.StuckAfter); err != nil {
		return res, fmt.Errorf("stuck sweep: %w", err)
	} else if swept > 0 {
		d.Log.Info("requeued stuck alerts", zap.Uint64("search_id", searchID), zap.Int("count", swept))
	}

	settings, err := d.Store.Settings(ctx, searchID)
	if err != nil {
		return res, fmt.Errorf("load settings: %w", err)
	}
	if !settings.Enabled && !opts.Force {
		res.Skipped, res.Reason = true, ReasonAlertsDisabled
		return res, nil
	}

	dest, err := d.Store.EmailDestination(ctx, searchID)
	if err != nil {
		return res, fmt.Errorf("load destination: %w", err)
	}
	if dest == nil {
		res.Skipped, res.Reason = true, ReasonNoEmailEnabled
		return res, nil
	}

	if settings.Mode == ModeDaily && !opts.Force &&
		hasDigestBeenSentToday(settings.LastDigestSentAt, now) {
		res.Skipped, res.Reason = true, ReasonDailyLimit
		return res, nil
	}

	if !opts.Force {
		lastSent, err := d.Store.LastSentAt(ctx, searchID)
		if err != nil {
			return res, fmt.Errorf("load last sent: %w", err)
		}
		if lastSent != nil && now.Sub(*lastSent) < d.Cooldown {
			res.Skipped, res.Reason = true, ReasonCooldown
			return res, nil
		}
	}

	limit := settings.MaxPerEmail
	if limit <= 0 {
		limit = 20
	}
	claimed, err := d.Store.ClaimPending(ctx, searchID, limit)
	if err != nil {
		return res, fmt.Errorf("claim pending: %w", err)
	}
	if len(claimed) == 0 {
		res.Reason = ReasonNoPending
		return res, nil
	}

	ids := make([]uint64, 0, len(claimed))
	for _, ev := range claimed {
		ids = append(ids, ev.ID)
	}

	items, err := d.Store.ItemsForEvents(ctx, ids)
	if err != nil {
		d.failBatch(ctx, claimed, fmt.Sprintf("load listings: %v", err))
		res.Failed = len(claimed)
		return res, fmt.Errorf("load listings: %w", err)
	}
	name, err := d.Store.SearchName(ctx, searchID)
	if err != nil {
		name = fmt.Sprintf("search #%d", searchID)
	}

	// claim transaction is committed; network I/O happens lock-free here
	subject, body := BuildEmail(name, items)
	if err := d.Mailer.Send(ctx, dest.Destination, subject, body); err != nil {
		d.Log.Warn("email delivery failed",
			zap.Uint64("search_id", searchID), zap.Int("batch", len(claimed)), zap.Error(err))
		d.failBatch(ctx, claimed, err.Error())
		res.Failed = len(claimed)
		return res, nil
	}

	if err := d.Store.MarkSent(ctx, ids); err != nil {
		return res, fmt.Errorf("mark sent: %w", err)
	}
	res.Sent = len(ids)

	if settings.Mode == ModeDaily {
		if err := d.Store.RecordDigestSent(ctx, searchID, now); err != nil {
			d.Log.Error("record digest timestamp", zap.Uint64("search_id", searchID), zap.Error(err))
		}
	}
	d.Log.Info("alerts sent",
		zap.Uint64("search_id", searchID), zap.Int("count", res.Sent), zap.String("to", dest.Destination))
	return res, nil
}

func (d *Dispatcher) failBatch(ctx context.Context, claimed []AlertEvent, cause string) {
	for _, ev := range claimed {
		var err error
		if ev.AttemptCount+1 >= d.MaxAttempts {
			err = d.Store.MarkTerminal(ctx, ev.ID, cause)
		} else {
			delay := RetryDelay(ev.AttemptCount, d.RetryBase, d.RetryMax)
			err = d.Store.RequeueFailed(ctx, ev.ID, cause, delay)
		}
		if err != nil {
			d.Log.Error("record alert failure",
				zap.Uint64("alert_id", ev.ID), zap.Uint64("search_id", ev.SearchID), zap.Error(err))
		}
	}
}

type BatchResult struct {
	Searches  int `json:"searches"`
	Sent      int `json:"sent"`
	SkipCount int `json:"skipped"`
	Errors    int `json:"errors"`
}

// DispatchAll visits every search with an enabled email destination in
// ascending id order. One search's failure is logged and counted, never
// fatal to the rest of the batch.
func (d *Dispatcher) DispatchAll(ctx context.Context) (BatchResult, error) {
	// global sweep first: per-search sweeps never reach searches the
	// destination query filters out
	if swept, err := d.Store.SweepStuckAll(ctx, d.StuckAfter); err != nil {
		d.Log.Error("global stuck sweep", zap.Error(err))
	} else if swept > 0 {
		d.Log.Info("requeued stuck alerts", zap.Int("count", swept))
	}

	ids, err := d.Store.SearchIDsWithEmailEnabled(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list searches: %w", err)
	}

	out := BatchResult{Searches: len(ids)}
	for _, id := range ids {
		res, err := d.dispatchOne(ctx, id)
		if err != nil {
			out.Errors++
			d.Log.Error("dispatch failed", zap.Uint64("search_id", id), zap.Error(err))
			continue
		}
		if res.Skipped {
			out.SkipCount++
		}
		out.Sent += res.Sent
	}
	return out, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, searchID uint64) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()
	return d.DispatchSearch(ctx, searchID, Options{})
}

// hasDigestBeenSentToday reports whether the recorded digest timestamp
// falls on the same UTC calendar day as now.
func hasDigestBeenSentToday(last *time.Time, now time.Time) bool {
	if last == nil {
		return false
	}
	y1, m1, d1 := last.UTC().Date()
	y2, m2, d2 := now.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
