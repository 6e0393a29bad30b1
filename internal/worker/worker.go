package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gosnaggit/internal/alerts"
	"gosnaggit/internal/ingest"
	"gosnaggit/internal/jobs"
	"gosnaggit/internal/market"
	"gosnaggit/internal/search"
)

// Queue is the slice of the job store the loop drives. *jobs.Repo is the
// production implementation.
type Queue interface {
	EnqueueRefresh(ctx context.Context, searchID uint64, runAt time.Time) (bool, error)
	EnqueueDispatch(ctx context.Context, runAt time.Time) (bool, error)
	Claim(ctx context.Context, jobType string, limit int, owner string, leaseMinutes int) ([]jobs.Job, error)
	Heartbeat(ctx context.Context, jobID uint64, owner string, leaseMinutes int) (bool, error)
	FinalizeSuccess(ctx context.Context, jobID uint64, owner string) (bool, error)
	FailAndRequeue(ctx context.Context, job jobs.Job, owner string, cause string, retryCap int) (bool, error)
	Reap(ctx context.Context, owner string, scanLimit, retryCap int) (int, error)
}

// Worker is the single-threaded polling loop the leader runs:
// enqueue due -> claim -> execute -> heartbeat -> finalize/fail -> reap.
type Worker struct {
	Owner string

	Queue      Queue
	Scheduler  *search.Scheduler
	Ingestor   *ingest.Ingestor
	Alerts     *alerts.Repo
	Dispatcher *alerts.Dispatcher
	Market     *market.Registry
	DB         *gorm.DB
	Log        *zap.Logger

	Tick            time.Duration
	LeaseMinutes    int
	HeartbeatEvery  time.Duration
	RefreshBatch    int
	DispatchBatch   int
	RetryCap        int
	ReaperScanLimit int
	BackfillLimit   int
	DispatchEvery   time.Duration

	// handleFn overrides job handling in tests.
	handleFn func(context.Context, jobs.Job) error
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Tick)
	defer ticker.Stop()

	w.Log.Info("worker started", zap.String("owner", w.Owner))
	for {
		select {
		case <-ctx.Done():
			w.Log.Info("worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if n, err := w.Scheduler.EnqueueDue(ctx, w.Queue, w.RefreshBatch); err != nil {
		w.Log.Error("enqueue due searches", zap.Error(err))
	} else if n > 0 {
		w.Log.Info("enqueued refresh jobs", zap.Int("count", n))
	}

	// keep one dispatch job circulating; bootstraps on first run and after
	// a terminal dispatch failure
	if inserted, err := w.Queue.EnqueueDispatch(ctx, time.Now()); err != nil {
		w.Log.Error("enqueue dispatch job", zap.Error(err))
	} else if inserted {
		w.Log.Info("dispatch job enqueued")
	}

	for _, jobType := range []struct {
		name  string
		limit int
	}{
		{jobs.TypeRefresh, w.RefreshBatch},
		{jobs.TypeDispatch, w.DispatchBatch},
	} {
		claimed, err := w.Queue.Claim(ctx, jobType.name, jobType.limit, w.Owner, w.LeaseMinutes)
		if err != nil {
			w.Log.Error("claim jobs", zap.String("job_type", jobType.name), zap.Error(err))
			continue
		}
		for _, job := range claimed {
			w.execute(ctx, job)
		}
	}

	if reaped, err := w.Queue.Reap(ctx, w.Owner, w.ReaperScanLimit, w.RetryCap); err != nil {
		w.Log.Error("reap expired leases", zap.Error(err))
	} else if reaped > 0 {
		w.Log.Warn("reaped expired jobs", zap.Int("count", reaped))
	}
}

// execute runs one claimed job with a heartbeat alongside it. A rejected
// heartbeat means the lease is lost: the job context is cancelled and the
// in-flight result is discarded without finalizing, leaving recovery to
// the reaper.
func (w *Worker) execute(ctx context.Context, job jobs.Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	leaseLost := make(chan struct{})
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		t := time.NewTicker(w.HeartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				ok, err := w.Queue.Heartbeat(jobCtx, job.ID, w.Owner, w.LeaseMinutes)
				if err != nil {
					w.Log.Error("heartbeat", zap.Uint64("job_id", job.ID), zap.Error(err))
					continue
				}
				if !ok {
					close(leaseLost)
					cancel()
					return
				}
			}
		}
	}()

	handle := w.handle
	if w.handleFn != nil {
		handle = w.handleFn
	}
	err := handle(jobCtx, job)
	cancel()
	<-hbDone

	select {
	case <-leaseLost:
		w.Log.Warn("lease lost; discarding result",
			zap.Uint64("job_id", job.ID), zap.String("job_type", job.JobType))
		return
	default:
	}

	if err != nil {
		w.Log.Error("job failed",
			zap.Uint64("job_id", job.ID), zap.String("job_type", job.JobType),
			zap.Uint64p("search_id", job.SearchID), zap.Error(err))
		if _, ferr := w.Queue.FailAndRequeue(ctx, job, w.Owner, err.Error(), w.RetryCap); ferr != nil {
			w.Log.Error("fail and requeue", zap.Uint64("job_id", job.ID), zap.Error(ferr))
		}
		return
	}

	ok, ferr := w.Queue.FinalizeSuccess(ctx, job.ID, w.Owner)
	if ferr != nil {
		w.Log.Error("finalize", zap.Uint64("job_id", job.ID), zap.Error(ferr))
		return
	}
	if !ok {
		// the job may since have been reaped and retried elsewhere
		w.Log.Warn("finalize rejected", zap.Uint64("job_id", job.ID))
		return
	}

	if job.JobType == jobs.TypeDispatch {
		if _, err := w.Queue.EnqueueDispatch(ctx, time.Now().Add(w.DispatchEvery)); err != nil {
			w.Log.Error("reschedule dispatch job", zap.Error(err))
		}
	}
}

func (w *Worker) handle(ctx context.Context, job jobs.Job) error {
	switch job.JobType {
	case jobs.TypeRefresh:
		return w.handleRefresh(ctx, job)
	case jobs.TypeDispatch:
		return w.handleDispatch(ctx)
	default:
		return fmt.Errorf("unknown job type %q", job.JobType)
	}
}

func (w *Worker) handleRefresh(ctx context.Context, job jobs.Job) error {
	if job.SearchID == nil {
		return errors.New("refresh job missing search_id")
	}

	var s search.Search
	err := w.DB.WithContext(ctx).First(&s, *job.SearchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil // search deleted since enqueue
	}
	if err != nil {
		return fmt.Errorf("load search: %w", err)
	}
	if s.Status != search.StatusActive {
		return nil
	}

	q := market.Query{Text: s.Query, MaxPrice: s.MaxPrice}
	if s.Location != nil {
		q.Location = *s.Location
	}

	results := w.Market.SearchAll(ctx, q, []string(s.Marketplaces))
	okSources := 0
	total := ingest.Summary{}
	for _, src := range results {
		if src.Err != nil {
			continue
		}
		okSources++
		sum, err := w.Ingestor.IngestBatch(ctx, s.ID, src.Marketplace, src.Listings)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", src.Marketplace, err)
		}
		total.Created += sum.Created
		total.Updated += sum.Updated
		total.Skipped += sum.Skipped
		total.TotalIncoming += sum.TotalIncoming
		total.Processed += sum.Processed

		for _, rid := range sum.CreatedIDs {
			if _, err := w.Alerts.CreateEvent(ctx, s.ID, rid); err != nil {
				return fmt.Errorf("create alert event: %w", err)
			}
		}
	}
	if len(results) > 0 && okSources == 0 {
		return errors.New("all marketplace adapters failed")
	}

	// safety net: alert any ingested result an earlier path missed
	backfilled, err := w.Alerts.Backfill(ctx, s.ID, w.BackfillLimit)
	if err != nil {
		return fmt.Errorf("backfill alerts: %w", err)
	}

	w.Log.Info("search refreshed",
		zap.Uint64("search_id", s.ID),
		zap.Int("created", total.Created),
		zap.Int("updated", total.Updated),
		zap.Int("skipped", total.Skipped),
		zap.Int("processed", total.Processed),
		zap.Int("backfilled", backfilled))
	return nil
}

func (w *Worker) handleDispatch(ctx context.Context) error {
	out, err := w.Dispatcher.DispatchAll(ctx)
	if err != nil {
		return err
	}
	w.Log.Info("dispatch cycle done",
		zap.Int("searches", out.Searches),
		zap.Int("sent", out.Sent),
		zap.Int("skipped", out.SkipCount),
		zap.Int("errors", out.Errors))
	return nil
}
