package search

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RefreshInterval maps a plan tier to its refresh cadence.
func RefreshInterval(tier string) time.Duration {
	switch tier {
	case TierPower:
		return 15 * time.Minute
	case TierPro:
		return 60 * time.Minute
	default:
		return 1440 * time.Minute
	}
}

// DispatchInterval is constant for now; reserved for tier differentiation.
func DispatchInterval(tier string) time.Duration {
	return 5 * time.Minute
}

// Enqueuer is the slice of the job queue the scheduler needs.
type Enqueuer interface {
	EnqueueRefresh(ctx context.Context, searchID uint64, runAt time.Time) (bool, error)
}

// Scheduler advances per-search due times and feeds refresh jobs into the
// queue.
type Scheduler struct {
	DB  *gorm.DB
	Log *zap.Logger
}

// dueSearch is the slim row the due query scans into.
type dueSearch struct {
	ID       uint64
	PlanTier string
}

// EnqueueDue enqueues a refresh job for every active search whose
// next_refresh_at has passed and that has no queued/running refresh job,
// then advances next_refresh_at by the tier interval so the search is not
// re-enqueued on the next tick. Returns how many jobs were enqueued.
func (s *Scheduler) EnqueueDue(ctx context.Context, q Enqueuer, limit int) (int, error) {
	var due []dueSearch
	err := s.DB.WithContext(ctx).Raw(`
select id, plan_tier
from searches
where status='active'
  and next_refresh_at is not null
  and next_refresh_at <= now()
  and not exists (
    select 1 from jobs
    where job_type='refresh' and search_id=searches.id and status in ('queued','running')
  )
order by next_refresh_at asc
limit ?
`, limit).Scan(&due).Error
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, d := range due {
		inserted, err := q.EnqueueRefresh(ctx, d.ID, time.Now())
		if err != nil {
			s.Log.Error("enqueue refresh", zap.Uint64("search_id", d.ID), zap.Error(err))
			continue
		}
		next := time.Now().Add(RefreshInterval(d.PlanTier))
		if err := s.DB.WithContext(ctx).Exec(`
update searches set next_refresh_at=?, updated_at=now() where id=?
`, next, d.ID).Error; err != nil {
			s.Log.Error("advance next_refresh_at", zap.Uint64("search_id", d.ID), zap.Error(err))
			continue
		}
		if inserted {
			enqueued++
		}
	}
	return enqueued, nil
}

// SetTierAndReschedule updates the plan tier and recomputes both due times
// from now, so a tier change takes effect without waiting out the previous
// cadence.
func (s *Scheduler) SetTierAndReschedule(ctx context.Context, searchID uint64, tier string) error {
	nextRefresh, nextDispatch := NextTimes(tier, time.Now())
	return s.DB.WithContext(ctx).Exec(`
update searches
set plan_tier=?, next_refresh_at=?, next_dispatch_at=?, updated_at=now()
where id=?
`, tier, nextRefresh, nextDispatch, searchID).Error
}

// NextTimes computes the due times a tier change resets to.
func NextTimes(tier string, now time.Time) (nextRefresh, nextDispatch time.Time) {
	return now.Add(RefreshInterval(tier)), now.Add(DispatchInterval(tier))
}

// ValidTier reports whether tier is one of the known plan tiers.
func ValidTier(tier string) bool {
	switch tier {
	case TierFree, TierPro, TierPower:
		return true
	}
	return false
}
