package jobs

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repo is the durable job queue. All claims and state transitions are
// single conditional statements so concurrent claimants cannot race.
type Repo struct {
	DB *gorm.DB
}

// EnqueueRefresh inserts a queued refresh job for the search unless a
// queued or running one already exists. Reports whether a row was inserted.
// A partial unique index on (search_id) backs this up under concurrency.
func (r *Repo) EnqueueRefresh(ctx context.Context, searchID uint64, runAt time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Exec(`
insert into jobs (job_type, search_id, status, run_at, created_at, updated_at)
select 'refresh', ?, 'queued', ?, now(), now()
where not exists (
  select 1 from jobs
  where job_type='refresh' and search_id=? and status in ('queued','running')
)
on conflict do nothing
`, searchID, runAt, searchID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// EnqueueDispatch keeps exactly one dispatch job circulating.
func (r *Repo) EnqueueDispatch(ctx context.Context, runAt time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Exec(`
insert into jobs (job_type, status, run_at, created_at, updated_at)
select 'dispatch', 'queued', ?, now(), now()
where not exists (
  select 1 from jobs where job_type='dispatch' and status in ('queued','running')
)
`, runAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Claim atomically moves up to limit due jobs of the given type to running,
// oldest run_at first. FOR UPDATE SKIP LOCKED keeps concurrent claimants
// from ever returning overlapping rows.
func (r *Repo) Claim(ctx context.Context, jobType string, limit int, owner string, leaseMinutes int) ([]Job, error) {
	var claimed []Job
	err := r.DB.WithContext(ctx).Raw(`
with cte as (
  select id
  from jobs
  where job_type=? and status='queued' and run_at <= now()
  order by run_at asc, id asc
  for update skip locked
  limit ?
)
update jobs
set status='running',
    claimed_by=?,
    claimed_at=now(),
    lease_expires_at=now() + (? * interval '1 minute'),
    started_at=coalesce(started_at, now()),
    updated_at=now()
where id in (select id from cte)
returning *;
`, jobType, limit, owner, leaseMinutes).Scan(&claimed).Error
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Heartbeat extends the lease while the job is still running, still ours,
// and the current lease has not already expired. A false return means the
// lease is lost and the caller must stop work.
func (r *Repo) Heartbeat(ctx context.Context, jobID uint64, owner string, leaseMinutes int) (bool, error) {
	res := r.DB.WithContext(ctx).Exec(`
update jobs
set lease_expires_at=now() + (? * interval '1 minute'), updated_at=now()
where id=? and status='running' and claimed_by=? and lease_expires_at > now()
`, leaseMinutes, jobID, owner)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FinalizeSuccess transitions running -> succeeded under the same guard as
// Heartbeat. A false return means the job was reaped out from under us.
func (r *Repo) FinalizeSuccess(ctx context.Context, jobID uint64, owner string) (bool, error) {
	res := r.DB.WithContext(ctx).Exec(`
update jobs
set status='succeeded', finished_at=now(), updated_at=now()
where id=? and status='running' and claimed_by=? and lease_expires_at > now()
`, jobID, owner)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FailAndRequeue marks the job failed (ownership-guarded) and, while under
// the retry cap, inserts a successor queued job with incremented attempt
// and the fixed backoff schedule. Reports whether the transition applied.
func (r *Repo) FailAndRequeue(ctx context.Context, job Job, owner string, cause string, retryCap int) (bool, error) {
	applied := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`
update jobs
set status='failed', last_error=?, finished_at=now(), updated_at=now()
where id=? and status='running' and claimed_by=?
`, cause, job.ID, owner)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true

		attempt := job.AttemptCount + 1
		if attempt > retryCap {
			return nil
		}
		return r.enqueueSuccessor(tx, job, attempt, cause)
	})
	return applied, err
}

// Reap recovers running jobs whose lease expired without a heartbeat. The
// original owner is presumed dead, so no ownership check. Each reaped job
// is failed and a successor queued with the same backoff schedule.
func (r *Repo) Reap(ctx context.Context, owner string, scanLimit, retryCap int) (int, error) {
	reaped := 0
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var expired []Job
		if err := tx.Raw(`
select * from jobs
where status='running' and lease_expires_at <= now()
order by lease_expires_at asc
for update skip locked
limit ?
`, scanLimit).Scan(&expired).Error; err != nil {
			return err
		}

		for _, job := range expired {
			res := tx.Exec(`
update jobs
set status='failed', last_error='lease expired', finished_at=now(), updated_at=now()
where id=? and status='running'
`, job.ID)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			reaped++

			attempt := job.AttemptCount + 1
			if attempt > retryCap {
				continue
			}
			if err := r.enqueueSuccessor(tx, job, attempt, "lease expired"); err != nil {
				return err
			}
		}
		return nil
	})
	return reaped, err
}

func (r *Repo) enqueueSuccessor(tx *gorm.DB, job Job, attempt int, cause string) error {
	runAt := time.Now().Add(RetryDelay(attempt))
	if job.JobType == TypeRefresh && job.SearchID != nil {
		// keep the one-active-refresh-per-search invariant
		return tx.Exec(`
insert into jobs (job_type, search_id, status, run_at, attempt_count, last_error, created_at, updated_at)
select 'refresh', ?, 'queued', ?, ?, ?, now(), now()
where not exists (
  select 1 from jobs
  where job_type='refresh' and search_id=? and status in ('queued','running')
)
on conflict do nothing
`, *job.SearchID, runAt, attempt, cause, *job.SearchID).Error
	}
	return tx.Exec(`
insert into jobs (job_type, search_id, status, run_at, attempt_count, last_error, created_at, updated_at)
values (?, ?, 'queued', ?, ?, ?, now(), now())
`, job.JobType, job.SearchID, runAt, attempt, cause).Error
}

// Stats returns job counts per (job_type, status) for the admin surface.
func (r *Repo) Stats(ctx context.Context) ([]StatRow, error) {
	var rows []StatRow
	err := r.DB.WithContext(ctx).Raw(`
select job_type, status, count(*) as count
from jobs
group by job_type, status
order by job_type, status
`).Scan(&rows).Error
	return rows, err
}

type StatRow struct {
	JobType string `json:"job_type"`
	Status  string `json:"status"`
	Count   int64  `json:"count"`
}
