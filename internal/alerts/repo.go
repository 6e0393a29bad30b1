package alerts

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repo persists alert events and the settings the dispatcher consults.
// Status transitions are guarded conditional updates: a transition only
// applies if the row is still in the expected prior state.
type Repo struct {
	DB *gorm.DB
}

// CreateEvent inserts a pending alert for a stored result, absorbing
// duplicates via the unique dedupe key. Reports whether a row was created.
func (r *Repo) CreateEvent(ctx context.Context, searchID, resultID uint64) (bool, error) {
	ev := AlertEvent{
		SearchID:  searchID,
		ResultID:  &resultID,
		Status:    StatusPending,
		DedupeKey: DedupeKey(searchID, resultID),
	}
	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(&ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Backfill creates pending alerts for up to limit results under the search
// that have no event yet, newest listings first. This is the safety net
// that keeps an ingested result from being silently missed.
func (r *Repo) Backfill(ctx context.Context, searchID uint64, limit int) (int, error) {
	res := r.DB.WithContext(ctx).Exec(`
insert into alert_events (search_id, result_id, status, dedupe_key, created_at, updated_at)
select r.search_id, r.id, 'pending', 's' || r.search_id::text || ':r' || r.id::text, now(), now()
from results r
where r.search_id = ?
  and not exists (
    select 1 from alert_events a where a.search_id = r.search_id and a.result_id = r.id
  )
order by r.found_at desc
limit ?
on conflict (dedupe_key) do nothing
`, searchID, limit)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// SweepStuck requeues sending alerts whose last attempt is older than the
// threshold; recovers from a crash between claim and send.
func (r *Repo) SweepStuck(ctx context.Context, searchID uint64, olderThan time.Duration) (int, error) {
	res := r.DB.WithContext(ctx).Exec(`
update alert_events
set status='pending', updated_at=now()
where search_id=? and status='sending'
  and last_attempt_at is not null
  and last_attempt_at < now() - (? * interval '1 second')
`, searchID, int(olderThan.Seconds()))
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// SweepStuckAll is the cycle-level variant with no search filter, so alerts
// on searches that later lost their destination still get recovered.
func (r *Repo) SweepStuckAll(ctx context.Context, olderThan time.Duration) (int, error) {
	res := r.DB.WithContext(ctx).Exec(`
update alert_events
set status='pending', updated_at=now()
where status='sending'
  and last_attempt_at is not null
  and last_attempt_at < now() - (? * interval '1 second')
`, int(olderThan.Seconds()))
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// LastSentAt returns the most recent successful send for the search, or
// nil if nothing was ever sent.
func (r *Repo) LastSentAt(ctx context.Context, searchID uint64) (*time.Time, error) {
	var row struct{ SentAt *time.Time }
	err := r.DB.WithContext(ctx).Raw(`
select max(sent_at) as sent_at from alert_events where search_id=? and status='sent'
`, searchID).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return row.SentAt, nil
}

// ClaimPending moves up to limit due pending alerts with a matched result
// to sending, FIFO by created_at. The claim is one statement, so it commits
// before any network I/O happens and SKIP LOCKED excludes concurrent
// dispatchers.
func (r *Repo) ClaimPending(ctx context.Context, searchID uint64, limit int) ([]AlertEvent, error) {
	var claimed []AlertEvent
	err := r.DB.WithContext(ctx).Raw(`
with cte as (
  select id
  from alert_events
  where search_id=? and status='pending'
    and result_id is not null
    and (next_attempt_at is null or next_attempt_at <= now())
  order by created_at asc, id asc
  for update skip locked
  limit ?
)
update alert_events
set status='sending', last_attempt_at=now(), updated_at=now()
where id in (select id from cte) and status='pending'
returning *;
`, searchID, limit).Scan(&claimed).Error
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkSent transitions the batch sending -> sent and clears retry state.
func (r *Repo) MarkSent(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Exec(`
update alert_events
set status='sent', sent_at=now(), error_message=null, attempt_count=0,
    next_attempt_at=null, updated_at=now()
where id in ? and status='sending'
`, ids).Error
}

// RequeueFailed returns a sending alert to pending with an incremented
// attempt count and a delayed next attempt.
func (r *Repo) RequeueFailed(ctx context.Context, eventID uint64, errMsg string, delay time.Duration) error {
	return r.DB.WithContext(ctx).Exec(`
update alert_events
set status='pending', attempt_count=attempt_count+1, error_message=?,
    next_attempt_at=now() + (? * interval '1 second'), updated_at=now()
where id=? and status='sending'
`, errMsg, int(delay.Seconds()), eventID).Error
}

// MarkTerminal parks a sending alert in the terminal error state once the
// retry cap is exhausted.
func (r *Repo) MarkTerminal(ctx context.Context, eventID uint64, errMsg string) error {
	return r.DB.WithContext(ctx).Exec(`
update alert_events
set status='error', attempt_count=attempt_count+1, error_message=?, updated_at=now()
where id=? and status='sending'
`, errMsg, eventID).Error
}

// Dismiss lets a user silence a non-terminal alert.
func (r *Repo) Dismiss(ctx context.Context, searchID, eventID uint64) (bool, error) {
	res := r.DB.WithContext(ctx).Exec(`
update alert_events
set status='dismissed', updated_at=now()
where id=? and search_id=? and status in ('pending','error')
`, eventID, searchID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListBySearch returns alerts for the admin surface, newest first.
func (r *Repo) ListBySearch(ctx context.Context, searchID uint64, status string, limit int) ([]AlertEvent, error) {
	q := r.DB.WithContext(ctx).Where("search_id=?", searchID)
	if status != "" {
		q = q.Where("status=?", status)
	}
	var out []AlertEvent
	err := q.Order("created_at desc, id desc").Limit(limit).Find(&out).Error
	return out, err
}

// Settings loads the alert settings for a search, falling back to defaults
// when no row exists yet.
func (r *Repo) Settings(ctx context.Context, searchID uint64) (AlertSetting, error) {
	var s AlertSetting
	err := r.DB.WithContext(ctx).Where("search_id=?", searchID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultSettings(searchID), nil
	}
	if err != nil {
		return AlertSetting{}, err
	}
	return s, nil
}

// RecordDigestSent stamps the timestamp hasDigestBeenSentToday consults.
func (r *Repo) RecordDigestSent(ctx context.Context, searchID uint64, at time.Time) error {
	return r.DB.WithContext(ctx).Exec(`
insert into alert_settings (search_id, enabled, mode, max_per_email, last_digest_sent_at, created_at, updated_at)
values (?, true, 'daily', 20, ?, now(), now())
on conflict (search_id) do update set last_digest_sent_at=excluded.last_digest_sent_at, updated_at=now()
`, searchID, at).Error
}

// EmailDestination returns the single enabled email destination for the
// search, or nil when none is configured.
func (r *Repo) EmailDestination(ctx context.Context, searchID uint64) (*NotificationSetting, error) {
	var ns NotificationSetting
	err := r.DB.WithContext(ctx).
		Where("search_id=? and channel='email' and is_enabled", searchID).
		Order("id asc").First(&ns).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ns, nil
}

// EmailItem is what the email body renders per claimed alert.
type EmailItem struct {
	EventID     uint64
	Title       string
	PriceRaw    string
	Currency    string
	ListingURL  string
	Marketplace string
	Location    *string
}

// ItemsForEvents joins the claimed batch to its stored listings.
func (r *Repo) ItemsForEvents(ctx context.Context, ids []uint64) ([]EmailItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []EmailItem
	err := r.DB.WithContext(ctx).Raw(`
select a.id as event_id, r.title, r.price_raw, r.currency, r.listing_url, r.marketplace, r.location
from alert_events a
join results r on r.id = a.result_id
where a.id in ?
order by a.created_at asc, a.id asc
`, ids).Scan(&items).Error
	return items, err
}

// SearchName resolves the search's display name for the email subject.
func (r *Repo) SearchName(ctx context.Context, searchID uint64) (string, error) {
	var row struct{ Name string }
	err := r.DB.WithContext(ctx).Raw(`select name from searches where id=?`, searchID).Scan(&row).Error
	return row.Name, err
}

// SearchIDsWithEmailEnabled lists searches the batch dispatcher visits, in
// ascending id order.
func (r *Repo) SearchIDsWithEmailEnabled(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := r.DB.WithContext(ctx).Raw(`
select distinct s.id
from searches s
join notification_settings ns on ns.search_id = s.id
where ns.channel='email' and ns.is_enabled and s.status='active'
order by s.id asc
`).Scan(&ids).Error
	return ids, err
}
