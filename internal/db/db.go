package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gosnaggit/internal/alerts"
	"gosnaggit/internal/auth"
	"gosnaggit/internal/ingest"
	"gosnaggit/internal/jobs"
	"gosnaggit/internal/search"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&auth.User{},
		&search.Search{},
		&jobs.Job{},
		&ingest.Result{},
		&alerts.AlertEvent{},
		&alerts.NotificationSetting{},
		&alerts.AlertSetting{},
	); err != nil {
		return err
	}

	// One stored listing per (search, marketplace, external id); the upsert
	// relies on this to stay idempotent under races.
	if err := gdb.Exec(`
create unique index if not exists uq_results_listing
on results(search_id, marketplace, external_id);
`).Error; err != nil {
		return err
	}

	// At most one queued/running refresh job per search.
	if err := gdb.Exec(`
create unique index if not exists uq_jobs_active_refresh
on jobs(search_id)
where job_type = 'refresh' and status in ('queued','running');
`).Error; err != nil {
		return err
	}

	// Helpful indexes
	stmts := []string{
		`create index if not exists idx_jobs_claim on jobs(job_type, status, run_at);`,
		`create index if not exists idx_jobs_lease on jobs(status, lease_expires_at);`,
		`create index if not exists idx_alerts_dispatch on alert_events(search_id, status, next_attempt_at);`,
		`create index if not exists idx_alerts_stuck on alert_events(status, last_attempt_at);`,
		`create index if not exists idx_results_search_found on results(search_id, found_at desc);`,
		`create index if not exists idx_searches_due on searches(status, next_refresh_at);`,
		`create index if not exists idx_notification_settings_search on notification_settings(search_id, channel, is_enabled);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
