package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gosnaggit/internal/alerts"
	"gosnaggit/internal/auth"
	"gosnaggit/internal/config"
	"gosnaggit/internal/db"
	httpx "gosnaggit/internal/http"
	"gosnaggit/internal/ingest"
	"gosnaggit/internal/jobs"
	"gosnaggit/internal/logging"
	"gosnaggit/internal/mail"
	"gosnaggit/internal/market"
	"gosnaggit/internal/search"
	"gosnaggit/internal/worker"
)

// advisory lock key for worker leader election
const leaderLockKey = 0x6f534e61 // "oSNa"

func main() {
	cfg, _ := config.Load()

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	jwtSvc := auth.NewJWT(cfg.JWTSecret)

	jobsRepo := &jobs.Repo{DB: gdb}
	alertsRepo := &alerts.Repo{DB: gdb}
	scheduler := &search.Scheduler{DB: gdb, Log: log}
	ingestor := &ingest.Ingestor{DB: gdb, Log: log}

	var mailer mail.Sender
	if cfg.SMTPAddr != "" {
		mailer = &mail.SMTPSender{
			Addr: cfg.SMTPAddr, From: cfg.SMTPFrom,
			Username: cfg.SMTPUsername, Password: cfg.SMTPPassword,
		}
	} else {
		log.Warn("SMTP_ADDR not set; using log email transport")
		mailer = &mail.LogSender{Log: log}
	}

	adapters := []market.Adapter{&market.MockAdapter{Source: "mock"}}
	if cfg.MarketplaceBaseURL != "" {
		httpAdapter, err := market.NewHTTPJSONAdapter(market.HTTPJSONOptions{
			Name:    "marketplace",
			BaseURL: cfg.MarketplaceBaseURL,
		})
		if err != nil {
			log.Fatal("marketplace adapter", zap.Error(err))
		}
		adapters = append(adapters, httpAdapter)
	}
	registry := &market.Registry{Adapters: adapters, Log: log}

	dispatcher := &alerts.Dispatcher{
		Store:       alertsRepo,
		Mailer:      mailer,
		Log:         log,
		Cooldown:    cfg.DispatchCooldown,
		StuckAfter:  cfg.StuckSendingAfter,
		RetryBase:   cfg.AlertRetryBase,
		RetryMax:    cfg.AlertRetryMax,
		MaxAttempts: cfg.AlertMaxAttempts,
	}

	owner := "worker-" + uuid.NewString()
	wrk := &worker.Worker{
		Owner:      owner,
		Queue:      jobsRepo,
		Scheduler:  scheduler,
		Ingestor:   ingestor,
		Alerts:     alertsRepo,
		Dispatcher: dispatcher,
		Market:     registry,
		DB:         gdb,
		Log:        log,

		Tick:            cfg.WorkerTick,
		LeaseMinutes:    cfg.LeaseMinutes,
		HeartbeatEvery:  cfg.Heartbeat,
		RefreshBatch:    cfg.RefreshBatch,
		DispatchBatch:   cfg.DispatchBatch,
		RetryCap:        cfg.JobRetryCap,
		ReaperScanLimit: cfg.ReaperScanLimit,
		BackfillLimit:   cfg.BackfillLimit,
		DispatchEvery:   search.DispatchInterval(""),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lock := &worker.AdvisoryLock{DB: gdb, Key: leaderLockKey}
	go runLeader(ctx, lock, wrk, log)

	r := httpx.NewRouter(cfg, httpx.Deps{
		DB:         gdb,
		JWT:        jwtSvc,
		Scheduler:  scheduler,
		Jobs:       jobsRepo,
		Alerts:     alertsRepo,
		Dispatcher: dispatcher,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = lock.Release(shutdownCtx)
}

// runLeader polls for the cluster lock and runs the worker loop while it
// holds leadership. Candidates that lose the race keep waiting so failover
// is automatic.
func runLeader(ctx context.Context, lock worker.Lock, wrk *worker.Worker, log *zap.Logger) {
	for {
		got, err := lock.Acquire(ctx)
		if err != nil {
			log.Error("leader lock", zap.Error(err))
		}
		if got {
			log.Info("leadership acquired", zap.String("owner", wrk.Owner))
			wrk.Run(ctx) // returns on ctx cancel
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}
