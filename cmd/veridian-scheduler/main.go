package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/veridianhq/veridian/pkg/audit"
	"github.com/veridianhq/veridian/pkg/config"
	"github.com/veridianhq/veridian/pkg/database"
	"github.com/veridianhq/veridian/pkg/lifecycle"
	"github.com/veridianhq/veridian/pkg/notify"
	"github.com/veridianhq/veridian/pkg/orgs"
	"github.com/veridianhq/veridian/pkg/policy"
	"github.com/veridianhq/veridian/pkg/scheduler"
)

var (
	warningSchedule = flag.String("warning-schedule", "0 9 * * *", "Cron schedule for trial expiry warnings (default: 09:00 UTC)")
	expirySchedule  = flag.String("expiry-schedule", "5 0 * * *", "Cron schedule for expired trial lockout (default: 00:05 UTC)")
	cleanupSchedule = flag.String("cleanup-schedule", "30 0 * * *", "Cron schedule for demo cleanup (default: 00:30 UTC)")
	runOnce         = flag.Bool("run-once", false, "Run every sweep once and exit")
	logLevel        = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	limitsCfg, err := config.LoadLimitsConfig(cfg.LimitsFile)
	if err != nil {
		logger.WithError(err).Fatal("failed to load plan limits")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.URL, database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	auditLog := audit.NewDBLogger(db)
	defer auditLog.Close()

	store := orgs.NewPostgresStore(db)
	engine := policy.NewEngine(store, limitsCfg)
	lifecycleSvc := lifecycle.NewService(store, engine, cfg.Lifecycle,
		lifecycle.WithAuditLogger(auditLog),
		lifecycle.WithNotifier(notify.NewDBDispatcher(db)),
	)
	sweeper := scheduler.NewSweeper(store, lifecycleSvc, cfg.Lifecycle,
		scheduler.WithAuditLogger(auditLog),
		scheduler.WithNotifier(notify.NewDBDispatcher(db)),
	)

	runWarnings := func() {
		sent, err := sweeper.SendTrialWarnings(ctx)
		if err != nil {
			logger.WithError(err).Error("trial warning sweep failed")
			return
		}
		logger.WithField("warnings_sent", sent).Info("trial warning sweep completed")
	}
	runExpiry := func() {
		locked, err := sweeper.ProcessExpiredTrials(ctx)
		if err != nil {
			logger.WithError(err).Error("expired trial sweep failed")
			return
		}
		logger.WithField("trials_locked", locked).Info("expired trial sweep completed")
	}
	runCleanup := func() {
		count, err := sweeper.CleanupDemos(ctx)
		if err != nil {
			logger.WithError(err).Error("demo cleanup sweep failed")
			return
		}
		logger.WithField("demos_deleted", count).Info("demo cleanup sweep completed")
	}

	if *runOnce {
		runExpiry()
		runWarnings()
		runCleanup()
		return
	}

	c := cron.New()
	for _, job := range []struct {
		schedule string
		run      func()
		name     string
	}{
		{*warningSchedule, runWarnings, "trial warnings"},
		{*expirySchedule, runExpiry, "expired trials"},
		{*cleanupSchedule, runCleanup, "demo cleanup"},
	} {
		if _, err := c.AddFunc(job.schedule, job.run); err != nil {
			logger.WithError(err).WithField("job", job.name).Fatal("failed to schedule job")
		}
	}

	logger.Info("veridian scheduler started")
	c.Start()

	<-ctx.Done()
	logger.Info("shutting down")
	<-c.Stop().Done()
}
