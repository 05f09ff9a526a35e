package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pilltrack/pilltrack/internal/advisory"
	"github.com/pilltrack/pilltrack/internal/api"
	"github.com/pilltrack/pilltrack/internal/config"
	"github.com/pilltrack/pilltrack/internal/medication"
	"github.com/pilltrack/pilltrack/internal/notify"
	"github.com/pilltrack/pilltrack/internal/store"
	"go.uber.org/zap"
)

// App wires configuration, storage, the medication service, the advisory
// client, reminders, and the API server together.
type App struct {
	Config    *config.Config
	Store     *store.Store
	Logger    *zap.Logger
	Meds      *medication.Service
	Advisor   *advisory.Advisor
	Scheduler *notify.Scheduler
	Version   string
}

// New builds the application from loaded config and an open store
func New(cfg *config.Config, st *store.Store, logger *zap.Logger, version string) (*App, error) {
	meds, err := medication.NewService(st, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize medication service: %w", err)
	}

	// First run: seed the user preference toggles from config
	if err := meds.EnsurePreferences(medication.Preferences{
		RemindersEnabled:  cfg.Reminders.Enabled,
		AdaptiveReminders: cfg.Reminders.Adaptive,
		RefillAlerts:      true,
	}); err != nil {
		logger.Warn("failed to seed preferences", zap.Error(err))
	}

	var checker advisory.Checker
	if cfg.Advisory.Enabled {
		checker = advisory.NewClient(cfg.Advisory)
	}
	advisor := advisory.New(checker, logger)

	// Recompute the interaction advisory whenever the collection changes
	meds.OnCollectionChange(func() {
		advisor.Refresh(context.Background(), meds.List())
	})

	notifier := buildNotifier(cfg, logger)
	scheduler := notify.NewScheduler(meds, notifier, logger, cfg.Reminders.RefillCheckTime)

	return &App{
		Config:    cfg,
		Store:     st,
		Logger:    logger,
		Meds:      meds,
		Advisor:   advisor,
		Scheduler: scheduler,
		Version:   version,
	}, nil
}

func buildNotifier(cfg *config.Config, logger *zap.Logger) notify.Notifier {
	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}

	if cfg.Reminders.Telegram.Enabled {
		tg, err := notify.NewTelegramNotifier(cfg.Reminders.Telegram, logger)
		if err != nil {
			logger.Error("failed to create telegram notifier", zap.Error(err))
		} else {
			notifiers = append(notifiers, tg)
			logger.Info("telegram notifications enabled")
		}
	}

	return notify.NewMultiNotifier(notifiers...)
}

// RunServer starts the reminder scheduler and the API server, then blocks
// until SIGINT or SIGTERM.
func (app *App) RunServer() {
	if app.Config.Reminders.Enabled {
		if err := app.Scheduler.Start(); err != nil {
			app.Logger.Error("failed to start reminder scheduler", zap.Error(err))
		} else {
			app.Logger.Info("reminder scheduler started")
		}
	}

	// Seed the advisory for the collection loaded from disk
	app.Advisor.Refresh(context.Background(), app.Meds.List())

	server := api.New(app.Config, app.Store, app.Meds, app.Advisor, app.Scheduler, app.Logger)

	go func() {
		if err := server.Start(); err != nil {
			app.Logger.Fatal("server error", zap.Error(err))
		}
	}()

	app.Logger.Info("server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("shutting down...")

	app.Scheduler.Stop()

	if err := server.Shutdown(); err != nil {
		app.Logger.Error("server shutdown error", zap.Error(err))
	}
}
