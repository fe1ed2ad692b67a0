package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"nyfed-stress/internal/alerting"
	"nyfed-stress/internal/config"
	"nyfed-stress/internal/httpapi"
	"nyfed-stress/internal/nyfed"
	"nyfed-stress/internal/scheduler"
	"nyfed-stress/internal/service"
	"nyfed-stress/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newClient() *nyfed.Client {
	return nyfed.New(nyfed.Options{
		BaseURL:   a.Config.NYFed.BaseURL,
		Timeout:   a.Config.NYFed.RequestTimeout,
		UserAgent: a.Config.NYFed.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Notify.Enabled {
		return nil
	}

	var notifiers []alerting.Notifier
	for _, channel := range a.Config.Notify.Channels {
		switch channel {
		case "console":
			if a.Config.Notify.Console.Enabled {
				notifiers = append(notifiers, alerting.NewConsoleNotifier(nil))
			}
		case "slack":
			if a.Config.Notify.Slack.Enabled {
				notifiers = append(notifiers, alerting.NewSlackNotifier(a.Config.Notify.Slack.WebhookURL, 10*time.Second, a.Logger))
			}
		default:
			a.Logger.Warn().Str("channel", channel).Msg("unknown notify channel ignored")
		}
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewMultiNotifier(notifiers...)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store) *service.Service {
	return service.New(a.Config, a.newClient(), store, store, a.newNotifier(), a.Logger)
}

// Run executes the long-running scheduled ingestion service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(store)

	a.Logger.Info().Msg("starting scheduled ingestion service")
	err = sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		_, runErr := svc.RunOnce(ctx)
		return runErr
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("ingestion service stopped")
	return nil
}

// RunOnce executes a single ingestion pass and exits. Suited for cron-style
// external scheduling.
func (a *App) RunOnce(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.newService(store)
	score, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info().Float64("system_score", score).Msg("single ingestion pass complete")
	return nil
}

// Serve runs the read-side dashboard API until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.newService(store)
	server := httpapi.NewServer(a.Config, store, store, svc, a.Logger)
	return server.Start(ctx)
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting one series' history.
type ExportOptions struct {
	SeriesID string
	From     *time.Time
	To       *time.Time
	CSVPath  string
	PNGPath  string
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}
