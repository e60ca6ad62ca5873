package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tgqueue/internal/adapter/httpapi"
	"tgqueue/internal/adapter/journal"
	"tgqueue/internal/adapter/telegram"
	"tgqueue/internal/adapter/telegram/handlers"
	"tgqueue/internal/adapter/telegram/middleware"
	"tgqueue/internal/config"
	"tgqueue/internal/jobqueue"
	"tgqueue/internal/platform/httpclient"
	"tgqueue/internal/platform/logger"
)

const (
	pollTimeout     = time.Minute
	httpStopTimeout = 5 * time.Second

	// колбэки выполняются в цикле очереди, долгий колбэк задерживает остальные
	slowJobThreshold = 2 * time.Second
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "tgqueue",
	})
	return &App{cfg: cfg, log: log}, nil
}

// openJournal открывает журнал по драйверу из конфига. Для "none" возвращает nil.
func (a *App) openJournal(ctx context.Context) (journal.Store, error) {
	switch a.cfg.Journal.Driver {
	case "sqlite":
		return journal.OpenSQLite(ctx, a.cfg.Journal.SQLitePath, a.cfg.Journal.Retention)
	case "postgres":
		return journal.OpenPostgres(ctx, a.cfg.Journal.PostgresDSN, a.cfg.Journal.Retention, a.log)
	default:
		return nil, nil
	}
}

func (a *App) slowJobHooks() jobqueue.Hooks {
	return jobqueue.Hooks{
		OnJobFinish: func(job *jobqueue.Job, d time.Duration, _ error) {
			if d > slowJobThreshold {
				a.log.Warn("slow job callback", "job", job, "duration", d)
			}
		},
	}
}

// Run starts the application and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	defer func() { _ = logger.Close(a.log) }()
	a.log.Info("starting", "env", a.cfg.Env, "journal", a.cfg.Journal.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := a.openJournal(ctx)
	if err != nil {
		return err
	}
	var (
		hooks    jobqueue.Hooks
		recorder *journal.Recorder
	)
	if store != nil {
		defer func() {
			if cerr := store.Close(); cerr != nil {
				a.log.Warn("failed to close journal", "error", cerr)
			}
		}()
		recorder = journal.NewRecorder(store, journal.RecorderConfig{Logger: a.log})
		hooks = recorder.Hooks()
	}

	style := jobqueue.StyleBare
	if a.cfg.Scheduler.CallbackStyle == "rich" {
		style = jobqueue.StyleRich
	}
	q := jobqueue.New(jobqueue.Config{
		Logger:   a.log,
		Style:    style,
		Location: a.cfg.Location(),
		Hooks:    journal.CombineHooks(hooks, a.slowJobHooks()),
	})

	client := httpclient.New(
		httpclient.WithLogger(a.log),
		httpclient.WithURLRedactor(httpclient.RedactBotToken),
		httpclient.WithRetries(3, 300*time.Millisecond),
	)

	var disp *telegram.Dispatcher
	opts := []bot.Option{
		bot.WithHTTPClient(pollTimeout, client),
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, upd *models.Update) {
			disp.Handle(ctx, b, upd)
		}),
		bot.WithAllowedUpdates([]string{"message", "callback_query"}),
	}
	if a.cfg.Telegram.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(a.cfg.Telegram.WebhookSecret))
	}
	b, err := bot.New(a.cfg.Telegram.Token, opts...)
	if err != nil {
		return err
	}

	acl := middleware.NewACL(a.cfg.Access.AllowedUserIDs, a.log)
	rate := middleware.NewRateLimiter(a.cfg.Access.RateLimitPerSec, a.cfg.Access.RateBurst)
	h := handlers.New(q, store, a.log)
	disp = telegram.NewDispatcher(b, a.cfg.Telegram.Workers,
		middleware.Chain(h.Handle, acl.Middleware, rate.Middleware), a.log)
	q.SetDispatcher(disp)

	webhook := a.cfg.Telegram.WebhookURL != ""
	api := httpapi.Config{Queue: q, Logger: a.log}
	if store != nil {
		api.Runs = store
	}
	if webhook {
		api.Webhook = b.WebhookHandler()
	}
	srv := httpapi.NewServer(a.cfg.HTTP.Addr, httpapi.NewRouter(api))
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server", slog.Any("err", err))
			stop()
		}
	}()

	q.Start(ctx)

	if webhook {
		_, err := b.SetWebhook(ctx, &bot.SetWebhookParams{
			URL:         a.cfg.Telegram.WebhookURL,
			SecretToken: a.cfg.Telegram.WebhookSecret,
		})
		if err != nil {
			stop()
			a.shutdown(q, disp, recorder, srv)
			return err
		}
		go b.StartWebhook(ctx)
	} else {
		go b.Start(ctx)
	}

	<-ctx.Done()
	a.log.Info("shutting down")
	a.shutdown(q, disp, recorder, srv)
	return nil
}

// shutdown останавливает компоненты в обратном порядке: сначала ничего
// нового не планируется, затем дописывается журнал.
func (a *App) shutdown(q *jobqueue.JobQueue, disp *telegram.Dispatcher, recorder *journal.Recorder, srv *http.Server) {
	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Scheduler.ShutdownTimeout)
	defer cancel()
	if err := q.StopContext(stopCtx); err != nil {
		a.log.Warn("job queue stop", "error", err)
	}

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), httpStopTimeout)
	defer cancelHTTP()
	if err := srv.Shutdown(httpCtx); err != nil {
		a.log.Warn("http server shutdown", "error", err)
	}

	disp.Close()

	if recorder != nil {
		if err := recorder.Close(stopCtx); err != nil {
			a.log.Warn("journal flush incomplete", "error", err, "dropped", recorder.Dropped())
		}
	}
}
