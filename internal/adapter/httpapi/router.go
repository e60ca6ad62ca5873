// Package httpapi отдает вебхук Telegram и служебные ручки очереди задач.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tgqueue/internal/adapter/journal"
	"tgqueue/internal/jobqueue"
)

const (
	// WebhookPath - путь, на который Telegram шлет апдейты.
	WebhookPath = "/telegram/webhook"

	pingTimeout = 2 * time.Second
)

// RunSource - чтение журнала запусков.
type RunSource interface {
	Recent(ctx context.Context, limit int) ([]journal.Run, error)
	Ping(ctx context.Context) error
}

// Config описывает зависимости роутера.
type Config struct {
	Queue *jobqueue.JobQueue
	// Runs может быть nil, если журнал выключен.
	Runs RunSource
	// Webhook может быть nil в режиме long polling.
	Webhook http.Handler
	Logger  *slog.Logger
}

type api struct {
	queue *jobqueue.JobQueue
	runs  RunSource
	log   *slog.Logger
}

// NewRouter собирает gin-роутер.
func NewRouter(cfg Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{queue: cfg.Queue, runs: cfg.Runs, log: logger.With("component", "httpapi")}

	r := gin.New()
	r.Use(gin.Recovery(), a.accessLog)

	r.GET("/healthz", a.health)
	r.GET("/jobs", a.jobs)
	r.GET("/runs", a.recentRuns)
	if cfg.Webhook != nil {
		r.POST(WebhookPath, gin.WrapH(cfg.Webhook))
	}
	return r
}

// NewServer оборачивает handler в http.Server с таймаутами.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (a *api) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	status := c.Writer.Status()
	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	a.log.Log(c.Request.Context(), level, "http request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", status,
		"duration", time.Since(start),
	)
}

func (a *api) health(c *gin.Context) {
	running := a.queue.IsRunning()
	status := http.StatusOK
	if !running {
		status = http.StatusServiceUnavailable
	}

	journalState := "disabled"
	if a.runs != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()
		if err := a.runs.Ping(ctx); err != nil {
			a.log.Warn("journal ping failed", "error", err)
			journalState = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			journalState = "ok"
		}
	}

	text := "ok"
	if status != http.StatusOK {
		text = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    text,
		"scheduler": gin.H{"running": running, "pending": a.queue.Pending()},
		"journal":   journalState,
	})
}

type jobView struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Policy          string     `json:"policy"`
	NextT           *time.Time `json:"next_t"`
	Enabled         bool       `json:"enabled"`
	IntervalSeconds float64    `json:"interval_seconds,omitempty"`
	TimeOfDay       string     `json:"time_of_day,omitempty"`
	Days            []string   `json:"days,omitempty"`
	Cron            string     `json:"cron,omitempty"`
}

func viewOf(job *jobqueue.Job) jobView {
	v := jobView{
		ID:      job.ID().String(),
		Name:    job.Name(),
		Policy:  job.Policy().String(),
		Enabled: job.Enabled(),
	}
	if t := job.NextT(); !t.IsZero() {
		v.NextT = &t
	}
	switch job.Policy() {
	case jobqueue.PolicyRepeating:
		v.IntervalSeconds = job.IntervalSeconds()
	case jobqueue.PolicyDaily:
		tod, _ := job.TimeOfDay()
		v.TimeOfDay = tod.String()
		for _, d := range job.Days() {
			v.Days = append(v.Days, d.String())
		}
	case jobqueue.PolicyCron:
		v.Cron, _ = job.CronSpec()
	}
	return v
}

func (a *api) jobs(c *gin.Context) {
	jobs := a.queue.Jobs()
	out := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, viewOf(job))
	}
	c.JSON(http.StatusOK, out)
}

func (a *api) recentRuns(c *gin.Context) {
	if a.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > journal.MaxRecent {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be in 1.." + strconv.Itoa(journal.MaxRecent)})
			return
		}
		limit = n
	}
	runs, err := a.runs.Recent(c.Request.Context(), limit)
	if err != nil {
		a.log.Error("failed to read journal", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal unavailable"})
		return
	}
	c.JSON(http.StatusOK, runs)
}
