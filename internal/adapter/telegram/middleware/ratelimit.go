package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"tgqueue/internal/adapter/telegram"
)

// idleLimiterTTL - через сколько простоя лимитер пользователя забывается.
const idleLimiterTTL = 10 * time.Minute

type userLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter restricts request frequency per user (token bucket).
type RateLimiter struct {
	mu        sync.Mutex
	users     map[int64]*userLimiter
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

// NewRateLimiter creates limiter allowing perSec requests per second with
// the given burst. perSec <= 0 disables limiting.
func NewRateLimiter(perSec float64, burst int) *RateLimiter {
	limit := rate.Limit(perSec)
	if perSec <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		users: make(map[int64]*userLimiter),
		limit: limit,
		burst: burst,
		now:   time.Now,
	}
}

// Allow returns false if user hits the limit.
func (r *RateLimiter) Allow(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)
	u, ok := r.users[userID]
	if !ok {
		u = &userLimiter{lim: rate.NewLimiter(r.limit, r.burst)}
		r.users[userID] = u
	}
	u.seen = now
	return u.lim.AllowN(now, 1)
}

// sweep удаляет давно молчавших пользователей не чаще раза в TTL.
func (r *RateLimiter) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < idleLimiterTTL {
		return
	}
	r.lastSweep = now
	for id, u := range r.users {
		if now.Sub(u.seen) > idleLimiterTTL {
			delete(r.users, id)
		}
	}
}

// Middleware checks rate limit before calling next handler.
func (r *RateLimiter) Middleware(next telegram.HandlerFunc) telegram.HandlerFunc {
	return func(ctx context.Context, s telegram.Sender, upd *models.Update) {
		if uid := telegram.UserID(upd); uid != 0 && !r.Allow(uid) {
			if chat := telegram.ChatID(upd); chat != 0 {
				_, _ = s.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: chat,
					Text:   "слишком часто",
				})
			}
			return
		}
		next(ctx, s, upd)
	}
}
