package security

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"trivia-kiosk/config"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// Guard carries the kiosk access checks: the attendant key gate on the
// admin console routes and a Redis fixed-window rate limit on the
// registration endpoint.
type Guard struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewGuard(redisClient *redis.Client, cfg *config.Config) *Guard {
	return &Guard{redis: redisClient, cfg: cfg}
}

// RequireAttendantKey wraps admin-console handlers. The expected key is
// configured as a bcrypt hash; an empty hash disables the gate, which
// is the development default.
func (g *Guard) RequireAttendantKey(next func(*core.RequestEvent) error) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if g.cfg.AttendantKeyHash == "" {
			return next(e)
		}

		key := e.Request.Header.Get("X-Attendant-Key")
		if key == "" {
			return apis.NewUnauthorizedError("Attendant key required", nil)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(g.cfg.AttendantKeyHash), []byte(key)); err != nil {
			return apis.NewUnauthorizedError("Invalid attendant key", nil)
		}
		return next(e)
	}
}

// RegistrationRateLimit caps sign-up attempts per device address inside
// a fixed window. The kiosk floor has a handful of devices; anything
// chattier than the limit is a stuck or hostile client.
func (g *Guard) RegistrationRateLimit(next func(*core.RequestEvent) error) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		ctx := e.Request.Context()
		window := time.Now().Unix() / int64(g.cfg.RegisterRateWindow.Seconds())
		key := fmt.Sprintf("ratelimit:register:%s:%d", e.RealIP(), window)

		count, err := g.redis.Incr(ctx, key).Result()
		if err != nil {
			// Redis trouble should not block registrations.
			return next(e)
		}
		if count == 1 {
			g.redis.Expire(ctx, key, g.cfg.RegisterRateWindow)
		}
		if count > int64(g.cfg.RegisterRateLimit) {
			return apis.NewApiError(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", nil)
		}
		return next(e)
	}
}

// SuspiciousUserAgent flags obvious scripted clients hitting the
// registration surface.
func SuspiciousUserAgent(userAgent string) bool {
	if userAgent == "" {
		return true
	}
	ua := strings.ToLower(userAgent)
	for _, marker := range []string{"bot", "crawler", "spider", "scraper", "curl/", "python-requests"} {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
