package api

import (
	"context"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"clinic/internal/apperr"
	"clinic/internal/metrics"
)

const (
	codeUnauthorized apperr.Code = "Unauthorized"
	codeRateLimited  apperr.Code = "RateLimited"
)

// Role is the caller's role taken from the token.
type Role string

const (
	RolePatient      Role = "patient"
	RoleDoctor       Role = "doctor"
	RoleEmployee     Role = "employee"
	RoleScheduler    Role = "scheduler"
	RoleReceptionist Role = "receptionist"
	RoleAdmin        Role = "admin"
)

// Actor identifies the authenticated caller.
type Actor struct {
	ID   string
	Role Role
}

// Is reports whether the actor holds one of roles.
func (a Actor) Is(roles ...Role) bool {
	return slices.Contains(roles, a.Role)
}

// Claims is the JWT payload: sub is the actor id.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

func actorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(ctxKey{}).(Actor)
	return a
}

// NewToken signs an HS256 token for subject with role.
func NewToken(secret, issuer, subject string, role Role, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(s.config.JWTSecret)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			writeStatus(w, http.StatusUnauthorized, codeUnauthorized, "missing token")
			return
		}

		var claims Claims
		token, err := parser.ParseWithClaims(strings.TrimPrefix(h, "Bearer "), &claims, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			writeStatus(w, http.StatusUnauthorized, codeUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, Actor{ID: claims.Subject, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole rejects callers whose role is not listed.
func requireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !actorFrom(r.Context()).Is(roles...) {
				writeStatus(w, http.StatusForbidden, apperr.CodeForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const (
	rateLimiterMaxCallers = 10000
	rateLimiterIdleTTL    = 10 * time.Minute
)

// rateLimiter keeps one token bucket per caller. Buckets of callers idle for
// longer than the TTL are dropped, and the least recently seen caller is
// evicted once the cap is reached.
type rateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rps      rate.Limit
	burst    int
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return newRateLimiterSize(rps, burst, rateLimiterMaxCallers, rateLimiterIdleTTL)
}

func newRateLimiterSize(rps float64, burst, size int, ttl time.Duration) *rateLimiter {
	return &rateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
	}
	// re-adding refreshes the idle deadline
	l.limiters.Add(key, lim)
	l.mu.Unlock()
	return lim.Allow()
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := actorFrom(r.Context()).ID
		if key == "" {
			key, _, _ = net.SplitHostPort(r.RemoteAddr)
		}
		if !l.allow(key) {
			w.Header().Set("Retry-After", "1")
			writeStatus(w, http.StatusTooManyRequests, codeRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs every request and records it in the HTTP metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTP(r.Method, route, status, elapsed)

		ev := s.logger.Info()
		if status >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Msg("HTTP request")
	})
}
