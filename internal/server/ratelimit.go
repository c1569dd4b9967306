package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/BiancaGL2104/rag-book-recommender/internal/logging"
	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
)

// Each recommendation costs a model call, so the defaults are low.
const (
	defaultRateLimit = 2
	defaultRateBurst = 5
)

// limiterIdleTTL is how long an IP's bucket survives without traffic.
const limiterIdleTTL = 5 * time.Minute

// bucket is one client's token bucket plus its last activity time.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token bucket on the recommend endpoint.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	log     *slog.Logger
	// rejected is incremented on every 429.
	rejected prometheus.Counter
	now      func() time.Time
}

// newRateLimiter starts the limiter's eviction loop and returns a function
// that stops it.
func newRateLimiter(rps float64, burst int, log *slog.Logger, rejected prometheus.Counter) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets:  make(map[string]*bucket),
		rps:      rate.Limit(rps),
		burst:    burst,
		log:      log,
		rejected: rejected,
		now:      time.Now,
	}

	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.evict()
			}
		}
	}()
	return rl, func() { once.Do(func() { close(done) }) }
}

// allow takes a token from ip's bucket, creating the bucket on first use.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = rl.now()
	return b.limiter.Allow()
}

// evict drops buckets idle for longer than limiterIdleTTL.
func (rl *rateLimiter) evict() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterIdleTTL)
	n := 0
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
			n++
		}
	}
	return n
}

// middleware rejects over-limit requests with 429 and a JSON error body.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if rl.allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.rejected != nil {
			rl.rejected.Inc()
		}
		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("ip", ip),
			slog.String("path", r.URL.Path),
		)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: rag.Failure{
			Kind:      rag.KindInvalidRequest,
			Retryable: true,
			Message:   "rate limit exceeded",
		}})
	})
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is not
// trusted because the server binds to loopback by default.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
