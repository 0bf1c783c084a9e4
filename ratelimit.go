package bloggy

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTimeout = 5 * time.Minute

type limiterClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one token bucket per key. Buckets unused for limiterIdleTimeout are
// dropped on the next sweep.
type limiterSet struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	clients   map[string]*limiterClient
	lastSweep time.Time
}

// newLimiterSet returns a set allowing rps requests per second per key. A set with a zero rps
// allows everything.
func newLimiterSet(rps float64, burst int) *limiterSet {
	if burst < 1 {
		burst = 1
	}

	return &limiterSet{
		rps:       rate.Limit(rps),
		burst:     burst,
		clients:   map[string]*limiterClient{},
		lastSweep: time.Now(),
	}
}

func (l *limiterSet) allow(key string) bool {
	if l.rps <= 0 {
		return true
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > time.Minute {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > limiterIdleTimeout {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &limiterClient{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now

	return c.limiter.AllowN(now, 1)
}

// clientAddr extracts the client's IP address. Only the first X-Forwarded-For hop is
// used, so appending hops does not yield a new address.
func clientAddr(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
