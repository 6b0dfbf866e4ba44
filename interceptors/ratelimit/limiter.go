// Package ratelimit vetoes frames from connections that send faster than a
// token-bucket limit allows. Each connection gets its own bucket.
//
//	limiter := ratelimit.New(rate.Limit(10), 20)
//	server.Intercept(halyard.Incoming, ratelimit.Interceptor[*Room](limiter))
//	server.Route(halyard.DisconnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, room *Room) {
//	    limiter.Forget(d.ID())
//	})
package ratelimit

import (
	"context"
	"sync"

	"github.com/RobertWHurst/halyard"
	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per connection id.
type Limiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a limiter allowing limit frames per second per connection,
// with bursts of up to burst frames.
func New(limit rate.Limit, burst int) *Limiter {
	return &Limiter{
		limit:    limit,
		burst:    burst,
		limiters: map[string]*rate.Limiter{},
	}
}

// Allow reports whether the connection may send a frame now, and takes a
// token if so.
func (l *Limiter) Allow(connectionID string) bool {
	return l.limiter(connectionID).Allow()
}

// Forget drops the bucket for a connection. Call it when the connection
// ends.
func (l *Limiter) Forget(connectionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, connectionID)
}

// Len returns the number of connections being tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) limiter(connectionID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[connectionID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[connectionID] = limiter
	}
	return limiter
}

// Interceptor returns an interceptor that vetoes frames over the limit. The
// connection stays open; excess frames are dropped.
func Interceptor[S any](l *Limiter) halyard.InterceptorFunc[S] {
	return func(ctx context.Context, text string, connectionID string, state S) (string, bool) {
		return text, l.Allow(connectionID)
	}
}
