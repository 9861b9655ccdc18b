package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned once a caller exceeds its request rate.
var ErrRateLimited = errors.New("rate limit exceeded")

const visitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per authenticated user, falling back to the
// client address for anonymous calls. It must run after RequireAuth.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

var _ connect.Interceptor = (*RateLimiter)(nil)

// NewRateLimiter allows rps requests per second per caller with bursts of burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

func (l *RateLimiter) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		if !l.allow(callerKey(ctx, req.Peer().Addr, req.Header())) {
			return nil, connect.NewError(connect.CodeResourceExhausted, ErrRateLimited)
		}
		return next(ctx, req)
	}
}

func (l *RateLimiter) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (l *RateLimiter) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if !l.allow(callerKey(ctx, conn.Peer().Addr, conn.RequestHeader())) {
			return connect.NewError(connect.CodeResourceExhausted, ErrRateLimited)
		}
		return next(ctx, conn)
	}
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > time.Minute {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func callerKey(ctx context.Context, addr string, header http.Header) string {
	if userID := GetUserID(ctx); userID != "" {
		return "user:" + userID
	}
	if xff := header.Get("X-Forwarded-For"); xff != "" {
		return "addr:" + xff
	}
	return "addr:" + addr
}
