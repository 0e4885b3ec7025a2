package grpc

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"medslot/backend/internal/domain"
)

// DefaultRequestTimeoutInterceptor applies timeout to calls that arrive without a
// deadline.
func DefaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

// peerLimiters keeps one token bucket per client host.
type peerLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func (p *peerLimiters) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters[key] = l
	}
	return l
}

// RateLimitInterceptor rejects calls with ResourceExhausted once a client host
// exceeds perSecond requests (with burst). A non-positive perSecond disables it.
func RateLimitInterceptor(perSecond float64, burst int, log *slog.Logger) grpc.UnaryServerInterceptor {
	if perSecond <= 0 {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			return handler(ctx, req)
		}
	}
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = slog.Default()
	}
	limiters := &peerLimiters{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		host := peerHost(ctx)
		if !limiters.get(host).Allow() {
			log.Warn("rate limit exceeded", slog.String("peer", host), slog.String("method", info.FullMethod))
			return nil, status.Error(codes.ResourceExhausted, "Too many requests. Try again later.")
		}
		return handler(ctx, req)
	}
}

func peerHost(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

type userKey struct{}

// UserFromContext returns the caller identity attached by LoggingInterceptor.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey{}).(domain.User)
	return u, ok
}

// userFromMetadata reads the caller identity supplied by the session layer. It is
// informational; no call is refused because of it.
func userFromMetadata(ctx context.Context) (domain.User, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.User{}, false
	}
	ids := md.Get("x-user-id")
	if len(ids) == 0 {
		return domain.User{}, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(ids[0]), 10, 64)
	if err != nil || id <= 0 {
		return domain.User{}, false
	}
	u := domain.User{ID: id}
	if roles := md.Get("x-user-role"); len(roles) > 0 {
		u.Role = domain.Role(strings.ToLower(strings.TrimSpace(roles[0])))
	}
	return u, true
}

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-request-id"); len(v) > 0 && strings.TrimSpace(v[0]) != "" {
			return strings.TrimSpace(v[0])
		}
	}
	return uuid.NewString()
}

// LoggingInterceptor tags each call with a request id and the caller identity and
// logs its outcome.
func LoggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "grpc"))

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		attrs := []any{
			slog.String("method", info.FullMethod),
			slog.String("request_id", requestID(ctx)),
		}
		if u, ok := userFromMetadata(ctx); ok {
			ctx = context.WithValue(ctx, userKey{}, u)
			attrs = append(attrs, slog.Int64("user_id", u.ID), slog.String("user_role", string(u.Role)))
		}

		resp, err := handler(ctx, req)

		attrs = append(attrs,
			slog.String("code", status.Code(err).String()),
			slog.Duration("duration", time.Since(start)),
		)
		switch status.Code(err) {
		case codes.OK:
			log.Debug("rpc finished", attrs...)
		case codes.Internal, codes.Unavailable, codes.Unknown:
			log.Error("rpc finished", attrs...)
		default:
			log.Info("rpc finished", attrs...)
		}
		return resp, err
	}
}
