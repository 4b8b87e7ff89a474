package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"magiainterna/backend/internal/cache"
	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/receipts"
	"magiainterna/backend/internal/store"
	"magiainterna/backend/internal/xid"
)

var ErrForbidden = errors.New("admin role required")

type sessionContextKey struct{}

func WithSession(ctx context.Context, session domain.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(domain.Session)
	return session, ok
}

type Options struct {
	Cache             cache.AnalyticsCache
	CacheTTL          time.Duration
	Receipts          receipts.Storage
	Logger            *zap.Logger
	LowStockThreshold int
	Now               func() time.Time
}

type Service struct {
	repo              store.Repository
	cache             cache.AnalyticsCache
	cacheTTL          time.Duration
	receipts          receipts.Storage
	logger            *zap.Logger
	lowStockThreshold int
	now               func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopAnalyticsCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.Receipts == nil {
		opts.Receipts = receipts.Disabled{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.LowStockThreshold < 0 {
		opts.LowStockThreshold = domain.DefaultLowStockThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:              repo,
		cache:             opts.Cache,
		cacheTTL:          opts.CacheTTL,
		receipts:          opts.Receipts,
		logger:            opts.Logger,
		lowStockThreshold: opts.LowStockThreshold,
		now:               opts.Now,
	}
}

// Audit records an action performed outside the service, such as staff
// account management.
func (s *Service) Audit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	s.logAudit(ctx, action, entityType, entityID, detail)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	session, ok := SessionFromContext(ctx)
	if !ok {
		session = domain.Session{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: session.Username,
		ActorRole:     session.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger.Warn("write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err))
	}
}

func (s *Service) requireAdmin(ctx context.Context) error {
	session, ok := SessionFromContext(ctx)
	if !ok || session.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// invalidate drops cached reports after a write that changes their inputs.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate analytics cache", zap.Error(err))
	}
}

// cached serves key from the analytics cache or computes and stores it.
// Cache failures degrade to computing the value.
func cached[T any](ctx context.Context, s *Service, key string, compute func() (T, error)) (T, error) {
	var value T
	hit, err := s.cache.Get(ctx, key, &value)
	if err != nil {
		s.logger.Warn("read analytics cache", zap.String("key", key), zap.Error(err))
	}
	if hit && err == nil {
		return value, nil
	}

	value, err = compute()
	if err != nil {
		return value, err
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.logger.Warn("write analytics cache", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

func (s *Service) threshold(ctx context.Context) int {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		s.logger.Warn("read settings for low stock threshold", zap.Error(err))
		return s.lowStockThreshold
	}
	return settings.LowStockThreshold
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalid, fmt.Sprintf(format, args...))
}
