package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"medslot/backend/internal/clock"
	"medslot/backend/internal/domain"
	"medslot/backend/internal/events"
	"medslot/backend/internal/store"
)

type Config struct {
	Policy domain.WindowPolicy
	// RequireAdvertisedSlot rejects bookings for units the provider is not offering.
	RequireAdvertisedSlot bool
	// SeedOnEmpty starts from the bundled providers when no snapshot exists.
	SeedOnEmpty bool
}

func DefaultConfig() Config {
	return Config{Policy: domain.DefaultWindowPolicy()}
}

type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

func WithIDGenerator(g *IDGenerator) Option {
	return func(s *Service) {
		if g != nil {
			s.ids = g
		}
	}
}

// Service owns the scheduling state. Every mutation runs on a copy that is persisted
// before it replaces the live state, under one lock shared by all providers.
type Service struct {
	mu    sync.RWMutex
	state domain.State

	store  store.SnapshotStore
	clock  clock.Clock
	ids    *IDGenerator
	events events.Publisher
	log    *slog.Logger
	cfg    Config
}

func NewService(st store.SnapshotStore, clk clock.Clock, cfg Config, opts ...Option) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	s := &Service{
		store:  st,
		clock:  clk,
		ids:    NewIDGenerator(clk.Now),
		events: events.NopPublisher{},
		log:    slog.Default(),
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "bookings"))
	return s
}

// Bootstrap loads the snapshot (or the seed when none exists), rolls the availability
// window forward and persists the result.
func (s *Service) Bootstrap(ctx context.Context) (domain.WindowReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := s.store.Load(ctx)
	switch {
	case err == nil:
		s.log.Info("snapshot loaded",
			slog.Int("providers", len(loaded.Providers)),
			slog.Int("patients", len(loaded.Patients)),
			slog.Int("bookings", len(loaded.Bookings)),
		)
	case errors.Is(err, store.ErrNotFound):
		if s.cfg.SeedOnEmpty {
			loaded = domain.SeedState(s.clock.Today())
			s.log.Info("no snapshot, starting from seed data")
		} else {
			loaded = domain.State{}
			s.log.Info("no snapshot, starting empty")
		}
	default:
		return domain.WindowReport{}, fmt.Errorf("load snapshot: %w", err)
	}

	if err := loaded.CheckPartition(); err != nil {
		s.log.Warn("snapshot violates booking partition", slog.Any("err", err))
	}

	next := loaded.Clone()
	report := domain.MaintainAvailability(&next, s.clock.Today(), s.cfg.Policy)
	if err := s.store.Save(ctx, next); err != nil {
		return domain.WindowReport{}, &PersistenceError{Err: err}
	}
	s.state = next

	s.logWindow(report)
	return report, nil
}

// RefreshAvailability re-runs the window maintenance against the live state.
func (s *Service) RefreshAvailability(ctx context.Context) (domain.WindowReport, error) {
	var report domain.WindowReport
	err := s.mutate(ctx, func(st *domain.State) error {
		report = domain.MaintainAvailability(st, s.clock.Today(), s.cfg.Policy)
		if !report.Changed() {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return report, nil
	}
	if err != nil {
		return domain.WindowReport{}, err
	}

	s.logWindow(report)
	s.publish(ctx, events.AvailabilityEvent(report, s.clock.Now()))
	return report, nil
}

var errUnchanged = errors.New("unchanged")

// mutate applies fn to a copy of the state, persists it and swaps it in. When fn or
// the save fails the live state is left as it was.
func (s *Service) mutate(ctx context.Context, fn func(st *domain.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.store.Save(ctx, next); err != nil {
		s.log.Error("snapshot save failed", slog.Any("err", err))
		return &PersistenceError{Err: err}
	}
	s.state = next
	return nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("event publish failed", slog.String("type", string(ev.Type)), slog.Any("err", err))
	}
}

func (s *Service) logWindow(report domain.WindowReport) {
	for _, c := range report.Changes {
		s.log.Info("availability window updated",
			slog.Int64("provider_id", c.ProviderID),
			slog.Int("days_dropped", c.DaysDropped),
			slog.Int("days_added", len(c.DaysAdded)),
			slog.String("today", report.Today.String()),
		)
	}
}
