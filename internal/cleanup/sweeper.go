package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redmonkez12/go-account-service/internal/logging"
	"github.com/redmonkez12/go-account-service/internal/metrics"
)

// Store deletes pending registrations that were never verified
type Store interface {
	DeleteUnverifiedCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls how often the sweeper runs and how old a pending
// registration must be before it is removed
type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

// DefaultConfig returns the default sweep configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  30 * time.Minute,
		Retention: 30 * time.Minute,
	}
}

// Sweeper periodically removes unverified accounts older than the retention
// window
type Sweeper struct {
	cfg     Config
	store   Store
	logger  *logging.Logger
	metrics *metrics.Metrics
	clock   func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Sweeper)

// WithClock overrides time.Now
func WithClock(clock func() time.Time) Option {
	return func(s *Sweeper) { s.clock = clock }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func NewSweeper(cfg Config, store Store, logger *logging.Logger, opts ...Option) *Sweeper {
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaults.Retention
	}

	s := &Sweeper{
		cfg:    cfg,
		store:  store,
		logger: logger,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce deletes every unverified account created before now minus the
// retention window and returns how many were removed
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.clock().Add(-s.cfg.Retention)

	deleted, err := s.store.DeleteUnverifiedCreatedBefore(ctx, cutoff)
	s.metrics.ObserveSweep(deleted, err)
	if err != nil {
		return 0, fmt.Errorf("sweep unverified accounts: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("removed unverified accounts", "count", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// Start runs a sweep immediately and then once per interval until ctx is
// canceled or Stop is called
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the sweeper and waits for an in-flight cycle to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Sweeper) cycle(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("sweep cycle failed", "error", err)
	}
}
