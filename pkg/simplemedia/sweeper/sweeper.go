// Package sweeper runs garbage collection for media profiles on a cron
// schedule.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a sweep every ten minutes
const DefaultSchedule = "@every 10m"

// Collector removes one batch of collectable assets for a profile
type Collector interface {
	GarbageCollect(ctx context.Context, typeKey string) (int, error)
}

// Sweeper calls Collector for each profile on every tick
type Sweeper struct {
	collector  Collector
	types      []string
	schedule   string
	maxBatches int
	logger     *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithSchedule sets a cron spec; seconds and descriptors are accepted
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithMaxBatches lets one tick drain up to n batches per profile
func WithMaxBatches(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.maxBatches = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// New creates a Sweeper over the given profile keys
func New(collector Collector, types []string, options ...Option) *Sweeper {
	s := &Sweeper{
		collector:  collector,
		types:      types,
		schedule:   DefaultSchedule,
		maxBatches: 1,
		logger:     slog.Default(),
	}
	for _, option := range options {
		option(s)
	}
	s.logger = s.logger.With("component", "sweeper")
	return s
}

// Start schedules sweeps. It fails on an invalid schedule or a second call.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	id, err := c.AddFunc(s.schedule, func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid gc schedule %q: %w", s.schedule, err)
	}

	s.cron, s.entryID = c, id
	c.Start()
	s.logger.Info("sweeper started", "schedule", s.schedule, "types", s.types)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to end
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.logger.Info("sweeper stopped")
}

// RunOnce sweeps every profile and returns the number of assets collected
// per profile. A failing profile is logged and does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) map[string]int {
	collected := make(map[string]int, len(s.types))
	for _, typeKey := range s.types {
		for batch := 0; batch < s.maxBatches; batch++ {
			if ctx.Err() != nil {
				return collected
			}
			n, err := s.collector.GarbageCollect(ctx, typeKey)
			if err != nil {
				s.logger.Error("sweep failed", "type", typeKey, "err", err)
				break
			}
			collected[typeKey] += n
			if n == 0 {
				break
			}
		}
	}
	return collected
}
