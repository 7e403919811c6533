package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is the time between two price check cycles
const DefaultInterval = 4 * time.Hour

// Cycler runs one price check cycle
type Cycler interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

// Scheduler periodically runs price check cycles
type Scheduler struct {
	cycler   Cycler
	logger   *zerolog.Logger
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler. A non-positive interval uses
// DefaultInterval.
func NewScheduler(cycler Cycler, interval time.Duration, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Scheduler{
		cycler:   cycler,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start blocks, running a cycle on every tick until ctx is done or Stop is
// called
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Starting price check scheduler")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Price check scheduler stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Price check scheduler stopping (stop signal)")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.cycler.RunCycle(ctx)
	switch {
	case errors.Is(err, ErrCycleInProgress):
		s.logger.Warn().Msg("Previous price check cycle still running, skipping tick")
	case err != nil:
		s.logger.Error().Err(err).Msg("Price check cycle failed")
	}
}

// Stop signals the scheduler to stop. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}
