// Package completion runs the periodic sweep that completes appointments
// whose end time has passed.
package completion

import (
	"context"
	"time"

	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

type completer interface {
	CompleteDue(ctx context.Context) (int, error)
}

// Sweeper periodically completes past appointments.
type Sweeper struct {
	engine   completer
	logger   *logging.Logger
	interval time.Duration
}

func NewSweeper(engine completer, logger *logging.Logger) *Sweeper {
	if engine == nil {
		panic("completion: engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		engine:   engine,
		logger:   logger,
		interval: 5 * time.Minute,
	}
}

func (s *Sweeper) WithInterval(d time.Duration) *Sweeper {
	if d > 0 {
		s.interval = d
	}
	return s
}

// Run sweeps once immediately and then on every tick until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns how many appointments it completed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	n, err := s.engine.CompleteDue(ctx)
	if err != nil {
		s.logger.Error("completion sweep failed", "error", err, "completed", n)
	}
	return n
}
