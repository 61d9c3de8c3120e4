/*
sweeper.go - Background demand expiry

PURPOSE:
  Member-facing reads already apply auto-expiry on view, but a demand
  belonging to a member who never looks would stay pending forever. The
  sweeper periodically runs the fleet-wide expiry pass so the admin list
  converges without anyone loading a statement.

DESIGN:
  - Background goroutine with a configurable check interval
  - Delegates the actual decision to demand.Service.ExpireAllStale,
    which is a no-op outside the expiry zone
  - Safe to run alongside view-triggered expiry: status updates are
    compare-and-set, so concurrent passes lose cleanly

USAGE:
  sweeper := NewExpirySweeper(demands, logger)
  sweeper.Start()
  // ... on shutdown
  sweeper.Stop()

SEE ALSO:
  - demand/demand.go: ExpireAllStale and the window rules
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/messbook/canteen-engine/demand"
)

// ExpirySweeper periodically cancels stale pending demands.
type ExpirySweeper struct {
	Demands       *demand.Service
	CheckInterval time.Duration
	Logger        zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpirySweeper creates a sweeper with a 15 minute check interval.
func NewExpirySweeper(demands *demand.Service, logger zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		Demands:       demands,
		CheckInterval: 15 * time.Minute,
		Logger:        logger,
		stop:          make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (s *ExpirySweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.Logger.Info().Dur("interval", s.CheckInterval).Msg("expiry sweeper started")
}

// Stop halts the sweeper and waits for an in-flight pass to finish.
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.Logger.Info().Msg("expiry sweeper stopped")
}

func (s *ExpirySweeper) run() {
	defer s.wg.Done()

	// One pass up front so a restart during the expiry zone converges
	// immediately.
	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *ExpirySweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	expired, err := s.Demands.ExpireAllStale(ctx)
	if err != nil {
		s.Logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	if expired > 0 {
		s.Logger.Info().Int("expired", expired).Msg("expiry sweep cancelled stale demands")
	}
}
