package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler replays the re-index queue periodically, picking up documents
// whose refresh failed after their change was committed.
type Scheduler struct {
	indexer  *Indexer
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that runs Recover at the given interval.
func NewScheduler(ix *Indexer, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		indexer:  ix,
		interval: interval,
		logger:   logger,
	}
}

// Start begins periodic recovery. It runs once immediately, then on each
// tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current run to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.recoverOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.recoverOnce(ctx)
		}
	}
}

func (s *Scheduler) recoverOnce(ctx context.Context) {
	n, err := s.indexer.Recover(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("index recovery failed", "indexed", n, "err", err)
		}
		return
	}
	if n > 0 {
		s.logger.Info("index recovery completed", "indexed", n)
	}
}
