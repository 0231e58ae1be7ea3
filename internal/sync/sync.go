// Package sync periodically exports all issues as JSONL to backup
// destinations (an S3 bucket, a git repository).
package sync

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/tracker/internal/store"
)

// Export is one JSONL snapshot of the issue store.
type Export struct {
	Data []byte
	Manifest
}

// Destination receives issue exports.
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	Write(ctx context.Context, e Export) error
}

// Scheduler exports the store to its destinations on a fixed interval. A
// destination is only written when the export differs from the last one
// it accepted, so an idle tracker does not produce a stream of identical
// uploads and commits.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	// delivered holds the manifest last written to each destination.
	delivered map[string]Manifest

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from the store to the given
// destinations at the specified interval.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		delivered:    make(map[string]Manifest, len(destinations)),
	}
}

// Start runs an export immediately, then on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for a running export to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.exportOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.exportOnce(ctx)
		}
	}
}

// exportOnce builds one export and hands it to every destination that has
// not accepted an identical one. It returns the number of destinations
// written.
func (s *Scheduler) exportOnce(ctx context.Context) int {
	var buf bytes.Buffer
	m, err := ExportJSONL(ctx, s.store, &buf)
	if err != nil {
		s.logger.Error("issue export failed", "err", err)
		return 0
	}
	e := Export{Data: buf.Bytes(), Manifest: m}

	written := 0
	for _, dest := range s.destinations {
		name := dest.Name()
		if last, ok := s.delivered[name]; ok && last == m {
			continue
		}
		if err := dest.Write(ctx, e); err != nil {
			s.logger.Error("issue export write failed", "destination", name, "err", err)
			continue
		}
		s.delivered[name] = m
		written++
	}

	if written > 0 {
		s.logger.Info("issues exported",
			"destinations", written,
			"issues", m.Issues,
			"unresolved", m.Unresolved,
			"watermark", m.Watermark,
			"bytes", len(e.Data),
		)
	}
	return written
}
