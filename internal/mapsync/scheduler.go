package mapsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fabricmap/core-go/internal/config"
)

// LoadFunc returns the topology document for the next run. It is called once
// per run so edits to the document are picked up without a restart.
type LoadFunc func() (*config.Document, error)

type SchedulerOptions struct {
	// Interval between periodic runs. Zero disables periodic runs; only
	// triggered runs happen.
	Interval time.Duration
}

// Scheduler runs the Syncer periodically and on demand, one run at a time.
type Scheduler struct {
	log      zerolog.Logger
	syncer   *Syncer
	load     LoadFunc
	interval time.Duration
	trigger  chan struct{}

	mu   sync.RWMutex
	last *Result
}

func NewScheduler(log zerolog.Logger, syncer *Syncer, load LoadFunc, opts SchedulerOptions) *Scheduler {
	interval := opts.Interval
	if interval < 0 {
		interval = 0
	}
	return &Scheduler{
		log:      log,
		syncer:   syncer,
		load:     load,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger asks for a run as soon as possible. It returns false when a
// triggered run is already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Last returns the outcome of the most recent run, if any.
func (s *Scheduler) Last() (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

// Preview loads the current document and builds its payload.
func (s *Scheduler) Preview(ctx context.Context) (Result, error) {
	doc, err := s.load()
	if err != nil {
		return Result{}, err
	}
	return s.syncer.Preview(ctx, doc)
}

// Run blocks until ctx is done. The first run starts immediately when an
// interval is set; failing runs push the next periodic run further out.
func (s *Scheduler) Run(ctx context.Context) {
	if s == nil || s.syncer == nil || s.load == nil {
		return
	}

	timer := time.NewTimer(0)
	if s.interval == 0 {
		<-timer.C
	}
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if err := s.runOnce(ctx); err != nil {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}

		if s.interval > 0 {
			timer.Reset(backoffDuration(s.interval, consecutiveFailures))
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	doc, err := s.load()
	if err != nil {
		s.log.Error().Err(err).Msg("load topology document failed")
		return err
	}
	res, err := s.syncer.Run(ctx, doc)
	if errors.Is(err, ErrRunInProgress) {
		return nil
	}
	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
	return err
}

// backoffDuration is interval * 2^failures, capped at 8x the interval.
func backoffDuration(interval time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return interval
	}
	if failures > 3 {
		failures = 3
	}
	return interval * time.Duration(1<<failures)
}
