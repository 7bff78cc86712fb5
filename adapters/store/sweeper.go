package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweepable is implemented by stores that keep expired entries until swept
type Sweepable interface {
	Sweep(ctx context.Context) int
}

var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Sweeper periodically evicts expired entries of in-memory stores
type Sweeper struct {
	cron     *cron.Cron
	schedule string
	targets  map[string]Sweepable
	mu       sync.Mutex
	started  bool
}

// NewSweeper validates the schedule, "@every 1m" or a cron expression
func NewSweeper(schedule string, targets map[string]Sweepable) (*Sweeper, error) {
	if _, err := scheduleParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}
	return &Sweeper{
		cron:     cron.New(cron.WithParser(scheduleParser)),
		schedule: schedule,
		targets:  targets,
	}, nil
}

// Run sweeps every target once
func (s *Sweeper) Run(ctx context.Context) {
	for name, target := range s.targets {
		if removed := target.Sweep(ctx); removed > 0 {
			log.Debug().Str("store", name).Int("removed", removed).Msg("Swept expired entries")
		}
	}
}

// Start schedules the sweep until ctx is done or Stop is called
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("sweeper already started")
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Run(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.started = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running sweep
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	done := s.cron.Stop()
	s.started = false
	s.mu.Unlock()

	<-done.Done()
}
