package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Scheduler runs named periodic jobs as a lifecycle Service.
type Scheduler struct {
	logger *zap.Logger
	sched  gocron.Scheduler
	done   chan struct{}
	once   sync.Once
}

// NewScheduler creates a Scheduler with no jobs.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a Scheduler ready for Every, or an error if gocron
// cannot be initialised.
func NewScheduler(logger *zap.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	return &Scheduler{
		logger: logger,
		sched:  sched,
		done:   make(chan struct{}),
	}, nil
}

// Every registers fn to run once per interval. A run that overlaps the next
// tick is rescheduled instead of running concurrently.
//
// Precondition: name must be non-empty; interval must be positive; fn must be non-nil.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			start := time.Now()
			fn()
			s.logger.Debug("scheduled job ran",
				zap.String("job", name),
				zap.Duration("elapsed", time.Since(start)),
			)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", name, err)
	}
	return nil
}

// Start starts the scheduler and blocks until Stop is called.
func (s *Scheduler) Start() error {
	s.sched.Start()
	<-s.done
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	var err error
	s.once.Do(func() {
		err = s.sched.Shutdown()
		close(s.done)
	})
	return err
}
