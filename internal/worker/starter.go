// Package worker runs background jobs against the service layer.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// DueStarter starts games whose scheduled time has passed.
type DueStarter interface {
	StartDueGames(ctx context.Context, now time.Time) ([]string, error)
}

// Starter periodically moves due PLANNED games to PROGRESS.
type Starter struct {
	sched   gocron.Scheduler
	games   DueStarter
	log     *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewStarter registers the auto-start job; call Start to begin running it.
func NewStarter(games DueStarter, interval time.Duration, log *zap.Logger) (*Starter, error) {
	if interval <= 0 {
		return nil, errors.New("start interval must be positive")
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}

	s := &Starter{
		sched:   sched,
		games:   games,
		log:     log.Named("starter"),
		now:     time.Now,
		timeout: interval,
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			s.tick(ctx)
		}),
		gocron.WithName("start-due-games"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("register start job: %w", err)
	}
	return s, nil
}

// Start begins ticking in the background. It does not block.
func (s *Starter) Start() {
	s.sched.Start()
	s.log.Info("auto-start worker running")
}

// Stop waits for a running tick to finish and stops the scheduler.
func (s *Starter) Stop() error {
	return s.sched.Shutdown()
}

func (s *Starter) tick(ctx context.Context) {
	ids, err := s.games.StartDueGames(ctx, s.now().UTC())
	if err != nil {
		s.log.Error("start due games", zap.Error(err))
		return
	}
	if len(ids) > 0 {
		s.log.Info("started due games", zap.Strings("game_ids", ids))
	}
}
