package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"maildigest/core/domain"
	"maildigest/core/service/pipeline"
	"maildigest/pkg/apperr"
	"maildigest/pkg/logger"
)

// maxConsecutiveErrors removes a trigger after this many failed runs in a
// row; a success resets the count.
const maxConsecutiveErrors = 5

// Runner executes one pipeline pass. Satisfied by *pipeline.Service.
type Runner interface {
	Run(ctx context.Context, userID int64, isManual bool) (*pipeline.Result, error)
}

// Scheduler keeps one trigger per user. Triggers coalesce: a fire that
// finds the user still running is skipped, never queued.
type Scheduler struct {
	gate       *Gate
	runner     Runner
	userConfig domain.UserConfigRepository
	defaults   domain.ConfigDefaults

	mu     sync.Mutex
	jobs   map[int64]*scheduledJob
	errors map[int64]int
	paused map[int64]struct{}

	wg   sync.WaitGroup
	done chan struct{}
	now  func() time.Time
	log  zerolog.Logger
}

type scheduledJob struct {
	userID int64
	spec   domain.ScheduleSpec
	cancel chan struct{}
}

func jobID(userID int64) string {
	return fmt.Sprintf("user_%d_email_processing", userID)
}

func NewScheduler(gate *Gate, runner Runner, userConfig domain.UserConfigRepository, defaults domain.ConfigDefaults) *Scheduler {
	return &Scheduler{
		gate:       gate,
		runner:     runner,
		userConfig: userConfig,
		defaults:   defaults,
		jobs:       make(map[int64]*scheduledJob),
		errors:     make(map[int64]int),
		paused:     make(map[int64]struct{}),
		done:       make(chan struct{}),
		now:        time.Now,
		log:        logger.Component("scheduler"),
	}
}

// Start registers a trigger for every scheduled user.
func (s *Scheduler) Start() error {
	users, err := s.userConfig.ListScheduledUsers()
	if err != nil {
		return err
	}
	for _, userID := range users {
		if err := s.Register(userID); err != nil {
			s.log.Error().Err(err).Int64("user_id", userID).Msg("trigger registration failed")
		}
	}
	s.log.Info().Int("users", len(users)).Msg("scheduler started")
	return nil
}

// Register installs (or replaces) the user's trigger from their stored
// schedule configuration.
func (s *Scheduler) Register(userID int64) error {
	raw, err := s.userConfig.GetAll(userID)
	if err != nil {
		return err
	}
	spec := domain.UserConfigFromMap(userID, raw, s.defaults).Schedule

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replace an existing trigger in place.
	if existing, ok := s.jobs[userID]; ok {
		close(existing.cancel)
	}

	job := &scheduledJob{userID: userID, spec: spec, cancel: make(chan struct{})}
	s.jobs[userID] = job
	s.errors[userID] = 0

	s.wg.Add(1)
	go s.loop(job)

	s.log.Info().
		Str("job_id", jobID(userID)).
		Str("schedule_type", spec.Type).
		Msg("trigger registered")
	return nil
}

// Remove uninstalls the user's trigger.
func (s *Scheduler) Remove(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[userID]; ok {
		close(job.cancel)
		delete(s.jobs, userID)
		delete(s.errors, userID)
		delete(s.paused, userID)
		s.log.Info().Str("job_id", jobID(userID)).Msg("trigger removed")
	}
}

// Pause suspends the user's trigger; fires are skipped until Resume.
func (s *Scheduler) Pause(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[userID]; ok {
		s.paused[userID] = struct{}{}
		s.log.Info().Str("job_id", jobID(userID)).Msg("trigger paused")
	}
}

// Resume lifts a pause.
func (s *Scheduler) Resume(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paused[userID]; ok {
		delete(s.paused, userID)
		s.log.Info().Str("job_id", jobID(userID)).Msg("trigger resumed")
	}
}

// Shutdown stops every trigger and waits for in-flight runs up to the
// context deadline.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	close(s.done)

	s.mu.Lock()
	for _, job := range s.jobs {
		close(job.cancel)
	}
	s.jobs = make(map[int64]*scheduledJob)
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(job *scheduledJob) {
	defer s.wg.Done()

	// Interval triggers stagger their first fire per user.
	next := NextFire(job.spec, s.now())
	if job.spec.Type == domain.ScheduleInterval || job.spec.Type == "" {
		if offset := StartOffset(job.userID); offset > 0 {
			next = s.now().Add(offset)
		}
	}

	for {
		timer := time.NewTimer(time.Until(next))
		select {
		case <-job.cancel:
			timer.Stop()
			return
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		if !s.fire(job.userID) {
			return
		}
		next = NextFire(job.spec, s.now())
	}
}

// fire runs one admission-gated pass. It returns false when the trigger
// should be removed.
func (s *Scheduler) fire(userID int64) bool {
	s.mu.Lock()
	_, isPaused := s.paused[userID]
	s.mu.Unlock()
	if isPaused {
		s.log.Debug().Str("job_id", jobID(userID)).Msg("run skipped, trigger paused")
		return true
	}

	if err := s.gate.Acquire(userID); err != nil {
		s.log.Warn().Str("job_id", jobID(userID)).Msg("run skipped, gate busy")
		return true
	}
	defer s.gate.Release(userID)

	_, err := s.runner.Run(context.Background(), userID, false)
	if err != nil && apperr.CodeOf(err) != apperr.CodeNoActiveAccounts {
		s.mu.Lock()
		s.errors[userID]++
		count := s.errors[userID]
		s.mu.Unlock()

		s.log.Error().Err(err).Str("job_id", jobID(userID)).Int("consecutive_errors", count).Msg("scheduled run failed")

		if count >= maxConsecutiveErrors {
			s.log.Error().Str("job_id", jobID(userID)).Msg("too many consecutive failures, removing trigger")
			s.mu.Lock()
			delete(s.jobs, userID)
			delete(s.errors, userID)
			s.mu.Unlock()
			return false
		}
		return true
	}

	s.mu.Lock()
	s.errors[userID] = 0
	s.mu.Unlock()
	return true
}

// TriggerNow runs the user's pipeline immediately (manual fetch). The gate
// still applies.
func (s *Scheduler) TriggerNow(ctx context.Context, userID int64) (*pipeline.Result, error) {
	if err := s.gate.Acquire(userID); err != nil {
		return nil, err
	}
	defer s.gate.Release(userID)
	return s.runner.Run(ctx, userID, true)
}
