// Package scheduler runs the per-minute reminder tick and one-shot jobs such
// as snoozed reminders. Recurring jobs go through robfig/cron; one-shot jobs
// live in an in-memory queue ordered by due time and are lost on restart.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	// ErrAlreadyStarted is returned by Start on a running scheduler.
	ErrAlreadyStarted = errors.New("scheduler already started")
	// ErrNotStarted is returned by Stop on a scheduler that is not running.
	ErrNotStarted = errors.New("scheduler not started")
)

// EveryMinute is the cron spec of the reminder tick.
const EveryMinute = "* * * * *"

// Func is the body of a scheduled job.
type Func func(ctx context.Context)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used by the one-shot queue.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithPendingObserver is called with the queue length whenever it changes.
func WithPendingObserver(fn func(int)) Option {
	return func(s *Scheduler) { s.observe = fn }
}

// Scheduler owns the cron runner and the one-shot queue.
type Scheduler struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	now     func() time.Time
	observe func(int)

	mu      sync.Mutex
	queue   jobQueue
	seq     uint64
	byID    map[string]*oneShot
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wake    chan struct{}
	done    chan struct{}
}

// New builds a scheduler that evaluates cron specs in loc.
func New(loc *time.Location, logger zerolog.Logger, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.DelayIfStillRunning(cl)),
		),
		logger: logger,
		now:    time.Now,
		byID:   make(map[string]*oneShot),
		ctx:    context.Background(),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Every registers a recurring job. Runs of the same job never overlap.
func (s *Scheduler) Every(spec, name string, fn Func) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		fn(s.runContext())
		s.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("recurring job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// At queues fn to run once at the given time and returns the job id.
// Jobs due in the past run on the next queue check.
func (s *Scheduler) At(at time.Time, name string, fn Func) string {
	job := &oneShot{id: uuid.NewString(), name: name, at: at, fn: fn}

	s.mu.Lock()
	s.seq++
	job.seq = s.seq
	heap.Push(&s.queue, job)
	s.byID[job.id] = job
	n := len(s.queue)
	s.mu.Unlock()

	s.notify(n)
	s.poke()
	return job.id
}

// Cancel drops a queued one-shot job. It reports whether the job was pending.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	job, ok := s.byID[id]
	if ok {
		heap.Remove(&s.queue, job.index)
		delete(s.byID, id)
	}
	n := len(s.queue)
	s.mu.Unlock()

	if ok {
		s.notify(n)
	}
	return ok
}

// Pending returns the number of queued one-shot jobs.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// RunDue runs, in due order, every one-shot job due at or before now and
// returns how many ran. Jobs run on the calling goroutine.
func (s *Scheduler) RunDue(now time.Time) int {
	s.mu.Lock()
	var due []*oneShot
	for len(s.queue) > 0 && !s.queue[0].at.After(now) {
		job := heap.Pop(&s.queue).(*oneShot)
		delete(s.byID, job.id)
		due = append(due, job)
	}
	n := len(s.queue)
	s.mu.Unlock()

	if len(due) == 0 {
		return 0
	}
	s.notify(n)

	ctx := s.runContext()
	for _, job := range due {
		s.runOne(ctx, job)
	}
	return len(due)
}

func (s *Scheduler) runOne(ctx context.Context, job *oneShot) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job", job.name).Str("job_id", job.id).Interface("panic", r).Msg("one-shot job panicked")
		}
	}()
	job.fn(ctx)
}

// Start launches the cron runner and the one-shot loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.cron.Start()
	go s.loop()
	s.logger.Info().Int("recurring_jobs", len(s.cron.Entries())).Msg("scheduler started")
	return nil
}

// Stop halts both runners and waits for running jobs to return.
// Queued one-shot jobs are discarded.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	<-done

	s.mu.Lock()
	lost := len(s.queue)
	s.queue = nil
	s.byID = make(map[string]*oneShot)
	s.ctx = context.Background()
	s.mu.Unlock()

	if lost > 0 {
		s.notify(0)
		s.logger.Warn().Int("pending", lost).Msg("scheduler stopped with pending one-shot jobs; they are dropped")
	} else {
		s.logger.Info().Msg("scheduler stopped")
	}
	return nil
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ctx := s.runContext()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		timer.Reset(s.untilNext())
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer.C:
			s.RunDue(s.now())
		}
	}
}

// untilNext is the wait before the queue head is due, capped at a minute.
func (s *Scheduler) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return time.Minute
	}
	d := s.queue[0].at.Sub(s.now())
	switch {
	case d < 0:
		return 0
	case d > time.Minute:
		return time.Minute
	}
	return d
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) notify(n int) {
	if s.observe != nil {
		s.observe(n)
	}
}
