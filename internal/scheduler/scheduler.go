// Package scheduler runs the periodic ingestion and cleanup tasks on a
// single robfig/cron instance.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"gophora/discovery-service/internal/observability"
)

// State is the scheduler lifecycle.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Task is one declaratively scheduled job. Exactly one of Interval or Spec
// must be set. InitialDelay shifts the first interval firing.
type Task struct {
	Name         string
	Interval     time.Duration
	InitialDelay time.Duration
	Spec         string
	// RunOnStart triggers one run when the scheduler starts. Start-up runs
	// happen in the background, one task after another in declaration order.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// TaskStatus is the observable state of one task.
type TaskStatus struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	LastOutcome string     `json:"lastOutcome,omitempty"`
}

// Status is returned by Scheduler.Status.
type Status struct {
	State State        `json:"state"`
	Tasks []TaskStatus `json:"tasks"`
}

type lastRun struct {
	at      time.Time
	outcome string
}

// Scheduler wraps robfig/cron. Every job is wrapped with panic recovery and
// skip-if-still-running, so a task never overlaps with itself and a failed
// or panicking firing does not affect the next one.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	chain   cron.Chain
	tasks   []Task
	jobs    map[string]cron.Job
	entries map[string]cron.EntryID
	last    map[string]lastRun
	state   State

	runCtx    context.Context
	cancelRun context.CancelFunc
	detached  sync.WaitGroup

	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used to anchor interval schedules.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New validates tasks and returns a stopped Scheduler.
func New(logger *zap.Logger, tasks []Task, opts ...Option) (*Scheduler, error) {
	logger = logger.Named("scheduler")
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if err := validateTask(t); err != nil {
			return nil, err
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("duplicate task name %q", t.Name)
		}
		seen[t.Name] = true
	}

	cl := observability.CronLogger{L: logger}
	s := &Scheduler{
		chain:  cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		tasks:  tasks,
		last:   make(map[string]lastRun),
		state:  StateStopped,
		now:    time.Now,
		logger: logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func validateTask(t Task) error {
	switch {
	case t.Name == "":
		return errors.New("task name is required")
	case t.Run == nil:
		return fmt.Errorf("task %q has no Run func", t.Name)
	case (t.Interval > 0) == (t.Spec != ""):
		return fmt.Errorf("task %q must set exactly one of Interval or Spec", t.Name)
	case t.InitialDelay < 0:
		return fmt.Errorf("task %q has a negative initial delay", t.Name)
	}
	if t.Spec != "" {
		if _, err := cron.ParseStandard(t.Spec); err != nil {
			return fmt.Errorf("task %q: invalid cron spec %q: %w", t.Name, t.Spec, err)
		}
	}
	return nil
}

// Start registers every task, starts the cron loop and runs the
// RunOnStart tasks immediately in the background, one after another. ctx is
// handed to every task run until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return errors.New("scheduler already running")
	}

	s.runCtx, s.cancelRun = context.WithCancel(ctx)
	s.cron = cron.New(cron.WithLogger(observability.CronLogger{L: s.logger}))
	s.jobs = make(map[string]cron.Job, len(s.tasks))
	s.entries = make(map[string]cron.EntryID, len(s.tasks))

	anchor := s.now()
	for _, t := range s.tasks {
		sched, err := scheduleFor(t, anchor)
		if err != nil {
			s.cancelRun()
			return err
		}
		job := s.chain.Then(s.wrap(t))
		s.jobs[t.Name] = job
		s.entries[t.Name] = s.cron.Schedule(sched, job)
	}

	s.cron.Start()
	s.state = StateRunning
	s.logger.Info("scheduler started", zap.Int("tasks", len(s.tasks)))

	var startup []cron.Job
	for _, t := range s.tasks {
		if t.RunOnStart {
			startup = append(startup, s.jobs[t.Name])
		}
	}
	if len(startup) > 0 {
		runCtx := s.runCtx
		s.detached.Add(1)
		go func() {
			defer s.detached.Done()
			for _, job := range startup {
				if runCtx.Err() != nil {
					return
				}
				job.Run()
			}
		}()
	}
	return nil
}

// Stop prevents future firings and waits for running tasks to finish. If
// ctx expires first, running tasks are cancelled and ctx.Err is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopped
	cronDone := s.cron.Stop()
	cancel := s.cancelRun
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.detached.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		s.logger.Warn("scheduler stopped after cancelling running tasks")
		return ctx.Err()
	}
}

// RunDetached runs fn in the background under the scheduler's lifetime, so
// Stop waits for it. It is used for manually triggered passes.
func (s *Scheduler) RunDetached(name string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return errors.New("scheduler is not running")
	}
	t := Task{Name: name, Run: fn}
	job := cron.NewChain(cron.Recover(observability.CronLogger{L: s.logger})).Then(s.wrap(t))
	s.detached.Add(1)
	go func() {
		defer s.detached.Done()
		job.Run()
	}()
	return nil
}

// Status reports the state and the next and last run of every task.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Status{State: s.state, Tasks: make([]TaskStatus, 0, len(s.tasks))}
	for _, t := range s.tasks {
		ts := TaskStatus{Name: t.Name, Schedule: describe(t)}
		if s.state == StateRunning {
			if e := s.cron.Entry(s.entries[t.Name]); e.Valid() && !e.Next.IsZero() {
				next := e.Next
				ts.NextRun = &next
			}
		}
		if lr, ok := s.last[t.Name]; ok {
			at := lr.at
			ts.LastRun = &at
			ts.LastOutcome = lr.outcome
		}
		out.Tasks = append(out.Tasks, ts)
	}
	sort.SliceStable(out.Tasks, func(i, j int) bool { return out.Tasks[i].Name < out.Tasks[j].Name })
	return out
}

func (s *Scheduler) wrap(t Task) cron.Job {
	return cron.FuncJob(func() {
		start := time.Now()
		outcome := "success"
		defer func() {
			if r := recover(); r != nil {
				s.record(t.Name, start, "panic")
				panic(r)
			}
			s.record(t.Name, start, outcome)
		}()

		s.logger.Info("task started", zap.String("task", t.Name))
		if err := t.Run(s.runCtx); err != nil {
			outcome = "error"
			s.logger.Error("task failed", zap.String("task", t.Name), zap.Error(err))
			return
		}
		s.logger.Info("task finished", zap.String("task", t.Name), zap.Duration("took", time.Since(start)))
	})
}

func (s *Scheduler) record(name string, start time.Time, outcome string) {
	observability.SchedulerTaskRunsTotal.WithLabelValues(name, outcome).Inc()
	s.mu.Lock()
	s.last[name] = lastRun{at: start.UTC(), outcome: outcome}
	s.mu.Unlock()
}

func scheduleFor(t Task, anchor time.Time) (cron.Schedule, error) {
	if t.Spec != "" {
		return cron.ParseStandard(t.Spec)
	}
	return newOffsetSchedule(anchor, t.InitialDelay, t.Interval), nil
}

func describe(t Task) string {
	if t.Spec != "" {
		return t.Spec
	}
	if t.InitialDelay > 0 {
		return fmt.Sprintf("@every %s (offset %s)", t.Interval, t.InitialDelay)
	}
	return fmt.Sprintf("@every %s", t.Interval)
}
