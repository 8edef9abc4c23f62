package cron

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// Scheduler runs named background jobs on cron schedules (with seconds).
// A job that is still running when its next tick fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger pipeline.Logger

	mu   sync.RWMutex
	jobs map[string]*job
}

type job struct {
	name     string
	schedule string
	entry    cron.EntryID
	fn       func() error

	mu      sync.Mutex
	running bool
	runs    int
	lastErr error
}

// JobStatus describes one scheduled job.
type JobStatus struct {
	Name     string
	Schedule string
	NextRun  time.Time
	Running  bool
	Runs     int
	LastErr  error
}

// NewScheduler creates and starts a scheduler.
func NewScheduler(logger pipeline.Logger) *Scheduler {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger.With(pipeline.String("component", "cron")),
		jobs:   make(map[string]*job),
	}
	s.cron.Start()
	return s
}

// AddJob schedules fn under name. Names are unique.
func (s *Scheduler) AddJob(name, schedule string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already scheduled", name)
	}

	j := &job{name: name, schedule: schedule, fn: fn}
	entryID, err := s.cron.AddFunc(schedule, func() { s.run(j) })
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	j.entry = entryID
	s.jobs[name] = j

	s.logger.Info("Scheduled job", pipeline.String("job", name), pipeline.String("schedule", schedule))
	return nil
}

// RunNow runs a job immediately in the caller's goroutine, honouring the
// overlap guard. It reports false if the job is unknown or already running.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return s.run(j)
}

// run performs the actual job
func (s *Scheduler) run(j *job) bool {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		s.logger.Debug("Job already in progress, skipping", pipeline.String("job", j.name))
		return false
	}
	j.running = true
	j.mu.Unlock()

	err := j.fn()

	j.mu.Lock()
	j.running = false
	j.runs++
	j.lastErr = err
	j.mu.Unlock()

	if err != nil {
		s.logger.Warn("Job failed", pipeline.String("job", j.name), pipeline.Error(err))
	}
	return true
}

// Jobs returns the status of every job sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		entry := s.cron.Entry(j.entry)
		j.mu.Lock()
		out = append(out, JobStatus{
			Name:     j.name,
			Schedule: j.schedule,
			NextRun:  entry.Next,
			Running:  j.running,
			Runs:     j.runs,
			LastErr:  j.lastErr,
		})
		j.mu.Unlock()
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}
