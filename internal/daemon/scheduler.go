package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/user/honeypulse/internal/util"
)

// maxBackoffSteps caps how often a failing job's retry delay is halved.
const maxBackoffSteps = 4

// Job is a periodic task run by the Scheduler.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run; it defaults to Interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error

	mu        sync.Mutex
	lastRun   time.Time
	nextRun   time.Time
	lastError error
	failures  int // consecutive
	errors    int // total
	runs      int
	running   bool
}

// JobStatus is a snapshot of a job for status.json.
type JobStatus struct {
	Name       string        `json:"name"`
	Interval   time.Duration `json:"interval"`
	LastRun    time.Time     `json:"last_run"`
	NextRun    time.Time     `json:"next_run"`
	LastError  string        `json:"last_error,omitempty"`
	ErrorCount int           `json:"error_count"`
	RunCount   int           `json:"run_count"`
	Running    bool          `json:"running"`
}

// Scheduler runs jobs at their intervals until its context is cancelled.
// A failing job is retried sooner, halving the delay on each consecutive
// failure.
type Scheduler struct {
	ctx          context.Context
	tick         time.Duration
	initialDelay time.Duration
	trigger      chan *Job

	mu   sync.RWMutex
	jobs []*Job
	wg   sync.WaitGroup
}

// NewScheduler creates a scheduler bound to ctx.
func NewScheduler(ctx context.Context) *Scheduler {
	return &Scheduler{
		ctx:          ctx,
		tick:         time.Second,
		initialDelay: 5 * time.Second,
		trigger:      make(chan *Job, 8),
	}
}

// AddJob registers a job. Its first run happens after the initial delay.
func (s *Scheduler) AddJob(job *Job) {
	if job.Timeout <= 0 {
		job.Timeout = job.Interval
	}
	job.nextRun = time.Now().Add(s.initialDelay)

	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
}

// Run drives the jobs and returns once the context is cancelled and every
// running job has returned.
func (s *Scheduler) Run() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.mu.RLock()
	util.Info("Scheduler started with %d jobs", len(s.jobs))
	s.mu.RUnlock()

	for {
		select {
		case <-s.ctx.Done():
			util.Info("Scheduler stopping")
			s.wg.Wait()
			return
		case job := <-s.trigger:
			s.start(job)
		case now := <-ticker.C:
			s.mu.RLock()
			jobs := s.jobs
			s.mu.RUnlock()
			for _, job := range jobs {
				if job.due(now) {
					s.start(job)
				}
			}
		}
	}
}

func (j *Job) due(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.running && !now.Before(j.nextRun)
}

// start runs job in its own goroutine unless it is already running.
func (s *Scheduler) start(job *Job) {
	job.mu.Lock()
	if job.running {
		job.mu.Unlock()
		return
	}
	job.running = true
	job.lastRun = time.Now()
	job.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJob(job)
	}()
}

func (s *Scheduler) runJob(job *Job) {
	util.Debug("Running job: %s", job.Name)

	ctx, cancel := context.WithTimeout(s.ctx, job.Timeout)
	err := job.Run(ctx)
	cancel()

	job.mu.Lock()
	defer job.mu.Unlock()

	job.running = false
	job.runs++
	job.lastError = err
	if err == nil {
		job.failures = 0
		job.nextRun = time.Now().Add(job.Interval)
		util.Debug("Job %s completed", job.Name)
		return
	}

	job.errors++
	job.failures++
	job.nextRun = time.Now().Add(retryDelay(job.Interval, job.failures))
	util.Warn("Job %s failed (%d in a row): %v", job.Name, job.failures, err)
}

// retryDelay halves interval for each consecutive failure, up to
// maxBackoffSteps times.
func retryDelay(interval time.Duration, failures int) time.Duration {
	steps := failures
	if steps > maxBackoffSteps {
		steps = maxBackoffSteps
	}
	return interval >> steps
}

// GetJobStatuses returns a snapshot of every job in registration order.
func (s *Scheduler) GetJobStatuses() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		job.mu.Lock()
		st := JobStatus{
			Name:       job.Name,
			Interval:   job.Interval,
			LastRun:    job.lastRun,
			NextRun:    job.nextRun,
			ErrorCount: job.errors,
			RunCount:   job.runs,
			Running:    job.running,
		}
		if job.lastError != nil {
			st.LastError = job.lastError.Error()
		}
		job.mu.Unlock()
		statuses = append(statuses, st)
	}
	return statuses
}

// GetJob returns a job by name, or nil.
func (s *Scheduler) GetJob(name string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.Name == name {
			return job
		}
	}
	return nil
}

// TriggerJob asks the scheduler to run a job now. It reports false for an
// unknown job. A trigger that arrives while the queue is full still makes
// the job due on the next tick.
func (s *Scheduler) TriggerJob(name string) bool {
	job := s.GetJob(name)
	if job == nil {
		return false
	}

	job.mu.Lock()
	job.nextRun = time.Now()
	job.mu.Unlock()

	select {
	case s.trigger <- job:
	default:
	}
	return true
}
