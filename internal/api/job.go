package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxo-smsgw/smsgw/internal/model"
)

// JobStatus represents the status of a background maintenance job
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusFailed    JobStatus = "failed"
)

// Job is a maintenance run executing in the background
type Job struct {
	ID          string
	Kind        model.RunKind
	DryRun      bool
	Status      JobStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
	Run         *model.Run

	ctx        context.Context
	cancelFunc context.CancelFunc
	mu         sync.Mutex
}

// JobView is the JSON form of a Job.
type JobView struct {
	ID          string        `json:"id"`
	Kind        model.RunKind `json:"kind"`
	DryRun      bool          `json:"dry_run"`
	Status      JobStatus     `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Error       string        `json:"error,omitempty"`
	RunID       string        `json:"run_id,omitempty"`
	Counts      *model.Counts `json:"counts,omitempty"`
}

// Finish records the outcome of the run. A cancelled job keeps its status.
func (j *Job) Finish(run *model.Run, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.Run = run
	if j.cancelFunc != nil {
		j.cancelFunc()
	}
	if j.Status == JobStatusCancelled {
		return
	}
	j.CompletedAt = time.Now()
	if err != nil {
		j.Status = JobStatusFailed
		j.Error = err.Error()
		return
	}
	j.Status = JobStatusCompleted
}

// Cancel cancels the job
func (j *Job) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.Status == JobStatusRunning {
		j.Status = JobStatusCancelled
		j.CompletedAt = time.Now()
		if j.cancelFunc != nil {
			j.cancelFunc()
		}
	}
}

// Done reports whether the job has stopped running.
func (j *Job) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status != JobStatusRunning
}

// Context returns the job's context
func (j *Job) Context() context.Context {
	return j.ctx
}

// View returns a consistent snapshot for serialization.
func (j *Job) View() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()

	v := JobView{
		ID:        j.ID,
		Kind:      j.Kind,
		DryRun:    j.DryRun,
		Status:    j.Status,
		StartedAt: j.StartedAt,
		Error:     j.Error,
	}
	if !j.CompletedAt.IsZero() {
		at := j.CompletedAt
		v.CompletedAt = &at
	}
	if j.Run != nil {
		v.RunID = j.Run.ID
		counts := j.Run.Counts
		v.Counts = &counts
	}
	return v
}

// JobManager tracks background jobs. At most one runs at a time.
type JobManager struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*Job),
	}
}

// Create registers a new running job, or returns nil when one is already
// running.
func (jm *JobManager) Create(kind model.RunKind, dryRun bool) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	for _, job := range jm.jobs {
		if !job.Done() {
			return nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:         uuid.New().String(),
		Kind:       kind,
		DryRun:     dryRun,
		Status:     JobStatusRunning,
		StartedAt:  time.Now(),
		ctx:        ctx,
		cancelFunc: cancel,
	}
	jm.jobs[job.ID] = job
	return job
}

// Get returns a job by ID, or nil if not found
func (jm *JobManager) Get(id string) *Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	return jm.jobs[id]
}

// GetActive returns the currently running job, or nil if none
func (jm *JobManager) GetActive() *Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	for _, job := range jm.jobs {
		if !job.Done() {
			return job
		}
	}
	return nil
}

// Cleanup removes finished jobs older than maxAge
func (jm *JobManager) Cleanup(maxAge time.Duration) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range jm.jobs {
		job.mu.Lock()
		stale := job.Status != JobStatusRunning && job.CompletedAt.Before(cutoff)
		job.mu.Unlock()
		if stale {
			delete(jm.jobs, id)
		}
	}
}
