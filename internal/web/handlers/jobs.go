package handlers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-recognizer/internal/constants"
	"github.com/kozaktomas/face-recognizer/internal/recognizer"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// RebuildJob represents an async index rebuild.
type RebuildJob struct {
	EventBroadcaster

	ID          string                  `json:"id"`
	Status      JobStatus               `json:"status"`
	Processed   int                     `json:"processed"`
	Total       int                     `json:"total"`
	Error       string                  `json:"error,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Report      *recognizer.BuildReport `json:"report,omitempty"`

	cancelRequested bool
}

// GetStatus returns the current job status (implements SSEJob).
func (j *RebuildJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Snapshot returns a copy of the job fields safe to serialize.
func (j *RebuildJob) Snapshot() RebuildJobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return RebuildJobView{
		ID:          j.ID,
		Status:      j.Status,
		Processed:   j.Processed,
		Total:       j.Total,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Report:      j.Report,
	}
}

// RebuildJobView is the serialized form of a RebuildJob.
type RebuildJobView struct {
	ID          string                  `json:"id"`
	Status      JobStatus               `json:"status"`
	Processed   int                     `json:"processed"`
	Total       int                     `json:"total"`
	Error       string                  `json:"error,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Report      *recognizer.BuildReport `json:"report,omitempty"`
}

// Cancel asks the running build to stop. The job stays active until the build returns,
// so a new rebuild cannot start while the cancelled one still holds the index.
func (j *RebuildJob) Cancel() {
	j.mu.Lock()
	j.cancelRequested = true
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (j *RebuildJob) setRunning() {
	j.mu.Lock()
	j.Status = JobStatusRunning
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: "started", Message: "Index rebuild started"})
}

func (j *RebuildJob) setProgress(processed, total int, path string) {
	j.mu.Lock()
	j.Processed = processed
	j.Total = total
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: "progress", Data: map[string]any{
		"processed": processed,
		"total":     total,
		"path":      path,
	}})
}

func (j *RebuildJob) finish(report *recognizer.BuildReport, err error) {
	now := time.Now()
	j.mu.Lock()
	j.CompletedAt = &now
	switch {
	case err != nil && (j.cancelRequested || errors.Is(err, context.Canceled)):
		j.Status = JobStatusCancelled
	case err != nil:
		j.Status = JobStatusFailed
		j.Error = err.Error()
	default:
		j.Status = JobStatusCompleted
		j.Report = report
	}
	j.mu.Unlock()

	j.SendEvent(j.FinalEvent())
}

// FinalEvent describes the outcome of a finished job. Streams fall back to it when the
// terminal event did not reach their listener.
func (j *RebuildJob) FinalEvent() JobEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	switch j.Status {
	case JobStatusCompleted:
		return JobEvent{Type: "completed", Data: j.Report}
	case JobStatusFailed:
		return JobEvent{Type: "job_error", Message: j.Error}
	case JobStatusCancelled:
		return JobEvent{Type: "cancelled", Message: "Job cancelled by user"}
	}
	return JobEvent{Type: "status", Data: map[string]any{"status": j.Status}}
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners. Listeners with a full buffer miss the event.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
	FinalEvent() JobEvent
}

// JobManager manages async rebuild jobs. At most one job runs at a time.
type JobManager struct {
	jobs map[string]*RebuildJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*RebuildJob),
	}
}

// CreateJob registers a pending job unless another one is still active, in which
// case the active job is returned with false.
func (m *JobManager) CreateJob(id string, cancel context.CancelFunc) (*RebuildJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if !isJobTerminal(job.GetStatus()) {
			return job, false
		}
	}

	job := &RebuildJob{
		ID:        id,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
	}
	job.cancel = cancel
	m.jobs[id] = job
	m.pruneLocked()

	return job, true
}

// pruneLocked drops the oldest finished jobs beyond MaxFinishedJobs.
func (m *JobManager) pruneLocked() {
	var finished []*RebuildJob
	for _, job := range m.jobs {
		if isJobTerminal(job.GetStatus()) {
			finished = append(finished, job)
		}
	}
	if len(finished) <= constants.MaxFinishedJobs {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].StartedAt.Before(finished[j].StartedAt) })
	for _, job := range finished[:len(finished)-constants.MaxFinishedJobs] {
		delete(m.jobs, job.ID)
	}
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *RebuildJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs, newest first.
func (m *JobManager) ListJobs() []*RebuildJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*RebuildJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	return jobs
}
