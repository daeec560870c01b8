package server

import (
	"context"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/render-service/internal/core"
	"github.com/book-expert/render-service/internal/pipeline"
)

// JobStatus tracks a render job through its lifetime.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusComplete   JobStatus = "complete"
	StatusFailed     JobStatus = "failed"
)

const jobRetention = 30 * time.Minute

// Job is one asynchronous render request.
type Job struct {
	ID        string
	Status    JobStatus
	Payload   core.RenderPayload
	Result    *core.RenderResult
	Error     string
	CreatedAt time.Time
}

// JobManager tracks asynchronous render jobs in memory.
type JobManager struct {
	jobs     map[string]*Job
	mu       sync.RWMutex
	pipeline *pipeline.Pipeline
	log      *logger.Logger
}

// NewJobManager creates a job manager around the render pipeline.
func NewJobManager(renderPipeline *pipeline.Pipeline, log *logger.Logger) *JobManager {
	return &JobManager{
		jobs:     make(map[string]*Job),
		pipeline: renderPipeline,
		log:      log,
	}
}

// Create registers a pending job for the payload.
func (m *JobManager) Create(payload core.RenderPayload) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	m.jobs[job.ID] = job

	return job
}

// Get retrieves a point-in-time copy of a job, or nil when unknown or
// already expired. Process keeps mutating the live record under the mutex,
// so handlers must never see the shared pointer.
func (m *JobManager) Get(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil
	}

	snapshot := *job

	return &snapshot
}

// Process runs the job's render synchronously. Callers dispatch it on a
// goroutine; the job record carries the outcome either way.
func (m *JobManager) Process(ctx context.Context, job *Job) {
	defer func() {
		// Drop finished jobs after the retention window so the map
		// does not grow without bound.
		time.AfterFunc(jobRetention, func() {
			m.mu.Lock()
			delete(m.jobs, job.ID)
			m.mu.Unlock()
		})
	}()

	m.setStatus(job, StatusProcessing)

	result, runErr := m.pipeline.Run(ctx, job.Payload)
	if runErr != nil {
		m.log.Error("Render job %s failed: %v", job.ID, runErr)

		m.mu.Lock()
		job.Status = StatusFailed
		job.Error = runErr.Error()
		m.mu.Unlock()

		return
	}

	m.mu.Lock()
	job.Status = StatusComplete
	job.Result = result
	m.mu.Unlock()
}

func (m *JobManager) setStatus(job *Job, status JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
}
