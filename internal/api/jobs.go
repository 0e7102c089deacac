package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcpulse-project/mcpulse/internal/ping"
)

// JobStatus is the lifecycle state of an async query job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

const (
	defaultJobTTL             = 30 * time.Minute
	defaultJobCleanupInterval = 5 * time.Minute
)

// Job is one asynchronous batch query. Finished jobs are kept for the TTL
// so the caller can collect results, then dropped by the cleanup loop.
type Job struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Targets     []ping.Target  `json:"targets"`
	Outcomes    []ping.Outcome `json:"outcomes,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// jobManager tracks async query jobs and expires finished ones.
type jobManager struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	ttl    time.Duration
	stopCh chan struct{}
}

func newJobManager(ttl, cleanupInterval time.Duration) *jobManager {
	jm := &jobManager{
		jobs:   make(map[string]*Job),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
	go jm.cleanupLoop(cleanupInterval)
	return jm
}

// create registers a pending job and launches it on the given engine.
func (jm *jobManager) create(pinger Pinger, targets []ping.Target) *Job {
	job := &Job{
		ID:        uuid.New().String(),
		Status:    JobStatusPending,
		Targets:   targets,
		CreatedAt: time.Now(),
	}

	jm.mu.Lock()
	jm.jobs[job.ID] = job
	jm.mu.Unlock()

	go jm.run(pinger, job.ID)
	return job
}

// run executes one job. The batch uses a background context: a job must
// outlive the HTTP request that created it.
func (jm *jobManager) run(pinger Pinger, id string) {
	jm.mu.Lock()
	job, ok := jm.jobs[id]
	if !ok {
		jm.mu.Unlock()
		return
	}
	now := time.Now()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	targets := job.Targets
	jm.mu.Unlock()

	outcomes := pinger.PingMany(context.Background(), targets)

	jm.mu.Lock()
	defer jm.mu.Unlock()
	job, ok = jm.jobs[id]
	if !ok {
		// Deleted while running; discard the results.
		return
	}
	done := time.Now()
	job.Status = JobStatusCompleted
	job.Outcomes = outcomes
	job.CompletedAt = &done

	log.Debug().Str("job", id).Int("targets", len(targets)).Msg("query job completed")
}

func (jm *jobManager) get(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	job, ok := jm.jobs[id]
	if !ok {
		return nil, false
	}
	cp := *job
	return &cp, true
}

func (jm *jobManager) list() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		cp := *job
		jobs = append(jobs, &cp)
	}
	return jobs
}

func (jm *jobManager) delete(id string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if _, ok := jm.jobs[id]; !ok {
		return false
	}
	delete(jm.jobs, id)
	return true
}

// cleanupLoop drops finished jobs whose results have expired.
func (jm *jobManager) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-jm.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-jm.ttl)
			jm.mu.Lock()
			for id, job := range jm.jobs {
				if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
					delete(jm.jobs, id)
					log.Debug().Str("job", id).Msg("expired query job removed")
				}
			}
			jm.mu.Unlock()
		}
	}
}

func (jm *jobManager) stop() {
	close(jm.stopCh)
}
