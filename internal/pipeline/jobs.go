package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"
)

// JobStatus represents the state of a run.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusPartial   JobStatus = "partial"
)

// Job tracks one submitted run of the pipeline.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	Stage Stage  `json:"stage"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	results []BatchResult
	errors  []string
}

// Progress tracks processing progress.
type Progress struct {
	StagesTotal int      `json:"stages_total"`
	StagesDone  int      `json:"stages_done"`
	Succeeded   int      `json:"succeeded"`
	Skipped     int      `json:"skipped"`
	Failed      int      `json:"failed"`
	Errors      []string `json:"errors"`
}

// NewJob returns a queued job for stage.
func NewJob(stage Stage) *Job {
	now := time.Now()
	total := 1
	if stage == StageAll {
		total = len(Stages)
	}
	return &Job{
		ID:        NewJobID(),
		Stage:     stage,
		Status:    StatusQueued,
		Phase:     "queued",
		Progress:  Progress{StagesTotal: total},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// List returns every job, newest first.
func (s *JobStore) List() []*Job {
	s.mu.Lock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	s.mu.Unlock()
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	return out
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// AddResult records a finished stage and folds its counts into the progress.
func (j *Job) AddResult(r BatchResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, r)
	j.Progress.StagesDone++
	j.Progress.Succeeded += r.Succeeded
	j.Progress.Skipped += r.Skipped
	j.Progress.Failed += r.Failed
	j.UpdatedAt = time.Now()
}

// Results returns a copy of the finished stage results.
func (j *Job) Results() []BatchResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]BatchResult(nil), j.results...)
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string        `json:"job_id"`
	Stage     Stage         `json:"stage"`
	Status    JobStatus     `json:"status"`
	Phase     string        `json:"phase"`
	Progress  Progress      `json:"progress"`
	Results   []BatchResult `json:"results"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	results := append([]BatchResult{}, j.results...)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:        j.ID,
		Stage:     j.Stage,
		Status:    j.Status,
		Phase:     j.Phase,
		Progress:  p,
		Results:   results,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
