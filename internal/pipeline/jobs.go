package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/docdiff/internal/differ"
	"github.com/google/uuid"
)

// JobStatus represents the state of an asynchronous diff job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusFetching  JobStatus = "fetching"
	StatusComparing JobStatus = "comparing"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Done reports whether the job has reached a final state.
func (s JobStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks the state of a single queued comparison.
type Job struct {
	mu sync.Mutex

	ID     string    `json:"job_id"`
	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`
	Title  string    `json:"title"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	req        Request
	diff       *differ.Diff
	diffStatus differ.Status
	errors     []string
}

// NewJob creates a queued job for req.
func NewJob(req Request) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Phase:     "queued",
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
		req:       req,
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

// Len returns the number of stored jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes finished jobs that have not changed within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		stale := job.Status.Done() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if stale {
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
	j.UpdatedAt = time.Now()
}

// Complete stores the comparison outcome and moves the job to a final state.
func (j *Job) Complete(diff *differ.Diff, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.diffStatus = Outcome(err)
	if err != nil {
		j.errors = append(j.errors, err.Error())
		j.Status = StatusFailed
	} else {
		j.diff = diff
		j.Status = StatusCompleted
	}
	j.Phase = "done"
	j.UpdatedAt = time.Now()
}

// Request returns the comparison the job was created for.
func (j *Job) Request() Request {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.req
}

// releaseInput drops the document bytes once they are no longer needed.
func (j *Job) releaseInput() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.req.Previous = nil
	j.req.Current = nil
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID         string        `json:"job_id"`
	Status     JobStatus     `json:"status"`
	Phase      string        `json:"phase"`
	Title      string        `json:"title,omitempty"`
	DiffStatus differ.Status `json:"diff_status,omitempty"`
	Errors     []string      `json:"errors"`
	Diff       *differ.Diff  `json:"diff,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state. The diff is shared,
// not copied; it is never modified after Complete.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.errors))
	copy(errs, j.errors)
	return JobSnapshot{
		ID:         j.ID,
		Status:     j.Status,
		Phase:      j.Phase,
		Title:      j.Title,
		DiffStatus: j.diffStatus,
		Errors:     errs,
		Diff:       j.diff,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
}
