package pipeline

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// JobStatus represents the state of a load job.
type JobStatus string

const (
	StatusQueued           JobStatus = "queued"
	StatusLoading          JobStatus = "loading"
	StatusCompleted        JobStatus = "completed"
	StatusFailed           JobStatus = "failed"
	StatusPasswordRequired JobStatus = "password_required"
)

// Terminal reports whether no worker will touch a job in this state again.
// A job waiting for a password can still be resubmitted.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks the loading of a single uploaded file.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Format   string    `json:"format,omitempty"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData  []byte
	password  string
	errorCode string
	errors    []string
}

// NewJob creates a queued job for an uploaded file. The document id is
// derived from the content so identical uploads share one cached document.
func NewJob(filename string, data []byte, password string) *Job {
	now := time.Now()
	hash := ContentHashHex(data)
	return &Job{
		ID:          NewJobID(),
		DocID:       hash[:16],
		Status:      StatusQueued,
		Phase:       "queued",
		Filename:    filename,
		ContentHash: hash,
		CreatedAt:   now,
		UpdatedAt:   now,
		fileData:    data,
		password:    password,
	}
}

// NewJobID returns a time-ordered UUIDv7 string.
func NewJobID() string {
	return uuid.Must(uuid.NewV7()).String()
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

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.updated()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

func (j *Job) updated() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.UpdatedAt
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// CurrentStatus returns the status under the job lock.
func (j *Job) CurrentStatus() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status
}

// SetFormat records the detected source format.
func (j *Job) SetFormat(format string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Format = format
}

// Fail records err under code and moves the job to status.
func (j *Job) Fail(status JobStatus, code string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.errorCode = code
	j.errors = append(j.errors, err.Error())
	j.UpdatedAt = time.Now()
}

// requeue moves a job waiting for a password back to queued. It reports
// false if the job was in any other state.
func (j *Job) requeue(password string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != StatusPasswordRequired {
		return false
	}
	j.password = password
	j.Status = StatusQueued
	j.Phase = "queued"
	j.UpdatedAt = time.Now()
	return true
}

func (j *Job) Password() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.password
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	DocID       string    `json:"doc_id"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Filename    string    `json:"filename"`
	Format      string    `json:"format,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	ErrorCode   string    `json:"error_code,omitempty"`
	Errors      []string  `json:"errors"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.errors))
	copy(errs, j.errors)
	return JobSnapshot{
		ID:          j.ID,
		DocID:       j.DocID,
		Status:      j.Status,
		Phase:       j.Phase,
		Filename:    j.Filename,
		Format:      j.Format,
		ContentHash: j.ContentHash,
		ErrorCode:   j.errorCode,
		Errors:      errs,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// ContentHashHex computes the BLAKE3-256 digest of content as hex.
func ContentHashHex(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
