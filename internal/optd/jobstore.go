package optd

import (
	"fmt"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/improvement"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/metrics"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/reliability"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
)

// JobRecord is the controller's view of one job. Everything except job and
// results is fixed at submission. opt is only driven by the job's goroutine.
type JobRecord struct {
	spec     *config.JobSpec
	problem  improvement.Problem
	opt      *improvement.Optimizer
	budget   time.Duration
	analyzer *reliability.Analyzer
	series   *metrics.Collector
	progress *broker

	// guarded by JobStore.mu
	job     models.Job
	results *models.JobResults
}

// ListFilter selects a page of jobs, newest first
type ListFilter struct {
	Status models.JobStatus // empty matches every status
	Limit  int
	Offset int
}

// JobStore keeps job records in memory
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*JobRecord
	order []string
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*JobRecord),
	}
}

func nowUnixMs() int64 {
	return time.Now().UTC().UnixMilli()
}

// Create adds a pending record
func (s *JobStore) Create(rec *JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.job.ID
	if id == "" {
		return fmt.Errorf("%w: job id is required", ErrInvalidJob)
	}
	if _, exists := s.jobs[id]; exists {
		return fmt.Errorf("job already exists: %s", id)
	}
	rec.job.Status = models.JobStatusPending
	rec.job.CreatedAtUnixMs = nowUnixMs()
	s.jobs[id] = rec
	s.order = append(s.order, id)
	return nil
}

func (s *JobStore) record(id string) (*JobRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	return rec, ok
}

// Get returns a copy of the job state
func (s *JobStore) Get(id string) (models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return rec.job, true
}

// List returns a page of jobs newest first and the number of jobs matching the filter
func (s *JobStore) List(f ListFilter) ([]models.Job, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f.Limit <= 0 {
		f.Limit = 50
	}
	matched := make([]models.Job, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		job := s.jobs[s.order[i]].job
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		matched = append(matched, job)
	}
	total := len(matched)
	if f.Offset >= total {
		return []models.Job{}, total
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total
}

// allowedTransitions is the job state machine
var allowedTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusPending: {models.JobStatusRunning, models.JobStatusCancelled},
	models.JobStatusRunning: {models.JobStatusCompleted, models.JobStatusCancelled, models.JobStatusFailed},
}

// Transition moves a job to status, stamping start and end times
func (s *JobStore) Transition(id string, status models.JobStatus, reason models.ReasonCode, errMsg string) (models.Job, error) {
	return s.transition(id, "", status, reason, errMsg)
}

// TransitionFrom is Transition that only applies while the job is in from.
// Otherwise it returns the current state and ErrInvalidTransition.
func (s *JobStore) TransitionFrom(id string, from, status models.JobStatus, reason models.ReasonCode, errMsg string) (models.Job, error) {
	return s.transition(id, from, status, reason, errMsg)
}

func (s *JobStore) transition(id string, from, status models.JobStatus, reason models.ReasonCode, errMsg string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if (from != "" && rec.job.Status != from) || !transitionAllowed(rec.job.Status, status) {
		return rec.job, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.job.Status, status)
	}

	rec.job.Status = status
	rec.job.Reason = reason
	if errMsg != "" {
		rec.job.Error = errMsg
	}
	switch status {
	case models.JobStatusRunning:
		rec.job.StartedAtUnixMs = nowUnixMs()
	case models.JobStatusCompleted, models.JobStatusCancelled, models.JobStatusFailed:
		rec.job.EndedAtUnixMs = nowUnixMs()
	}
	return rec.job, nil
}

func transitionAllowed(from, to models.JobStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Progress records a finished generation
func (s *JobStore) Progress(id string, r improvement.GenerationReport) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	rec.job.CurrentGeneration = r.Generation
	rec.job.Evaluations = int64(r.Evaluations)
	rec.job.ParetoSize = r.ParetoSize
	return rec.job, nil
}

// SetFailedAt records the generation a failed job could not finish
func (s *JobStore) SetFailedAt(id string, generation int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[id]; ok {
		rec.job.FailedAtGeneration = generation
	}
}

// SetResults stores the final result set of a job
func (s *JobStore) SetResults(id string, res *models.JobResults) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	rec.results = res
	return nil
}

// Results returns the job state and its result set when one was stored
func (s *JobStore) Results(id string) (models.Job, *models.JobResults, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	if !ok {
		return models.Job{}, nil, false
	}
	return rec.job, rec.results, true
}

// Counts returns the number of jobs per status
func (s *JobStore) Counts() map[models.JobStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.JobStatus]int)
	for _, rec := range s.jobs {
		out[rec.job.Status]++
	}
	return out
}
