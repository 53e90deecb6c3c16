package optd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/improvement"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
)

func newRecord(id string) *JobRecord {
	return &JobRecord{job: models.Job{ID: id}, progress: newBroker()}
}

func TestJobStoreCreateAndGet(t *testing.T) {
	store := NewJobStore()
	if err := store.Create(newRecord("job-1")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	job, ok := store.Get("job-1")
	if !ok {
		t.Fatalf("expected job to exist")
	}
	if job.Status != models.JobStatusPending {
		t.Fatalf("expected status pending, got %s", job.Status)
	}
	if job.CreatedAtUnixMs == 0 {
		t.Fatalf("expected created_at_unix_ms to be set")
	}
	if _, ok := store.Get("missing"); ok {
		t.Fatalf("expected missing job to be absent")
	}
}

func TestJobStoreCreateRejectsDuplicatesAndEmptyIDs(t *testing.T) {
	store := NewJobStore()
	if err := store.Create(newRecord("job-1")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := store.Create(newRecord("job-1")); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := store.Create(newRecord("")); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob for an empty id, got %v", err)
	}
}

func TestJobStoreTransitionSetsTimestamps(t *testing.T) {
	store := NewJobStore()
	if err := store.Create(newRecord("job-1")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	job, err := store.Transition("job-1", models.JobStatusRunning, "", "")
	if err != nil {
		t.Fatalf("Transition running error: %v", err)
	}
	if job.StartedAtUnixMs == 0 || job.EndedAtUnixMs != 0 {
		t.Fatalf("unexpected timestamps for running job: %+v", job)
	}

	job, err = store.Transition("job-1", models.JobStatusFailed, models.ReasonSurrogateUnavailable, "down")
	if err != nil {
		t.Fatalf("Transition failed error: %v", err)
	}
	if job.EndedAtUnixMs == 0 {
		t.Fatalf("expected ended_at_unix_ms set")
	}
	if job.Reason != models.ReasonSurrogateUnavailable || job.Error != "down" {
		t.Fatalf("unexpected reason or error: %+v", job)
	}
}

func TestJobStoreTransitionStateMachine(t *testing.T) {
	tests := []struct {
		name string
		path []models.JobStatus
		ok   bool
	}{
		{"pending to running", []models.JobStatus{models.JobStatusRunning}, true},
		{"pending to cancelled", []models.JobStatus{models.JobStatusCancelled}, true},
		{"pending to completed", []models.JobStatus{models.JobStatusCompleted}, false},
		{"running to completed", []models.JobStatus{models.JobStatusRunning, models.JobStatusCompleted}, true},
		{"completed is terminal", []models.JobStatus{models.JobStatusRunning, models.JobStatusCompleted, models.JobStatusCancelled}, false},
		{"cancelled is terminal", []models.JobStatus{models.JobStatusCancelled, models.JobStatusRunning}, false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewJobStore()
			id := fmt.Sprintf("job-%d", i)
			if err := store.Create(newRecord(id)); err != nil {
				t.Fatalf("Create error: %v", err)
			}
			var err error
			for _, st := range tt.path {
				if _, err = store.Transition(id, st, "", ""); err != nil {
					break
				}
			}
			if tt.ok && err != nil {
				t.Fatalf("expected path to be allowed, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestJobStoreTransitionFrom(t *testing.T) {
	store := NewJobStore()
	if err := store.Create(newRecord("job-1")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := store.Transition("job-1", models.JobStatusRunning, "", ""); err != nil {
		t.Fatalf("Transition error: %v", err)
	}

	// running -> cancelled is a valid edge, but not from pending
	job, err := store.TransitionFrom("job-1", models.JobStatusPending, models.JobStatusCancelled, models.ReasonUserCancelled, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Status != models.JobStatusRunning {
		t.Fatalf("expected current state running, got %s", job.Status)
	}

	if _, err := store.TransitionFrom("missing", models.JobStatusPending, models.JobStatusRunning, "", ""); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobStoreProgressAndResults(t *testing.T) {
	store := NewJobStore()
	if err := store.Create(newRecord("job-1")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	job, err := store.Progress("job-1", improvement.GenerationReport{Generation: 3, Evaluations: 40, ParetoSize: 6})
	if err != nil {
		t.Fatalf("Progress error: %v", err)
	}
	if job.CurrentGeneration != 3 || job.Evaluations != 40 || job.ParetoSize != 6 {
		t.Fatalf("unexpected progress: %+v", job)
	}

	store.SetFailedAt("job-1", 4)
	if job, _ := store.Get("job-1"); job.FailedAtGeneration != 4 {
		t.Fatalf("expected failed_at_generation 4, got %d", job.FailedAtGeneration)
	}

	if _, res, _ := store.Results("job-1"); res != nil {
		t.Fatalf("expected no results yet")
	}
	if err := store.SetResults("job-1", &models.JobResults{JobID: "job-1"}); err != nil {
		t.Fatalf("SetResults error: %v", err)
	}
	if _, res, ok := store.Results("job-1"); !ok || res == nil || res.JobID != "job-1" {
		t.Fatalf("expected stored results")
	}
	if err := store.SetResults("missing", &models.JobResults{}); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobStoreListNewestFirst(t *testing.T) {
	store := NewJobStore()
	for i := 0; i < 5; i++ {
		if err := store.Create(newRecord(fmt.Sprintf("job-%d", i))); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}
	if _, err := store.Transition("job-1", models.JobStatusCancelled, models.ReasonUserCancelled, ""); err != nil {
		t.Fatalf("Transition error: %v", err)
	}

	jobs, total := store.List(ListFilter{Limit: 2})
	if total != 5 || len(jobs) != 2 {
		t.Fatalf("expected 2 of 5 jobs, got %d of %d", len(jobs), total)
	}
	if jobs[0].ID != "job-4" || jobs[1].ID != "job-3" {
		t.Fatalf("expected newest first, got %s, %s", jobs[0].ID, jobs[1].ID)
	}

	jobs, total = store.List(ListFilter{Limit: 2, Offset: 4})
	if total != 5 || len(jobs) != 1 || jobs[0].ID != "job-0" {
		t.Fatalf("unexpected last page: %d jobs of %d", len(jobs), total)
	}
	jobs, _ = store.List(ListFilter{Offset: 10})
	if len(jobs) != 0 {
		t.Fatalf("expected empty page past the end")
	}

	jobs, total = store.List(ListFilter{Status: models.JobStatusCancelled})
	if total != 1 || jobs[0].ID != "job-1" {
		t.Fatalf("expected only the cancelled job, got %d", total)
	}

	counts := store.Counts()
	if counts[models.JobStatusPending] != 4 || counts[models.JobStatusCancelled] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
