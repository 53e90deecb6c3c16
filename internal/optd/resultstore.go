package optd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/logger"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
	"github.com/dgraph-io/badger/v4"
)

// StoredJob is what survives a daemon restart: the terminal job state, the
// spec it ran with, the constraints and parameters it resolved at submission,
// and its result set
type StoredJob struct {
	Job         models.Job              `json:"job"`
	Spec        *config.JobSpec         `json:"spec"`
	Constraints []config.ConstraintSpec `json:"constraints"`
	Parameters  map[string]float64      `json:"parameters"`
	Results     *models.JobResults      `json:"results,omitempty"`
}

// ResultStore persists finished jobs
type ResultStore interface {
	Save(ctx context.Context, job StoredJob) error
	// Load returns ErrJobNotFound when the job was never saved
	Load(ctx context.Context, id string) (StoredJob, error)
	List(ctx context.Context) ([]models.Job, error)
	Close() error
}

// MemoryResultStore keeps finished jobs for the life of the process
type MemoryResultStore struct {
	mu   sync.RWMutex
	jobs map[string][]byte
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{jobs: make(map[string][]byte)}
}

func (s *MemoryResultStore) Save(_ context.Context, job StoredJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.Job.ID, err)
	}
	s.mu.Lock()
	s.jobs[job.Job.ID] = b
	s.mu.Unlock()
	return nil
}

func (s *MemoryResultStore) Load(_ context.Context, id string) (StoredJob, error) {
	s.mu.RLock()
	b, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return StoredJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return decodeStoredJob(id, b)
}

func (s *MemoryResultStore) List(_ context.Context) ([]models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Job, 0, len(s.jobs))
	for id, b := range s.jobs {
		stored, err := decodeStoredJob(id, b)
		if err != nil {
			return nil, err
		}
		out = append(out, stored.Job)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryResultStore) Close() error { return nil }

const jobKeyPrefix = "job/"

// BadgerResultStore persists finished jobs in a badger database
type BadgerResultStore struct {
	db *badger.DB
}

// OpenBadgerResultStore opens or creates the database at path. An empty path
// opens an in-memory database.
func OpenBadgerResultStore(path string) (*BadgerResultStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, fmt.Errorf("create result store directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	return &BadgerResultStore{db: db}, nil
}

func (s *BadgerResultStore) Save(ctx context.Context, job StoredJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.Job.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(jobKeyPrefix+job.Job.ID), b)
	})
}

func (s *BadgerResultStore) Load(ctx context.Context, id string) (StoredJob, error) {
	if err := ctx.Err(); err != nil {
		return StoredJob{}, err
	}
	var b []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(jobKeyPrefix + id))
		if err != nil {
			return err
		}
		b, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return StoredJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return StoredJob{}, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return decodeStoredJob(id, b)
}

func (s *BadgerResultStore) List(ctx context.Context) ([]models.Job, error) {
	var out []models.Job
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(jobKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			b, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			stored, err := decodeStoredJob(string(item.Key()), b)
			if err != nil {
				logger.Warn("skipping unreadable stored job", "key", string(item.Key()), "error", err)
				continue
			}
			out = append(out, stored.Job)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list stored jobs: %w", err)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *BadgerResultStore) Close() error {
	return s.db.Close()
}

func decodeStoredJob(id string, b []byte) (StoredJob, error) {
	var job StoredJob
	if err := json.Unmarshal(b, &job); err != nil {
		return StoredJob{}, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return job, nil
}

// sortNewestFirst orders jobs by creation time; ties keep their order
func sortNewestFirst(jobs []models.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAtUnixMs > jobs[j].CreatedAtUnixMs
	})
}
