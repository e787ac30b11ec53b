package api

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haven/analytics-sync/internal/export"
)

// RunStatus is the lifecycle state of an export run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one background export.
type Run struct {
	ID         string           `json:"id"`
	Report     string           `json:"report"`
	Views      []string         `json:"views"`
	StartYear  int              `json:"start_year"`
	EndYear    int              `json:"end_year"`
	Status     RunStatus        `json:"status"`
	Written    []export.Written `json:"written,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// RunStore keeps runs in memory for the life of the process.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewRunStore creates an empty store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*Run)}
}

// Create registers a queued run and returns a copy.
func (s *RunStore) Create(report string, views []string, startYear, endYear int, now time.Time) Run {
	run := &Run{
		ID:        uuid.NewString(),
		Report:    report,
		Views:     views,
		StartYear: startYear,
		EndYear:   endYear,
		Status:    RunQueued,
		CreatedAt: now.UTC(),
	}
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()
	return *run
}

// Start marks a run as running.
func (s *RunStore) Start(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		t := now.UTC()
		run.Status = RunRunning
		run.StartedAt = &t
	}
}

// Finish records the outcome of a run.
func (s *RunStore) Finish(id string, written []export.Written, err error, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return
	}
	t := now.UTC()
	run.FinishedAt = &t
	run.Written = written
	run.Status = RunSucceeded
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
	}
}

// Get returns a copy of the run.
func (s *RunStore) Get(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// List returns copies of all runs, newest first.
func (s *RunStore) List() []Run {
	s.mu.RLock()
	out := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, *r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Active counts queued and running runs.
func (s *RunStore) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.runs {
		if r.Status == RunQueued || r.Status == RunRunning {
			n++
		}
	}
	return n
}
