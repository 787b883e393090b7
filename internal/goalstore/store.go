package goalstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"example.com/goaltracker/internal/domain"
	"example.com/goaltracker/internal/metrics"
	"example.com/goaltracker/internal/storage"
)

var logger = loggo.GetLogger("goaltracker.goalstore")

// GoalsKey holds the JSON-encoded goal list.
const GoalsKey = "goals"

// ErrGoalNotFound is returned for an unknown goal id.
const ErrGoalNotFound = errors.ConstError("goal not found")

// Store holds the goal list in memory and writes it through to the
// key-value store after every change. Writes are best-effort.
type Store struct {
	kv      storage.KV
	metrics *metrics.Metrics

	// writeMu orders persisted snapshots the same as the mutations.
	writeMu sync.Mutex
	mu      sync.RWMutex
	goals   []domain.Goal
}

func New(kv storage.KV, m *metrics.Metrics) *Store {
	return &Store{kv: kv, metrics: m}
}

// Load replaces the in-memory list with the persisted one. A missing key
// is an empty list; unreadable or corrupt data is logged and treated the same.
func (s *Store) Load(ctx context.Context) {
	goals := s.read(ctx)
	s.mu.Lock()
	s.goals = goals
	s.mu.Unlock()
	s.metrics.SetGoals(len(goals))
	logger.Infof("loaded %d goals", len(goals))
}

func (s *Store) read(ctx context.Context) []domain.Goal {
	raw, found, err := s.kv.Get(ctx, GoalsKey)
	if err != nil {
		logger.Warningf("load goals: %v", err)
		s.metrics.StorageError("get")
		return nil
	}
	if !found || raw == "" {
		return nil
	}
	var goals []domain.Goal
	if err := json.Unmarshal([]byte(raw), &goals); err != nil {
		logger.Warningf("decode goals: %v", err)
		return nil
	}
	return goals
}

// List returns a copy of all goals in insertion order.
func (s *Store) List() []domain.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Goal, len(s.goals))
	copy(out, s.goals)
	return out
}

func (s *Store) Get(id string) (domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(id); i >= 0 {
		return s.goals[i], nil
	}
	return domain.Goal{}, errors.Annotatef(ErrGoalNotFound, "id %q", id)
}

func (s *Store) Add(ctx context.Context, g domain.Goal) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.goals = append(s.goals, g)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.SetGoals(len(snapshot))
	s.persist(ctx, snapshot)
}

// AddContribution appends ct to the goal with the given id and returns the
// updated goal.
func (s *Store) AddContribution(ctx context.Context, goalID string, ct domain.Contribution) (domain.Goal, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	i := s.index(goalID)
	if i < 0 {
		s.mu.Unlock()
		return domain.Goal{}, errors.Annotatef(ErrGoalNotFound, "id %q", goalID)
	}
	s.goals[i] = s.goals[i].WithContribution(ct)
	updated := s.goals[i]
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.ContributionAdded()
	s.persist(ctx, snapshot)
	return updated, nil
}

func (s *Store) index(id string) int {
	for i := range s.goals {
		if s.goals[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []domain.Goal {
	out := make([]domain.Goal, len(s.goals))
	copy(out, s.goals)
	return out
}

func (s *Store) persist(ctx context.Context, goals []domain.Goal) {
	b, err := json.Marshal(goals)
	if err != nil {
		logger.Errorf("encode goals: %v", err)
		return
	}
	if err := s.kv.Set(ctx, GoalsKey, string(b)); err != nil {
		logger.Warningf("save goals: %v", err)
		s.metrics.StorageError("set")
	}
}
