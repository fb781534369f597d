package plans

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type failure struct {
	after int
	err   error
}

// MemStore keeps plans in memory with the same visibility rules as the
// postgres store: writes are staged per transaction and applied on commit.
type MemStore struct {
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
	plans     map[uuid.UUID]Plan
	weeks     map[uuid.UUID][]Week
	days      map[uuid.UUID][]Day
	exercises map[uuid.UUID][]ExerciseInstance

	calls    map[string]int
	failures map[string]failure
}

func NewMemStore() *MemStore {
	return &MemStore{
		userLocks: map[string]*sync.Mutex{},
		plans:     map[uuid.UUID]Plan{},
		weeks:     map[uuid.UUID][]Week{},
		days:      map[uuid.UUID][]Day{},
		exercises: map[uuid.UUID][]ExerciseInstance{},
		calls:     map[string]int{},
		failures:  map[string]failure{},
	}
}

// FailAfter makes the op fail with err once it has succeeded `after` times.
func (s *MemStore) FailAfter(op string, after int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op] = 0
	s.failures[op] = failure{after: after, err: err}
}

func (s *MemStore) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = map[string]failure{}
}

// Calls reports how many times op was attempted.
func (s *MemStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *MemStore) hit(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if f, ok := s.failures[op]; ok && s.calls[op] > f.after {
		return f.err
	}
	return nil
}

func (s *MemStore) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

func (s *MemStore) Begin(_ context.Context) (Tx, error) {
	if err := s.hit(OpBegin); err != nil {
		return nil, err
	}
	return &memTx{store: s}, nil
}

func (s *MemStore) ActivePlan(_ context.Context, userID string) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.plans {
		if p.UserID == userID && p.IsActive {
			return s.assemble(id), nil
		}
	}
	return nil, ErrPlanNotFound
}

func (s *MemStore) ListPlans(_ context.Context, userID string) ([]Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Plan
	for _, p := range s.plans {
		if p.UserID == userID {
			p.Weeks = nil
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemStore) GetPlan(_ context.Context, planID uuid.UUID) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[planID]; !ok {
		return nil, ErrPlanNotFound
	}
	return s.assemble(planID), nil
}

// assemble builds a detached copy of the graph. Caller holds mu.
func (s *MemStore) assemble(planID uuid.UUID) *Plan {
	p := s.plans[planID]
	p.Metadata.Warnings = slices.Clone(p.Metadata.Warnings)
	p.Weeks = nil
	for _, w := range s.weeks[planID] {
		w.Days = nil
		for _, d := range s.days[w.ID] {
			d.Conditioning = d.Conditioning.Clone()
			d.Exercises = nil
			for _, e := range s.exercises[d.ID] {
				e.Equipment = slices.Clone(e.Equipment)
				e.Muscles = slices.Clone(e.Muscles)
				d.Exercises = append(d.Exercises, e)
			}
			w.Days = append(w.Days, d)
		}
		p.Weeks = append(p.Weeks, w)
	}
	return &p
}

type memTx struct {
	store *MemStore
	done  bool

	lockedUser string
	lock       *sync.Mutex

	deactivate []string
	plans      []Plan
	weeks      []Week
	days       []Day
	exercises  []ExerciseInstance
}

func (tx *memTx) LockUser(_ context.Context, userID string) error {
	if tx.done {
		return ErrTxDone
	}
	if err := tx.store.hit(OpLockUser); err != nil {
		return err
	}
	if tx.lock != nil {
		if tx.lockedUser != userID {
			return fmt.Errorf("lock user [%s]: %w [%s]", userID, ErrOtherUserLocked, tx.lockedUser)
		}
		return nil
	}
	l := tx.store.userLock(userID)
	l.Lock()
	tx.lock = l
	tx.lockedUser = userID
	return nil
}

func (tx *memTx) DeactivateActive(_ context.Context, userID string) (int64, error) {
	if tx.done {
		return 0, ErrTxDone
	}
	if tx.lockedUser != userID {
		return 0, ErrUserLockNotHeld
	}
	if err := tx.store.hit(OpDeactivate); err != nil {
		return 0, err
	}
	tx.deactivate = append(tx.deactivate, userID)

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	var n int64
	for _, p := range tx.store.plans {
		if p.UserID == userID && p.IsActive {
			n++
		}
	}
	return n, nil
}

func (tx *memTx) InsertPlan(_ context.Context, plan *Plan) error {
	if tx.done {
		return ErrTxDone
	}
	if err := tx.store.hit(OpInsertPlan); err != nil {
		return err
	}
	p := *plan
	p.Weeks = nil
	p.Metadata.Warnings = slices.Clone(plan.Metadata.Warnings)
	tx.plans = append(tx.plans, p)
	return nil
}

func (tx *memTx) InsertWeek(_ context.Context, week *Week) error {
	if tx.done {
		return ErrTxDone
	}
	if err := tx.store.hit(OpInsertWeek); err != nil {
		return err
	}
	w := *week
	w.Days = nil
	tx.weeks = append(tx.weeks, w)
	return nil
}

func (tx *memTx) InsertDay(_ context.Context, day *Day) error {
	if tx.done {
		return ErrTxDone
	}
	if err := tx.store.hit(OpInsertDay); err != nil {
		return err
	}
	d := *day
	d.Exercises = nil
	d.Conditioning = day.Conditioning.Clone()
	tx.days = append(tx.days, d)
	return nil
}

func (tx *memTx) InsertExercise(_ context.Context, exercise *ExerciseInstance) error {
	if tx.done {
		return ErrTxDone
	}
	if err := tx.store.hit(OpInsertExercise); err != nil {
		return err
	}
	e := *exercise
	e.Equipment = slices.Clone(exercise.Equipment)
	e.Muscles = slices.Clone(exercise.Muscles)
	tx.exercises = append(tx.exercises, e)
	return nil
}

func (tx *memTx) Commit(_ context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	if err := tx.store.hit(OpCommit); err != nil {
		return err
	}

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	deactivated := map[string]struct{}{}
	for _, userID := range tx.deactivate {
		deactivated[userID] = struct{}{}
	}
	// the one-active-plan-per-user rule, checked before anything is applied
	for _, p := range tx.plans {
		if !p.IsActive {
			continue
		}
		if _, ok := deactivated[p.UserID]; ok {
			continue
		}
		for _, existing := range s.plans {
			if existing.UserID == p.UserID && existing.IsActive {
				return ErrActivePlanExists
			}
		}
	}

	for id, p := range s.plans {
		if _, ok := deactivated[p.UserID]; ok && p.IsActive {
			p.IsActive = false
			s.plans[id] = p
		}
	}
	for _, p := range tx.plans {
		s.plans[p.ID] = p
	}
	for _, w := range tx.weeks {
		s.weeks[w.PlanID] = append(s.weeks[w.PlanID], w)
	}
	for _, d := range tx.days {
		s.days[d.WeekID] = append(s.days[d.WeekID], d)
	}
	for _, e := range tx.exercises {
		s.exercises[e.DayID] = append(s.exercises[e.DayID], e)
	}

	tx.finish()
	return nil
}

func (tx *memTx) Rollback(_ context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.finish()
	return nil
}

func (tx *memTx) finish() {
	tx.done = true
	tx.deactivate, tx.plans, tx.weeks, tx.days, tx.exercises = nil, nil, nil, nil, nil
	if tx.lock != nil {
		tx.lock.Unlock()
		tx.lock = nil
	}
}
