package plans

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrPersistence      = errors.New("plan persistence failed")
	ErrPlanNotFound     = errors.New("plan not found")
	ErrActivePlanExists = errors.New("user already has an active plan")
	ErrInvalidRequest   = errors.New("invalid materialization request")
	ErrTxDone           = errors.New("transaction already finished")
	ErrUserLockNotHeld  = errors.New("user lock not held by transaction")
	ErrOtherUserLocked  = errors.New("transaction already holds another user's lock")
)

// Operation names reported in PersistenceError.Op.
const (
	OpBegin          = "begin"
	OpLockUser       = "lock_user"
	OpDeactivate     = "deactivate"
	OpInsertPlan     = "insert_plan"
	OpInsertWeek     = "insert_week"
	OpInsertDay      = "insert_day"
	OpInsertExercise = "insert_exercise"
	OpCommit         = "commit"
)

// PersistenceError wraps the storage failure of one materialization run.
type PersistenceError struct {
	UserID     string
	TemplateID string
	Op         string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist plan for user [%s] from template [%s] [%s]: %s", e.UserID, e.TemplateID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// Store persists plan graphs. Writes only happen through a Tx.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	// ActivePlan returns ErrPlanNotFound when the user has no active plan.
	ActivePlan(ctx context.Context, userID string) (*Plan, error)
	// ListPlans returns plan headers (no weeks), newest first.
	ListPlans(ctx context.Context, userID string) ([]Plan, error)
	// GetPlan returns the full graph.
	GetPlan(ctx context.Context, planID uuid.UUID) (*Plan, error)
}

// Tx is one unit of work. Nothing written through it is visible to readers
// before Commit, and Rollback discards all of it.
type Tx interface {
	// LockUser serializes materializations of the same user until the tx ends.
	// A tx holds at most one user lock.
	LockUser(ctx context.Context, userID string) error
	DeactivateActive(ctx context.Context, userID string) (int64, error)
	InsertPlan(ctx context.Context, plan *Plan) error
	InsertWeek(ctx context.Context, week *Week) error
	// InsertDay stores the day header and its conditioning block.
	InsertDay(ctx context.Context, day *Day) error
	InsertExercise(ctx context.Context, exercise *ExerciseInstance) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
