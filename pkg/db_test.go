package pkg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolationError(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "ux_workout_plans_one_active"}

	assert.True(t, IsUniqueViolationError(unique))
	assert.True(t, IsUniqueViolationError(fmt.Errorf("insert plan: %w", unique)))
	assert.False(t, IsUniqueViolationError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolationError(errors.New("23505")))
	assert.False(t, IsUniqueViolationError(nil))

	assert.Equal(t, "ux_workout_plans_one_active", ConstraintName(fmt.Errorf("x: %w", unique)))
	assert.Empty(t, ConstraintName(errors.New("plain")))
}
