package tracing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/fitplan/internal/telemetry/tracing"
)

func TestEndSpanWithErrCheck(t *testing.T) {
	_, span := tracing.GlobalTracer.Start(context.Background(), "test.span")
	assert.NotPanics(t, func() {
		tracing.EndSpanWithErrCheck(span, errors.New("boom"))
	})

	_, span = tracing.GlobalTracer.Start(context.Background(), "test.span.ok")
	assert.NotPanics(t, func() {
		tracing.EndSpanWithErrCheck(span, nil)
	})
}

func TestHoneycombSetup_Disabled(t *testing.T) {
	shutdown, err := tracing.HoneycombSetup(false, "fitplan-test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NotPanics(t, shutdown)
}
