package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Disabled(t *testing.T) {
	cleanup, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	assert.NoError(t, cleanup(context.Background()))

	_, span := Tracer().Start(context.Background(), "test")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}
