package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantmesh/plantmesh/core"
)

func TestMockProcessor_CannedResponseAndCallRecording(t *testing.T) {
	m := NewMockProcessor()
	m.AddResponse("oee-agent", "OEE at 91%")

	resp, err := m.Process(context.Background(), core.AgentSpec{ID: "oee-agent"}, "report", false)
	require.NoError(t, err)
	assert.Equal(t, "OEE at 91%", resp)

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "oee-agent", calls[0].AgentID)
	assert.Equal(t, "report", calls[0].Message)
	assert.False(t, calls[0].AutoTriggered)
}

func TestMockProcessor_EchoDefaultAndFailure(t *testing.T) {
	m := NewMockProcessor()
	m.FailWith("quality-agent", errors.New("provider unavailable"))

	resp, err := m.Process(context.Background(), core.AgentSpec{ID: "unknown"}, "ping", true)
	require.NoError(t, err)
	assert.Equal(t, "[unknown] processed: ping", resp)

	_, err = m.Process(context.Background(), core.AgentSpec{ID: "quality-agent"}, "check", true)
	assert.ErrorContains(t, err, "provider unavailable")
}
