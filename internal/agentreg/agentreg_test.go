package agentreg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterMintsAgentID(t *testing.T) {
	r := New(0)
	agent, err := r.Register(ClientInfo{Name: "test-client", Version: "1.0"}, "stdio")
	require.NoError(t, err)
	assert.Contains(t, agent.ID, "agent-")
	assert.Len(t, agent.ID, len("agent-")+8)
}

func TestGetReturnsRegisteredAgent(t *testing.T) {
	r := New(0)
	agent, err := r.Register(ClientInfo{Name: "test-client"}, "websocket")
	require.NoError(t, err)

	got, ok := r.Get(agent.ID)
	require.True(t, ok)
	assert.Equal(t, agent.ID, got.ID)
	assert.Equal(t, "websocket", got.Transport)
}

func TestTouchUpdatesLastActive(t *testing.T) {
	r := New(0)
	agent, err := r.Register(ClientInfo{Name: "test-client"}, "stdio")
	require.NoError(t, err)

	before := agent.LastActive()
	time.Sleep(2 * time.Millisecond)
	r.Touch(agent.ID)
	assert.True(t, agent.LastActive().After(before))
}

func TestTouchUnknownAgentIsANoOp(t *testing.T) {
	r := New(0)
	assert.NotPanics(t, func() {
		r.Touch("agent-ghost")
	})
}

func TestRemoveForgetsAgent(t *testing.T) {
	r := New(0)
	agent, err := r.Register(ClientInfo{Name: "test-client"}, "stdio")
	require.NoError(t, err)

	r.Remove(agent.ID)
	_, ok := r.Get(agent.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestCountReflectsRegistrations(t *testing.T) {
	r := New(0)
	_, err := r.Register(ClientInfo{Name: "a"}, "stdio")
	require.NoError(t, err)
	_, err = r.Register(ClientInfo{Name: "b"}, "stdio")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Count())
}

func TestSweepEvictsIdleAgentsAndInvokesOnExpire(t *testing.T) {
	r := New(0)
	agent, err := r.Register(ClientInfo{Name: "test-client"}, "stdio")
	require.NoError(t, err)

	var expired []string
	r.OnExpire = func(agentID string) {
		expired = append(expired, agentID)
	}

	time.Sleep(5 * time.Millisecond)
	r.Sweep(2 * time.Millisecond)

	assert.Equal(t, []string{agent.ID}, expired)
	_, ok := r.Get(agent.ID)
	assert.False(t, ok)
}

func TestSweepLeavesActiveAgentsAlone(t *testing.T) {
	r := New(0)
	agent, err := r.Register(ClientInfo{Name: "test-client"}, "stdio")
	require.NoError(t, err)

	r.Sweep(time.Hour)
	_, ok := r.Get(agent.ID)
	assert.True(t, ok)
}

func TestRegisterRejectsPastMaxAgents(t *testing.T) {
	r := New(2)
	_, err := r.Register(ClientInfo{Name: "a"}, "stdio")
	require.NoError(t, err)
	_, err = r.Register(ClientInfo{Name: "b"}, "stdio")
	require.NoError(t, err)

	_, err = r.Register(ClientInfo{Name: "c"}, "stdio")
	assert.ErrorIs(t, err, ErrAgentLimit)
	assert.Equal(t, 2, r.Count())
}
