package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitWithinLimit(t *testing.T) {
	l := New(map[Class]Rule{ClassBurst: {Window: 10 * time.Second, Limit: 3}})
	for i := 0; i < 3; i++ {
		d := l.Admit("agent-1", ClassBurst)
		assert.True(t, d.Allowed)
	}
}

func TestAdmitDeniesBeyondLimit(t *testing.T) {
	l := New(map[Class]Rule{ClassBurst: {Window: 10 * time.Second, Limit: 2}})
	require.True(t, l.Admit("agent-1", ClassBurst).Allowed)
	require.True(t, l.Admit("agent-1", ClassBurst).Allowed)
	d := l.Admit("agent-1", ClassBurst)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestElevenBurstRequestsInTenSecondsDenyAtLeastOne(t *testing.T) {
	l := New(DefaultRules())
	denied := 0
	for i := 0; i < 11; i++ {
		if !l.Admit("agent-burst", ClassBurst).Allowed {
			denied++
		}
	}
	assert.GreaterOrEqual(t, denied, 1)
}

func TestBucketsAreIndependentPerAgent(t *testing.T) {
	l := New(map[Class]Rule{ClassBurst: {Window: 10 * time.Second, Limit: 1}})
	require.True(t, l.Admit("agent-a", ClassBurst).Allowed)
	assert.True(t, l.Admit("agent-b", ClassBurst).Allowed)
	assert.False(t, l.Admit("agent-a", ClassBurst).Allowed)
}

func TestBucketsAreIndependentPerClass(t *testing.T) {
	l := New(map[Class]Rule{
		ClassBurst: {Window: 10 * time.Second, Limit: 1},
		ClassMoves: {Window: 10 * time.Second, Limit: 1},
	})
	require.True(t, l.Admit("agent-1", ClassBurst).Allowed)
	assert.True(t, l.Admit("agent-1", ClassMoves).Allowed)
}

func TestSlidingWindowReadmitsAfterExpiry(t *testing.T) {
	l := New(map[Class]Rule{ClassBurst: {Window: 20 * time.Millisecond, Limit: 1}})
	require.True(t, l.Admit("agent-1", ClassBurst).Allowed)
	require.False(t, l.Admit("agent-1", ClassBurst).Allowed)
	time.Sleep(30 * time.Millisecond)
	assert.True(t, l.Admit("agent-1", ClassBurst).Allowed)
}

func TestResetClearsAgentBuckets(t *testing.T) {
	l := New(map[Class]Rule{ClassBurst: {Window: 10 * time.Second, Limit: 1}})
	require.True(t, l.Admit("agent-1", ClassBurst).Allowed)
	require.False(t, l.Admit("agent-1", ClassBurst).Allowed)
	l.Reset("agent-1")
	assert.True(t, l.Admit("agent-1", ClassBurst).Allowed)
}

func TestUnknownClassAlwaysAllowed(t *testing.T) {
	l := New(map[Class]Rule{})
	for i := 0; i < 5; i++ {
		assert.True(t, l.Admit("agent-1", ClassGeneral).Allowed)
	}
}

func TestAdmitChecksEveryClassBeforeRecordingAny(t *testing.T) {
	l := New(map[Class]Rule{
		ClassBurst:   {Window: 10 * time.Second, Limit: 100},
		ClassGeneral: {Window: 10 * time.Second, Limit: 1},
	})
	require.True(t, l.Admit("agent-1", ClassBurst, ClassGeneral).Allowed)

	d := l.Admit("agent-1", ClassBurst, ClassGeneral)
	assert.False(t, d.Allowed)
	assert.Equal(t, ClassGeneral, d.Class)

	// ClassBurst never got charged by the denied call since ClassGeneral
	// denied first; its own limit of 100 still has plenty of room.
	for i := 0; i < 90; i++ {
		assert.True(t, l.Admit("agent-1", ClassBurst).Allowed)
	}
}

func TestAdmitDeniesWhenBurstExhaustedEvenWithGeneralRoomToSpare(t *testing.T) {
	l := New(map[Class]Rule{
		ClassBurst:   {Window: 10 * time.Second, Limit: 1},
		ClassGeneral: {Window: 10 * time.Second, Limit: 100},
	})
	require.True(t, l.Admit("agent-1", ClassBurst, ClassGeneral).Allowed)

	d := l.Admit("agent-1", ClassBurst, ClassGeneral)
	assert.False(t, d.Allowed)
	assert.Equal(t, ClassBurst, d.Class)
}
