package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New()
	ch := bus.Subscribe("agent-1")

	bus.Publish("agent-1", MethodAIMove, map[string]string{"sessionId": "s1"})

	select {
	case n := <-ch:
		assert.Equal(t, MethodAIMove, n.Method)
	default:
		t.Fatal("expected a queued notification")
	}
}

func TestPublishToUnknownAgentIsANoOp(t *testing.T) {
	bus := New()
	assert.NotPanics(t, func() {
		bus.Publish("ghost", MethodGameState, nil)
	})
}

func TestUnsubscribeStopsFutureDelivery(t *testing.T) {
	bus := New()
	ch := bus.Subscribe("agent-1")
	bus.Unsubscribe("agent-1")
	bus.Publish("agent-1", MethodGameState, nil)
	assert.Len(t, ch, 0)
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	bus := New()
	ch := bus.Subscribe("agent-1")

	for i := 0; i < queueDepth+10; i++ {
		bus.Publish("agent-1", MethodAIMove, i)
	}

	count := 0
	first := -1
	for n := range ch {
		if count == 0 {
			first = n.Params.(int)
		}
		count++
		if len(ch) == 0 {
			break
		}
	}
	require.LessOrEqual(t, count, queueDepth)
	// The 10 oldest (0..9) were dropped to make room for the newest.
	assert.Equal(t, 10, first)
}

func TestEncodeProducesValidJSON(t *testing.T) {
	b, err := Encode(newNotification(MethodTournamentUpdate, map[string]string{"tournamentId": "t1"}))
	require.NoError(t, err)
	assert.Contains(t, string(b), "notifications/chess/tournament_update")
}
