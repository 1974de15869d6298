package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Backoff(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
	assert.Equal(t, 30*time.Second, p.Backoff(5), "Delay should cap at 30s")
	assert.Equal(t, 30*time.Second, p.Backoff(40))
}

// TestMachine_RetriesThenFallsBack walks the failure path: three retries, no fourth, then polling
func TestMachine_RetriesThenFallsBack(t *testing.T) {
	m := NewMachine(DefaultPolicy())

	m, effects := m.Transition(InputSetup)
	require.Equal(t, StateConnecting, m.State)
	require.Equal(t, []Effect{{Kind: EffectSubscribe}}, effects)

	wantDelays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, want := range wantDelays {
		m, effects = m.Transition(InputFailed)
		require.Equal(t, StateRetrying, m.State)
		assert.Equal(t, i+1, m.Attempt)
		require.Len(t, effects, 1)
		assert.Equal(t, EffectScheduleRetry, effects[0].Kind)
		assert.Equal(t, want, effects[0].Delay)

		m, effects = m.Transition(InputRetryTimer)
		require.Equal(t, StateConnecting, m.State)
		assert.Equal(t, []Effect{{Kind: EffectSubscribe}}, effects)
	}

	// ACT: fourth failure schedules the fallback window, not another retry
	m, effects = m.Transition(InputFailed)
	assert.Equal(t, StateDegrading, m.State)
	assert.Equal(t, []Effect{{Kind: EffectScheduleFallback, Delay: 5 * time.Second}}, effects)

	m, effects = m.Transition(InputFallbackTimer)
	assert.Equal(t, StateFallbackPolling, m.State)
	assert.Equal(t, []Effect{{Kind: EffectStartPolling}}, effects)

	// further failures do not restart retries
	m, effects = m.Transition(InputFailed)
	assert.Equal(t, StateFallbackPolling, m.State)
	assert.Empty(t, effects)
}

func TestMachine_SuccessResetsAttempts(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	m, _ = m.Transition(InputSetup)
	m, _ = m.Transition(InputFailed)
	m, _ = m.Transition(InputRetryTimer)
	require.Equal(t, 1, m.Attempt)

	m, effects := m.Transition(InputSubscribed)
	assert.Equal(t, StateSubscribed, m.State)
	assert.Equal(t, 0, m.Attempt)
	assert.Empty(t, effects)

	// a drop after success starts counting from one again
	m, effects = m.Transition(InputFailed)
	assert.Equal(t, StateRetrying, m.State)
	assert.Equal(t, 2*time.Second, effects[0].Delay)
}

func TestMachine_LateSuccessStopsPolling(t *testing.T) {
	m := Machine{Policy: DefaultPolicy(), State: StateFallbackPolling, Attempt: 3}

	m, effects := m.Transition(InputSubscribed)

	assert.Equal(t, StateSubscribed, m.State)
	assert.Equal(t, 0, m.Attempt)
	assert.Equal(t, []Effect{{Kind: EffectStopPolling}}, effects)
}

func TestMachine_Teardown(t *testing.T) {
	m := Machine{Policy: DefaultPolicy(), State: StateRetrying, Attempt: 2}

	m, effects := m.Transition(InputTeardown)
	assert.Equal(t, StateClosed, m.State)
	assert.Len(t, effects, 3)

	// closed ignores everything
	m, effects = m.Transition(InputRetryTimer)
	assert.Equal(t, StateClosed, m.State)
	assert.Empty(t, effects)
	_, effects = m.Transition(InputTeardown)
	assert.Empty(t, effects)
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusSubscribed, ParseStatus("SUBSCRIBED"))
	assert.Equal(t, StatusChannelError, ParseStatus("CHANNEL_ERROR"))
	assert.Equal(t, StatusTimedOut, ParseStatus("TIMED_OUT"))
	assert.Equal(t, StatusClosed, ParseStatus("CLOSED"))
	assert.Equal(t, StatusUnknown, ParseStatus("JOINING"))
	assert.True(t, StatusClosed.Failed())
	assert.False(t, StatusUnknown.Failed())
}

func TestEventSpec_Matches(t *testing.T) {
	spec := EventSpec{Table: "price_contributions", Type: EventUpdate, Filter: &Filter{Column: "user_id", Value: "u1"}}

	assert.True(t, spec.Matches(Event{Table: "price_contributions", Type: EventUpdate, New: map[string]any{"user_id": "u1"}}))
	assert.False(t, spec.Matches(Event{Table: "price_contributions", Type: EventInsert, New: map[string]any{"user_id": "u1"}}))
	assert.False(t, spec.Matches(Event{Table: "price_contributions", Type: EventUpdate, New: map[string]any{"user_id": "u2"}}))
	assert.False(t, spec.Matches(Event{Table: "suggestions", Type: EventUpdate, New: map[string]any{"user_id": "u1"}}))

	all := EventSpec{Table: "suggestions", Type: EventAll}
	assert.True(t, all.Matches(Event{Table: "suggestions", Type: EventDelete}))
}
