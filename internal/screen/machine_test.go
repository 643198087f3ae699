package screen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tankmates/tankmates/pkg/protocol"
)

// fastConfig keeps timer-driven tests in the tens of milliseconds.
func fastConfig(budget time.Duration) Config {
	return Config{
		TickInterval: 10 * time.Millisecond,
		BudgetFor:    func(protocol.Variant) time.Duration { return budget },
	}
}

func waitState(t *testing.T, m *Machine, want State, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, still %v", want, m.State())
}

func TestCountdown_ReachesActive(t *testing.T) {
	m := NewMachine(fastConfig(time.Minute), zap.NewNop())

	var transitions []State
	done := make(chan struct{}, 1)
	m.OnTransition(func(s State) { transitions = append(transitions, s) })
	m.OnCountdownDone(func() { done <- struct{}{} })

	sessionID, ok := m.HandleGameStarted(protocol.VariantTapRace)
	require.True(t, ok)
	assert.NotEmpty(t, sessionID)
	assert.Equal(t, StateCountdown, m.State())
	assert.Equal(t, CountdownTicks, m.CountdownRemaining())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("countdown never finished")
	}
	assert.Equal(t, StateActive, m.State())
	assert.Equal(t, []State{StateCountdown, StateActive}, transitions)
}

func TestGameStarted_IgnoredOutsideLobby(t *testing.T) {
	m := NewMachine(fastConfig(time.Minute), zap.NewNop())

	first, ok := m.HandleGameStarted(protocol.VariantTapRace)
	require.True(t, ok)

	second, ok := m.HandleGameStarted(protocol.VariantDodge)
	assert.False(t, ok)
	assert.Empty(t, second)
	assert.Equal(t, first, m.SessionID())
}

func TestBudgetExpiry_RequestsEndButStaysActive(t *testing.T) {
	m := NewMachine(fastConfig(30*time.Millisecond), zap.NewNop())

	forced := make(chan struct{}, 1)
	m.OnForceEnd(func() { forced <- struct{}{} })

	_, ok := m.HandleGameStarted(protocol.VariantTapRace)
	require.True(t, ok)
	waitState(t, m, StateActive, time.Second)

	select {
	case <-forced:
	case <-time.After(time.Second):
		t.Fatal("budget expiry never fired")
	}
	// Still waiting for the authoritative end notice.
	assert.Equal(t, StateActive, m.State())
}

func TestGameEnded_IdempotentAndFromCountdown(t *testing.T) {
	m := NewMachine(fastConfig(time.Minute), zap.NewNop())
	_, ok := m.HandleGameStarted(protocol.VariantTapRace)
	require.True(t, ok)

	// End can arrive while still counting down.
	assert.True(t, m.HandleGameEnded())
	assert.Equal(t, StateEnded, m.State())
	assert.False(t, m.HandleGameEnded())
}

func TestAcknowledgeEnd_BackToLobby(t *testing.T) {
	m := NewMachine(fastConfig(time.Minute), zap.NewNop())

	// Nothing to acknowledge from the lobby.
	assert.False(t, m.AcknowledgeEnd())

	_, ok := m.HandleGameStarted(protocol.VariantTapRace)
	require.True(t, ok)
	require.True(t, m.HandleGameEnded())

	assert.True(t, m.AcknowledgeEnd())
	assert.Equal(t, StateLobby, m.State())
	assert.Empty(t, m.SessionID())

	// A fresh game mints a fresh session.
	next, ok := m.HandleGameStarted(protocol.VariantDodge)
	require.True(t, ok)
	assert.NotEmpty(t, next)
}

func TestTeardown_StopsTimers(t *testing.T) {
	// Slow ticks so teardown lands mid-countdown.
	m := NewMachine(Config{TickInterval: 200 * time.Millisecond}, zap.NewNop())

	fired := make(chan State, 4)
	m.OnTransition(func(s State) { fired <- s })

	_, ok := m.HandleGameStarted(protocol.VariantTapRace)
	require.True(t, ok)
	<-fired // countdown transition

	m.Teardown()
	assert.Equal(t, StateLobby, m.State())

	select {
	case s := <-fired:
		t.Fatalf("timer fired after teardown: %v", s)
	case <-time.After(100 * time.Millisecond):
	}
}
