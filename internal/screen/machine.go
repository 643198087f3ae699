// Package screen is the top-level room state machine:
// Lobby -> Countdown -> Active -> Ended -> Lobby. Transitions are driven by
// broker lifecycle events and two local timers, the countdown and the
// per-variant wall-clock budget.
package screen

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tankmates/tankmates/internal/game"
	"github.com/tankmates/tankmates/pkg/protocol"
)

type State int

const (
	StateLobby State = iota
	StateCountdown
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateLobby:
		return "lobby"
	case StateCountdown:
		return "countdown"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// CountdownTicks is the fixed pre-game countdown length.
const CountdownTicks = 3

type Config struct {
	// TickInterval is the countdown tick length; tests shrink it.
	TickInterval time.Duration
	// BudgetFor overrides the per-variant time budget; nil uses game.Budget.
	BudgetFor func(protocol.Variant) time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.BudgetFor == nil {
		c.BudgetFor = game.Budget
	}
	return c
}

type Machine struct {
	cfg Config
	log *zap.Logger

	mu            sync.Mutex
	state         State
	gen           int
	countdownLeft int
	variant       protocol.Variant
	sessionID     string
	timer         *time.Timer

	onTransition    func(State)
	onCountdownDone func()
	onForceEnd      func()
}

func NewMachine(cfg Config, log *zap.Logger) *Machine {
	return &Machine{cfg: cfg.withDefaults(), log: log.Named("screen"), state: StateLobby}
}

// OnTransition fires after every state change, outside the lock.
func (m *Machine) OnTransition(fn func(State)) { m.onTransition = fn }

// OnCountdownDone fires once when Countdown expires into Active.
func (m *Machine) OnCountdownDone(fn func()) { m.onCountdownDone = fn }

// OnForceEnd fires when the local budget expires with the game still
// active; the owner publishes the end-game intent there.
func (m *Machine) OnForceEnd(fn func()) { m.onForceEnd = fn }

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID identifies the in-flight game session, empty in Lobby.
func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

func (m *Machine) CountdownRemaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countdownLeft
}

// HandleGameStarted moves Lobby -> Countdown, mints a session id and arms the
// countdown. A start notice in any other state is ignored.
func (m *Machine) HandleGameStarted(variant protocol.Variant) (string, bool) {
	m.mu.Lock()
	if m.state != StateLobby {
		m.mu.Unlock()
		return "", false
	}
	m.state = StateCountdown
	m.variant = variant
	m.sessionID = uuid.NewString()
	m.countdownLeft = CountdownTicks
	m.gen++
	gen := m.gen
	m.armLocked(m.cfg.TickInterval, func() { m.tick(gen) })
	sessionID := m.sessionID
	m.mu.Unlock()

	m.log.Info("game starting",
		zap.String("variant", string(variant)),
		zap.String("session", sessionID))
	m.fireTransition(StateCountdown)
	return sessionID, true
}

func (m *Machine) tick(gen int) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateCountdown {
		m.mu.Unlock()
		return
	}
	m.countdownLeft--
	if m.countdownLeft > 0 {
		m.armLocked(m.cfg.TickInterval, func() { m.tick(gen) })
		m.mu.Unlock()
		return
	}
	// Countdown expiry is not gated on a broker confirmation; the broker
	// runs its own clock of the same nominal length.
	m.state = StateActive
	budget := m.cfg.BudgetFor(m.variant)
	m.gen++
	nextGen := m.gen
	m.armLocked(budget, func() { m.budgetExpired(nextGen) })
	m.mu.Unlock()

	m.log.Info("countdown finished, game active")
	if m.onCountdownDone != nil {
		m.onCountdownDone()
	}
	m.fireTransition(StateActive)
}

func (m *Machine) budgetExpired(gen int) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateActive {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	// Safety net against a broker that never broadcasts the end: request
	// termination and keep waiting for the authoritative notice.
	m.log.Warn("time budget expired, requesting game end")
	if m.onForceEnd != nil {
		m.onForceEnd()
	}
}

// HandleGameEnded moves Countdown/Active -> Ended. The second and later end
// notices are no-ops.
func (m *Machine) HandleGameEnded() bool {
	m.mu.Lock()
	if m.state != StateActive && m.state != StateCountdown {
		m.mu.Unlock()
		return false
	}
	m.state = StateEnded
	m.cancelLocked()
	m.mu.Unlock()

	m.log.Info("game ended")
	m.fireTransition(StateEnded)
	return true
}

// AcknowledgeEnd is the user's dismissal of the standings: Ended -> Lobby,
// clearing game-session state.
func (m *Machine) AcknowledgeEnd() bool {
	m.mu.Lock()
	if m.state != StateEnded {
		m.mu.Unlock()
		return false
	}
	m.state = StateLobby
	m.sessionID = ""
	m.countdownLeft = 0
	m.cancelLocked()
	m.mu.Unlock()

	m.fireTransition(StateLobby)
	return true
}

// Teardown cancels outstanding timers so nothing fires after the owning room
// is gone.
func (m *Machine) Teardown() {
	m.mu.Lock()
	m.cancelLocked()
	m.state = StateLobby
	m.sessionID = ""
	m.mu.Unlock()
}

func (m *Machine) armLocked(d time.Duration, fn func()) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(d, fn)
}

func (m *Machine) cancelLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) fireTransition(s State) {
	if m.onTransition != nil {
		m.onTransition(s)
	}
}
