// Package game runs the client side of one minigame session. The engine is
// shared across all three variants; a small per-variant rule set decides how
// input maps to intents and when a participant has finished. Progress used
// for ranking always comes from the broker; local input only produces
// optimistic effects and outbound intents.
package game

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tankmates/tankmates/pkg/protocol"
)

var (
	ErrWrongVariant = errors.New("game: input not valid for this variant")
	ErrNoSequence   = errors.New("game: direction sequence missing")
)

const (
	// TargetProgress ends a racer's run. Comparison is inclusive so a
	// batched update that overshoots 100 still counts as arrival.
	TargetProgress = 100

	// LockoutDuration punishes a wrong direction key locally.
	LockoutDuration = time.Second

	// StunDuration follows a harmful item collision.
	StunDuration = time.Second

	// TotalLanes is the seat capacity of the arena.
	TotalLanes = 6

	// DefaultArenaWidth bounds local left/right movement in the dodge
	// variant when the caller gives no container width.
	DefaultArenaWidth = 100
)

// Budget is the local wall-clock cap per variant. When it expires before the
// broker declares the game over, the client requests termination itself.
func Budget(v protocol.Variant) time.Duration {
	switch v {
	case protocol.VariantDodge:
		return 60 * time.Second
	default:
		return 30 * time.Second
	}
}

type Publisher interface {
	Publish(destination string, v any) error
}

type Config struct {
	RoomID   string
	SelfID   string
	Variant  protocol.Variant
	Players  []protocol.Player
	Sequence []int
	// ArenaWidth bounds dodge movement; zero means DefaultArenaWidth.
	ArenaWidth int
	// Now is swappable for tests.
	Now func() time.Time
}

// Engine state is read by the caller's goroutine and written by the broker
// update path, so everything mutable sits behind mu. Publishes happen outside
// the lock so a slow write never stalls inbound updates.
type Engine struct {
	cfg Config
	pub Publisher
	log *zap.Logger

	mu          sync.Mutex
	players     []protocol.Player
	started     bool
	ended       bool
	winner      string
	finishOrder []string
	lockedUntil time.Time
	posX        int
}

func NewEngine(cfg Config, pub Publisher, log *zap.Logger) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ArenaWidth <= 0 {
		cfg.ArenaWidth = DefaultArenaWidth
	}
	return &Engine{
		cfg:     cfg,
		pub:     pub,
		log:     log.Named("game"),
		players: append([]protocol.Player{}, cfg.Players...),
		posX:    cfg.ArenaWidth / 2,
	}
}

func (e *Engine) Variant() protocol.Variant { return e.cfg.Variant }

func (e *Engine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

func (e *Engine) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

func (e *Engine) Winner() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.winner
}

func (e *Engine) FinishOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.finishOrder...)
}

func (e *Engine) Players() []protocol.Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.Player{}, e.players...)
}

// Tap handles one tap-race press. The press is published as a +1 delta; the
// racer's rendered position still follows the broker's counter.
func (e *Engine) Tap() (bool, error) {
	if e.cfg.Variant != protocol.VariantTapRace {
		return false, ErrWrongVariant
	}
	e.mu.Lock()
	if e.ended || e.hasArrived() {
		e.mu.Unlock()
		return false, nil
	}
	e.started = true
	e.mu.Unlock()
	err := e.pub.Publish(protocol.DestGamePress, protocol.PressIntent{
		RoomID:     e.cfg.RoomID,
		UserName:   e.cfg.SelfID,
		PressCount: 1,
	})
	return err == nil, err
}

// PressDirection handles one direction-sequence key. A match at the moment
// of press publishes an advance intent; a miss applies the local lockout and
// publishes nothing, so double-counting is impossible.
func (e *Engine) PressDirection(direction int) (bool, error) {
	if e.cfg.Variant != protocol.VariantSequence {
		return false, ErrWrongVariant
	}
	e.mu.Lock()
	if e.ended || e.hasArrived() || e.locked() {
		e.mu.Unlock()
		return false, nil
	}
	required, ok := e.requiredDirection()
	if !ok {
		e.mu.Unlock()
		return false, nil
	}
	e.started = true
	if direction != required {
		e.lockedUntil = e.cfg.Now().Add(LockoutDuration)
		e.mu.Unlock()
		return false, nil
	}
	e.mu.Unlock()
	err := e.pub.Publish(protocol.DestGameAdvance, protocol.AdvanceIntent{
		RoomID:    e.cfg.RoomID,
		UserName:  e.cfg.SelfID,
		Direction: direction,
	})
	return err == nil, err
}

// RequiredDirection returns the next symbol the local participant must
// match: sequence[progress], with progress taken from the last broker update.
func (e *Engine) RequiredDirection() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requiredDirection()
}

func (e *Engine) requiredDirection() (int, bool) {
	if e.cfg.Variant != protocol.VariantSequence || len(e.cfg.Sequence) == 0 {
		return 0, false
	}
	idx := e.selfProgress()
	if idx < 0 || idx >= len(e.cfg.Sequence) {
		return 0, false
	}
	return e.cfg.Sequence[idx], true
}

// Move shifts the local avatar in the dodge variant. Movement never crosses
// the wire; only collisions do.
func (e *Engine) Move(dx int) (int, error) {
	if e.cfg.Variant != protocol.VariantDodge {
		return 0, ErrWrongVariant
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended || e.locked() {
		return e.posX, nil
	}
	e.started = true
	e.posX += dx
	if e.posX < 0 {
		e.posX = 0
	}
	if e.posX > e.cfg.ArenaWidth {
		e.posX = e.cfg.ArenaWidth
	}
	return e.posX, nil
}

// Position returns the local avatar's horizontal position.
func (e *Engine) Position() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.posX
}

// Collide reports a detected collision. A stone stuns locally and is still
// reported so the broker can score it.
func (e *Engine) Collide(item protocol.ItemType) (bool, error) {
	if e.cfg.Variant != protocol.VariantDodge {
		return false, ErrWrongVariant
	}
	e.mu.Lock()
	if e.ended || e.locked() {
		e.mu.Unlock()
		return false, nil
	}
	e.started = true
	if item == protocol.ItemStone {
		e.lockedUntil = e.cfg.Now().Add(StunDuration)
	}
	e.mu.Unlock()
	err := e.pub.Publish(protocol.DestGameEat, protocol.EatIntent{
		RoomID:   e.cfg.RoomID,
		UserName: e.cfg.SelfID,
		ItemType: item,
	})
	return err == nil, err
}

// Locked reports whether the local lockout/stun window is active.
func (e *Engine) Locked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locked()
}

func (e *Engine) locked() bool {
	return e.cfg.Now().Before(e.lockedUntil)
}

// ApplyUpdate replaces gameplay state with a broker broadcast. Last write
// wins per participant; updates after the end are discarded.
func (e *Engine) ApplyUpdate(players []protocol.Player) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return
	}
	e.players = append([]protocol.Player{}, players...)
}

// ApplyEnd records the authoritative result verbatim. A repeated end notice
// is a no-op; any locally anticipated winner is discarded in favor of the
// broker's.
func (e *Engine) ApplyEnd(winner string, finishOrder []string, players []protocol.Player) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return false
	}
	e.ended = true
	e.winner = winner
	e.finishOrder = append([]string{}, finishOrder...)
	if len(players) > 0 {
		e.players = append([]protocol.Player{}, players...)
	}
	return true
}

// SelfProgress is the broker's counter for the local participant.
func (e *Engine) SelfProgress() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selfProgress()
}

func (e *Engine) selfProgress() int {
	for _, p := range e.players {
		if p.ID == e.cfg.SelfID {
			return p.Progress
		}
	}
	return 0
}

// HasArrived reports whether the local participant crossed the completion
// target. The dodge variant has no target and never arrives early.
func (e *Engine) HasArrived() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasArrived()
}

func (e *Engine) hasArrived() bool {
	if e.cfg.Variant == protocol.VariantDodge {
		return false
	}
	return e.selfProgress() >= TargetProgress
}

// AllArrived reports whether every participant crossed the target.
func (e *Engine) AllArrived() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.Variant == protocol.VariantDodge || len(e.players) == 0 {
		return false
	}
	for _, p := range e.players {
		if p.Progress < TargetProgress {
			return false
		}
	}
	return true
}

// LocalRank estimates the local participant's current standing (1-based) by
// broker progress, for in-game display only. Final standings always come
// from the broker's finish order.
func (e *Engine) LocalRank() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	self := e.selfProgress()
	rank := 1
	for _, p := range e.players {
		if p.ID != e.cfg.SelfID && p.Progress > self {
			rank++
		}
	}
	return rank
}
