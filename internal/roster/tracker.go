// Package roster maintains the authoritative participant list of one room:
// who is present, who hosts, who is ready. It is the only component allowed
// to publish join/leave/ready/eject intents.
package roster

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/tankmates/tankmates/pkg/protocol"
)

var (
	ErrNotHost    = errors.New("roster: local participant is not the host")
	ErrSelfTarget = errors.New("roster: cannot eject the local participant")
)

// Publisher is the slice of the transport session the tracker needs.
type Publisher interface {
	Publish(destination string, v any) error
}

// NameResolver looks up a cached display name for a remote participant.
type NameResolver interface {
	Resolve(userID string) (string, bool)
}

// Participant is a roster entry after display-name resolution.
type Participant struct {
	ID          string
	DisplayName string
	FishImage   string
	Host        bool
	Ready       bool
	Level       int
}

type Config struct {
	RoomID string
	SelfID string
	// SelfName sources the local participant's display name from the
	// authenticated identity, never from a roster echo.
	SelfName func() string
}

type Tracker struct {
	cfg      Config
	pub      Publisher
	resolver NameResolver
	log      *zap.Logger

	mu      sync.Mutex
	joined  bool
	members []protocol.Member

	onChange  func([]Participant)
	onRemoved func()
}

func NewTracker(cfg Config, pub Publisher, resolver NameResolver, log *zap.Logger) *Tracker {
	return &Tracker{cfg: cfg, pub: pub, resolver: resolver, log: log.Named("roster")}
}

// OnChange is invoked after every applied roster change.
func (t *Tracker) OnChange(fn func([]Participant)) { t.onChange = fn }

// OnRemoved is invoked when the local participant is ejected by the host.
func (t *Tracker) OnRemoved(fn func()) { t.onRemoved = fn }

// Announce publishes the join intent. At most one join is sent per
// connection lifetime regardless of how often this is called.
func (t *Tracker) Announce() error {
	t.mu.Lock()
	if t.joined {
		t.mu.Unlock()
		return nil
	}
	t.joined = true
	t.mu.Unlock()

	err := t.pub.Publish(protocol.DestJoinRoom, protocol.JoinIntent{RoomID: t.cfg.RoomID, Sender: t.cfg.SelfID})
	if err != nil {
		t.mu.Lock()
		t.joined = false
		t.mu.Unlock()
		return err
	}
	t.log.Info("join announced", zap.String("room", t.cfg.RoomID))
	return nil
}

// ConnectionEstablished re-announces presence after a reconnect, since the
// broker may have dropped the server-side session.
func (t *Tracker) ConnectionEstablished(reconnect bool) {
	if reconnect {
		t.mu.Lock()
		t.joined = false
		t.mu.Unlock()
	}
	if err := t.Announce(); err != nil {
		t.log.Warn("join announce failed", zap.Error(err))
	}
}

// Leave publishes the leave intent. The caller tears the session down after.
func (t *Tracker) Leave() error {
	return t.pub.Publish(protocol.DestLeaveRoom, protocol.LeaveIntent{RoomID: t.cfg.RoomID, Sender: t.cfg.SelfID})
}

// ApplySnapshot replaces the participant list wholesale. Snapshots are
// full-replace, so application is idempotent across delivery gaps.
func (t *Tracker) ApplySnapshot(users []protocol.Member) {
	t.mu.Lock()
	t.members = append([]protocol.Member{}, users...)
	t.mu.Unlock()
	t.notify()
}

// ApplyKick handles an eject notice. Ejecting the local identity empties the
// roster and fires the removed callback.
func (t *Tracker) ApplyKick(targetUser string) {
	if targetUser == t.cfg.SelfID {
		t.mu.Lock()
		t.members = nil
		t.mu.Unlock()
		t.log.Info("removed from room by host", zap.String("room", t.cfg.RoomID))
		if t.onRemoved != nil {
			t.onRemoved()
		}
		return
	}
	t.mu.Lock()
	kept := t.members[:0]
	for _, m := range t.members {
		if m.ID != targetUser {
			kept = append(kept, m)
		}
	}
	t.members = kept
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) notify() {
	if t.onChange != nil {
		t.onChange(t.Participants())
	}
}

// Participants returns the roster in join order with display names resolved:
// the local entry uses the authenticated identity's name, remote entries
// prefer the friend directory, then the roster's copy, then the raw id.
func (t *Tracker) Participants() []Participant {
	t.mu.Lock()
	members := append([]protocol.Member{}, t.members...)
	t.mu.Unlock()

	out := make([]Participant, 0, len(members))
	for _, m := range members {
		out = append(out, Participant{
			ID:          m.ID,
			DisplayName: t.displayName(m),
			FishImage:   m.FishImage,
			Host:        m.Host,
			Ready:       m.Ready,
			Level:       m.Level,
		})
	}
	return out
}

// DisplayName resolves a single user id through the same three-tier policy.
func (t *Tracker) DisplayName(userID string) string {
	t.mu.Lock()
	var found *protocol.Member
	for i := range t.members {
		if t.members[i].ID == userID {
			found = &t.members[i]
			break
		}
	}
	var m protocol.Member
	if found != nil {
		m = *found
	} else {
		m = protocol.Member{ID: userID}
	}
	t.mu.Unlock()
	return t.displayName(m)
}

func (t *Tracker) displayName(m protocol.Member) string {
	if m.ID == t.cfg.SelfID && t.cfg.SelfName != nil {
		if name := t.cfg.SelfName(); name != "" {
			return name
		}
	}
	if m.ID != t.cfg.SelfID && t.resolver != nil {
		if name, ok := t.resolver.Resolve(m.ID); ok {
			return name
		}
	}
	if m.Nickname != "" {
		return m.Nickname
	}
	return m.ID
}

// IsLocalHost reports whether the local identity's record holds the host flag.
func (t *Tracker) IsLocalHost() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.members {
		if m.ID == t.cfg.SelfID {
			return m.Host
		}
	}
	return false
}

// AllNonHostReady is vacuously true with zero non-host participants, which
// lets a solo host start a game.
func (t *Tracker) AllNonHostReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.members {
		if m.Host {
			continue
		}
		if !m.Ready {
			return false
		}
	}
	return true
}

// SelfReady reports the local participant's ready flag per the last snapshot.
func (t *Tracker) SelfReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.members {
		if m.ID == t.cfg.SelfID {
			return m.Ready
		}
	}
	return false
}

// Count returns the current participant count.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.members)
}

// SetReady publishes the ready or unready intent for the local participant.
func (t *Tracker) SetReady(ready bool) error {
	dest := protocol.DestUnready
	if ready {
		dest = protocol.DestReady
	}
	return t.pub.Publish(dest, protocol.ReadyIntent{RoomID: t.cfg.RoomID, Sender: t.cfg.SelfID})
}

// ClearReady requests a room-wide ready reset.
func (t *Tracker) ClearReady() error {
	return t.pub.Publish(protocol.DestClearReady, protocol.ReadyIntent{RoomID: t.cfg.RoomID, Sender: t.cfg.SelfID})
}

// RequestEject publishes a host-only eject intent. The gate here is UX only;
// the broker re-validates authority.
func (t *Tracker) RequestEject(targetUser string) error {
	if targetUser == t.cfg.SelfID {
		return ErrSelfTarget
	}
	if !t.IsLocalHost() {
		return ErrNotHost
	}
	return t.pub.Publish(protocol.DestKickUser, protocol.KickIntent{
		RoomID:     t.cfg.RoomID,
		Sender:     t.cfg.SelfID,
		TargetUser: targetUser,
	})
}
