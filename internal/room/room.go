// Package room coordinates one realtime room session: it owns the transport
// session, wires the roster, chat channel, screen state machine, minigame
// engine and reward settlement together, and exposes the operations a user
// can take. Publish ownership is enforced here: the roster sends membership
// intents, the engine sends gameplay intents, the chat channel sends chat.
package room

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/tankmates/tankmates/internal/chat"
	"github.com/tankmates/tankmates/internal/friends"
	"github.com/tankmates/tankmates/internal/game"
	"github.com/tankmates/tankmates/internal/rest"
	"github.com/tankmates/tankmates/internal/reward"
	"github.com/tankmates/tankmates/internal/roster"
	"github.com/tankmates/tankmates/internal/screen"
	"github.com/tankmates/tankmates/internal/transport"
	"github.com/tankmates/tankmates/pkg/protocol"
)

var (
	ErrNotReady  = errors.New("room: not every participant is ready")
	ErrNotActive = errors.New("room: no game in progress")
	ErrRoomFull  = errors.New("room: participant limit reached")
)

// MaxParticipants bounds room occupancy.
const MaxParticipants = 6

// Identity is the authenticated local user as the realtime layer needs it.
type Identity struct {
	ID       string
	Nickname string
	Level    int
}

type Config struct {
	RoomID    string
	Identity  Identity
	Transport transport.Config
	Screen    screen.Config
}

// Result is a settlement outcome surfaced to the UI.
type Result = reward.Result

type Room struct {
	cfg Config
	log *zap.Logger

	session   *transport.Session
	rest      *rest.Client
	directory *friends.Directory
	roster    *roster.Tracker
	chat      *chat.Channel
	screen    *screen.Machine
	settler   *reward.Settler

	mu           sync.Mutex
	identity     Identity
	engine       *game.Engine
	selected     protocol.Variant
	levelAtStart int
	result       *Result
	roomTok      transport.Token
	chatTok      transport.Token
	left         bool

	onRoster  func([]roster.Participant)
	onChat    func(protocol.ChatMessage)
	onScreen  func(screen.State)
	onResult  func(*Result)
	onRemoved func()
}

// New assembles a room client. The friend directory may be nil.
func New(cfg Config, restClient *rest.Client, directory *friends.Directory, log *zap.Logger) *Room {
	r := &Room{
		cfg:       cfg,
		log:       log.Named("room").With(zap.String("room", cfg.RoomID)),
		rest:      restClient,
		directory: directory,
		identity:  cfg.Identity,
		selected:  protocol.VariantTapRace,
	}
	r.session = transport.NewSession(cfg.Transport, log)
	r.settler = reward.NewSettler(restClient, log)
	r.screen = screen.NewMachine(cfg.Screen, log)

	var resolver roster.NameResolver
	if directory != nil {
		resolver = directory
	}
	r.roster = roster.NewTracker(roster.Config{
		RoomID:   cfg.RoomID,
		SelfID:   cfg.Identity.ID,
		SelfName: r.selfName,
	}, r.session, resolver, log)
	r.chat = chat.NewChannel(cfg.RoomID, cfg.Identity.ID, r.session, log)

	r.roster.OnChange(func(ps []roster.Participant) {
		if r.onRoster != nil {
			r.onRoster(ps)
		}
	})
	r.roster.OnRemoved(func() {
		if r.onRemoved != nil {
			r.onRemoved()
		}
	})
	r.chat.OnMessage(func(m protocol.ChatMessage) {
		if r.onChat != nil {
			r.onChat(m)
		}
	})
	r.screen.OnTransition(func(s screen.State) {
		if r.onScreen != nil {
			r.onScreen(s)
		}
	})
	r.screen.OnCountdownDone(func() {
		if err := r.roster.ClearReady(); err != nil {
			r.log.Warn("ready reset failed", zap.Error(err))
		}
	})
	r.screen.OnForceEnd(func() {
		err := r.session.Publish(protocol.DestEndGame, protocol.EndGameIntent{RoomID: cfg.RoomID})
		if err != nil {
			r.log.Warn("force end publish failed", zap.Error(err))
		}
	})
	return r
}

func (r *Room) selfName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identity.Nickname
}

// Callback registration; all fire on the transport dispatch goroutine.
func (r *Room) OnRosterChange(fn func([]roster.Participant)) { r.onRoster = fn }
func (r *Room) OnChatMessage(fn func(protocol.ChatMessage))  { r.onChat = fn }
func (r *Room) OnScreenChange(fn func(screen.State))         { r.onScreen = fn }
func (r *Room) OnResult(fn func(*Result))                    { r.onResult = fn }
func (r *Room) OnRemoved(fn func())                          { r.onRemoved = fn }
func (r *Room) OnConnectionDown(fn func(error))              { r.session.OnDown(fn) }

// Enter connects the transport, subscribes the room and chat topics and
// announces presence. Reconnects re-announce automatically.
func (r *Room) Enter(ctx context.Context) error {
	r.session.OnConnect(r.roster.ConnectionEstablished)

	roomTok, err := r.session.Subscribe(protocol.RoomTopic(r.cfg.RoomID), r.handleRoomEvent)
	if err != nil {
		return err
	}
	chatTok, err := r.session.Subscribe(protocol.ChatTopic(r.cfg.RoomID), r.chat.Handle)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.roomTok = roomTok
	r.chatTok = chatTok
	r.mu.Unlock()

	return r.session.Connect(ctx)
}

// handleRoomEvent is the single routing point for room-topic broadcasts.
func (r *Room) handleRoomEvent(payload []byte) {
	ev, err := protocol.DecodeRoomEvent(payload)
	if err != nil {
		r.log.Warn("dropping room event", zap.Error(err))
		return
	}
	if ev == nil {
		return
	}
	switch e := ev.(type) {
	case protocol.UserList:
		r.roster.ApplySnapshot(e.Users)
	case protocol.UserKicked:
		r.roster.ApplyKick(e.TargetUser)
	case protocol.GameTypeUpdated:
		r.mu.Lock()
		r.selected = e.Variant
		r.mu.Unlock()
	case protocol.GameStarted:
		r.handleGameStarted(e)
	case protocol.ProgressUpdated:
		r.mu.Lock()
		if r.engine != nil {
			r.engine.ApplyUpdate(e.Players)
		}
		r.mu.Unlock()
	case protocol.GameEnded:
		r.handleGameEnded(e)
	}
}

func (r *Room) handleGameStarted(e protocol.GameStarted) {
	sessionID, ok := r.screen.HandleGameStarted(e.Variant)
	if !ok {
		return
	}
	r.mu.Lock()
	r.selected = e.Variant
	r.levelAtStart = r.identity.Level
	r.result = nil
	r.engine = game.NewEngine(game.Config{
		RoomID:   r.cfg.RoomID,
		SelfID:   r.cfg.Identity.ID,
		Variant:  e.Variant,
		Players:  e.Players,
		Sequence: e.Sequence,
	}, r.session, r.log)
	r.mu.Unlock()
	r.log.Info("game session opened", zap.String("session", sessionID))
}

func (r *Room) handleGameEnded(e protocol.GameEnded) {
	if !r.screen.HandleGameEnded() {
		// Duplicate end notice; already settled.
		return
	}
	r.mu.Lock()
	engine := r.engine
	sessionID := r.screen.SessionID()
	levelAtStart := r.levelAtStart
	r.mu.Unlock()
	if engine != nil {
		engine.ApplyEnd(e.Winner, e.FinishOrder, e.Players)
	}

	go func() {
		res, err := r.settler.Settle(context.Background(), sessionID, r.cfg.Identity.ID, e.FinishOrder, levelAtStart)
		if err != nil {
			// The ended screen stays usable; only the award failed.
			r.log.Warn("reward settlement failed", zap.Error(err))
			return
		}
		if res == nil {
			return
		}
		r.mu.Lock()
		r.result = res
		r.mu.Unlock()
		if r.onResult != nil {
			r.onResult(res)
		}
	}()
}

// SelectVariant publishes the host's minigame choice.
func (r *Room) SelectVariant(v protocol.Variant) error {
	if !r.roster.IsLocalHost() {
		return roster.ErrNotHost
	}
	r.mu.Lock()
	r.selected = v
	r.mu.Unlock()
	return r.session.Publish(protocol.DestSelectGame, protocol.SelectGameIntent{
		RoomID:   r.cfg.RoomID,
		Sender:   r.cfg.Identity.ID,
		GameType: string(v),
	})
}

// SelectedVariant is the variant the next game will run.
func (r *Room) SelectedVariant() protocol.Variant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// StartGame asks the broker to start the selected minigame. Host only, and
// every non-host participant must be ready.
func (r *Room) StartGame() error {
	if !r.roster.IsLocalHost() {
		return roster.ErrNotHost
	}
	if !r.roster.AllNonHostReady() {
		return ErrNotReady
	}
	r.mu.Lock()
	selected := r.selected
	r.mu.Unlock()
	return r.session.Publish(protocol.DestStartGame, protocol.StartGameIntent{
		RoomID:   r.cfg.RoomID,
		GameType: string(selected),
	})
}

func (r *Room) SetReady(ready bool) error    { return r.roster.SetReady(ready) }
func (r *Room) SendChat(text string) error   { return r.chat.Send(text) }
func (r *Room) Kick(targetUser string) error { return r.roster.RequestEject(targetUser) }
func (r *Room) Participants() []roster.Participant {
	return r.roster.Participants()
}
func (r *Room) IsHost() bool              { return r.roster.IsLocalHost() }
func (r *Room) AllNonHostReady() bool     { return r.roster.AllNonHostReady() }
func (r *Room) ScreenState() screen.State { return r.screen.State() }
func (r *Room) Transcript() []protocol.ChatMessage {
	return r.chat.Transcript()
}

// Invite asks the collaborator to invite a friend, capped at room capacity.
func (r *Room) Invite(ctx context.Context, guestID string) error {
	if r.roster.Count() >= MaxParticipants {
		return ErrRoomFull
	}
	return r.rest.Invite(ctx, r.cfg.Identity.ID, guestID, r.cfg.RoomID)
}

// Engine exposes the active minigame engine, nil outside a session.
func (r *Room) Engine() *game.Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine
}

func (r *Room) activeEngine() (*game.Engine, error) {
	if r.screen.State() != screen.StateActive {
		return nil, ErrNotActive
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engine == nil {
		return nil, ErrNotActive
	}
	return r.engine, nil
}

// Gameplay input, delegated to the engine only while the game is active.

func (r *Room) Tap() (bool, error) {
	e, err := r.activeEngine()
	if err != nil {
		return false, err
	}
	return e.Tap()
}

func (r *Room) PressDirection(direction int) (bool, error) {
	e, err := r.activeEngine()
	if err != nil {
		return false, err
	}
	return e.PressDirection(direction)
}

func (r *Room) Move(dx int) (int, error) {
	e, err := r.activeEngine()
	if err != nil {
		return 0, err
	}
	return e.Move(dx)
}

func (r *Room) Collide(item protocol.ItemType) (bool, error) {
	e, err := r.activeEngine()
	if err != nil {
		return false, err
	}
	return e.Collide(item)
}

// LastResult returns the settlement outcome of the most recent game, if any.
func (r *Room) LastResult() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// ConfirmLevelUp fetches the updated ticket balance after the level-up
// notice is acknowledged.
func (r *Room) ConfirmLevelUp(ctx context.Context) (rest.TicketBalance, error) {
	return r.settler.ConfirmLevelUp(ctx, r.cfg.Identity.ID)
}

// AcknowledgeResult dismisses the standings: back to Lobby, ready flags
// reset, identity refetched since the reward may have changed it.
func (r *Room) AcknowledgeResult(ctx context.Context) error {
	if !r.screen.AcknowledgeEnd() {
		return nil
	}
	r.mu.Lock()
	r.engine = nil
	r.mu.Unlock()

	if err := r.roster.ClearReady(); err != nil {
		r.log.Warn("ready reset failed", zap.Error(err))
	}
	u, err := r.rest.User(ctx, r.cfg.Identity.ID)
	if err != nil {
		r.log.Warn("identity refresh failed", zap.Error(err))
		return nil
	}
	r.mu.Lock()
	r.identity = Identity{ID: u.ID, Nickname: u.Nickname, Level: u.Level}
	r.mu.Unlock()
	return nil
}

// Leave announces departure and tears the session down. Safe to call twice.
func (r *Room) Leave() error {
	r.mu.Lock()
	if r.left {
		r.mu.Unlock()
		return nil
	}
	r.left = true
	roomTok, chatTok := r.roomTok, r.chatTok
	r.mu.Unlock()

	if err := r.roster.Leave(); err != nil {
		r.log.Warn("leave publish failed", zap.Error(err))
	}
	r.screen.Teardown()
	r.session.Unsubscribe(roomTok)
	r.session.Unsubscribe(chatTok)
	return r.session.Close()
}
