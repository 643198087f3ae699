package devserver

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/tankmates/tankmates/pkg/protocol"
)

type roomMsg interface{ isRoomMsg() }

// clientAttach registers a websocket connection with the room. A client is a
// transport-level peer; membership only changes on explicit intents.
type clientAttach struct {
	ClientID string
	Outbox   chan protocol.Frame
}

type clientDetach struct{ ClientID string }

type clientSubscribe struct {
	ClientID string
	Topic    string
}

type clientUnsubscribe struct {
	ClientID string
	Topic    string
}

// clientIntent is a SEND frame from one client.
type clientIntent struct {
	ClientID    string
	Destination string
	Body        json.RawMessage
}

type getRoomState struct{ Reply chan RoomView }

type roomShutdown struct{}

func (clientAttach) isRoomMsg()      {}
func (clientDetach) isRoomMsg()      {}
func (clientSubscribe) isRoomMsg()   {}
func (clientUnsubscribe) isRoomMsg() {}
func (clientIntent) isRoomMsg()      {}
func (getRoomState) isRoomMsg()      {}
func (roomShutdown) isRoomMsg()      {}

// RoomView reflects room state for tests and the members endpoint.
type RoomView struct {
	Code       string
	NumClients int
	Members    []protocol.Member
	InGame     bool
}

type client struct {
	outbox chan protocol.Frame
	topics map[string]bool
}

// Room is one live room: an actor owning the member roster, the chat feed
// and the in-flight game, if any.
type Room struct {
	code    string
	inbox   chan roomMsg
	clients map[string]*client
	members []protocol.Member
	variant protocol.Variant
	game    *roomGame
	users   UserStore
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func newRoom(parent context.Context, code string, users UserStore, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		code:    code,
		inbox:   make(chan roomMsg, 64),
		clients: make(map[string]*client),
		variant: protocol.VariantTapRace,
		users:   users,
		log:     log.Named("room").With(zap.String("code", code)),
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- roomMsg { return r.inbox }

// View queries the actor for a consistent snapshot.
func (r *Room) View() RoomView {
	reply := make(chan RoomView, 1)
	r.inbox <- getRoomState{Reply: reply}
	return <-reply
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return
		case m := <-r.inbox:
			switch msg := m.(type) {
			case clientAttach:
				r.clients[msg.ClientID] = &client{outbox: msg.Outbox, topics: make(map[string]bool)}

			case clientDetach:
				if c := r.clients[msg.ClientID]; c != nil {
					close(c.outbox)
					delete(r.clients, msg.ClientID)
				}

			case clientSubscribe:
				if c := r.clients[msg.ClientID]; c != nil {
					c.topics[msg.Topic] = true
				}

			case clientUnsubscribe:
				if c := r.clients[msg.ClientID]; c != nil {
					delete(c.topics, msg.Topic)
				}

			case clientIntent:
				r.handleIntent(msg)

			case getRoomState:
				msg.Reply <- RoomView{
					Code:       r.code,
					NumClients: len(r.clients),
					Members:    append([]protocol.Member{}, r.members...),
					InGame:     r.game != nil && !r.game.ended,
				}

			case roomShutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	for id, c := range r.clients {
		close(c.outbox)
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) handleIntent(msg clientIntent) {
	switch msg.Destination {
	case protocol.DestJoinRoom:
		var in protocol.JoinIntent
		if json.Unmarshal(msg.Body, &in) == nil {
			r.join(in.Sender)
		}
	case protocol.DestLeaveRoom:
		var in protocol.LeaveIntent
		if json.Unmarshal(msg.Body, &in) == nil {
			r.leave(in.Sender)
		}
	case protocol.DestReady, protocol.DestUnready:
		var in protocol.ReadyIntent
		if json.Unmarshal(msg.Body, &in) == nil {
			r.setReady(in.Sender, msg.Destination == protocol.DestReady)
		}
	case protocol.DestClearReady:
		r.clearReady()
	case protocol.DestKickUser:
		var in protocol.KickIntent
		if json.Unmarshal(msg.Body, &in) == nil {
			r.kick(in.Sender, in.TargetUser)
		}
	case protocol.DestSelectGame:
		var in protocol.SelectGameIntent
		if json.Unmarshal(msg.Body, &in) == nil {
			r.selectGame(in.Sender, in.GameType)
		}
	case protocol.DestSendChat:
		var in protocol.ChatMessage
		if json.Unmarshal(msg.Body, &in) == nil {
			r.broadcastChat(in)
		}
	case protocol.DestStartGame:
		var in protocol.StartGameIntent
		if json.Unmarshal(msg.Body, &in) == nil {
			r.startGame(in.GameType)
		}
	case protocol.DestGamePress:
		var in protocol.PressIntent
		if json.Unmarshal(msg.Body, &in) == nil {
			r.gamePress(in)
		}
	case protocol.DestGameAdvance:
		var in protocol.AdvanceIntent
		if json.Unmarshal(msg.Body, &in) == nil {
			r.gameAdvance(in)
		}
	case protocol.DestGameEat:
		var in protocol.EatIntent
		if json.Unmarshal(msg.Body, &in) == nil {
			r.gameEat(in)
		}
	case protocol.DestEndGame:
		r.endGame()
	default:
		r.log.Debug("ignoring intent", zap.String("destination", msg.Destination))
	}
}

func (r *Room) join(userID string) {
	for _, m := range r.members {
		if m.ID == userID {
			// Rejoin after reconnect: roster unchanged, just rebroadcast.
			r.broadcastRoster()
			return
		}
	}
	u, err := r.users.Ensure(r.ctx, userID)
	if err != nil {
		r.log.Warn("join lookup failed", zap.String("user", userID), zap.Error(err))
		return
	}
	r.members = append(r.members, protocol.Member{
		ID:        u.ID,
		Nickname:  u.Nickname,
		FishImage: u.FishImage,
		Host:      len(r.members) == 0,
		Level:     u.Level,
	})
	r.broadcastRoster()
	r.systemChat(u.Nickname+" joined the room", protocol.ChatTypeJoin)
}

func (r *Room) leave(userID string) {
	idx := -1
	for i, m := range r.members {
		if m.ID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	wasHost := r.members[idx].Host
	name := r.members[idx].Nickname
	r.members = append(r.members[:idx], r.members[idx+1:]...)
	if wasHost && len(r.members) > 0 {
		r.members[0].Host = true
	}
	r.broadcastRoster()
	r.systemChat(name+" left the room", protocol.ChatTypeLeave)
}

func (r *Room) setReady(userID string, ready bool) {
	for i := range r.members {
		if r.members[i].ID == userID {
			r.members[i].Ready = ready
		}
	}
	r.broadcastRoster()
	r.systemChat(r.nickname(userID)+" is "+readyWord(ready), protocol.ChatTypeReady)
}

func readyWord(ready bool) string {
	if ready {
		return "ready"
	}
	return "not ready"
}

func (r *Room) clearReady() {
	for i := range r.members {
		r.members[i].Ready = false
	}
	r.broadcastRoster()
}

func (r *Room) kick(senderID, targetID string) {
	if !r.isHost(senderID) || senderID == targetID {
		return
	}
	r.broadcastRoom(protocol.UserKicked{RoomID: r.code, TargetUser: targetID})
	r.leave(targetID)
}

func (r *Room) selectGame(senderID, gameType string) {
	if !r.isHost(senderID) {
		return
	}
	v, ok := protocol.ParseVariant(gameType)
	if !ok {
		return
	}
	r.variant = v
	r.broadcastRoom(protocol.GameTypeUpdated{RoomID: r.code, Variant: v, UpdatedBy: senderID})
}

func (r *Room) isHost(userID string) bool {
	for _, m := range r.members {
		if m.ID == userID {
			return m.Host
		}
	}
	return false
}

func (r *Room) nickname(userID string) string {
	for _, m := range r.members {
		if m.ID == userID {
			return m.Nickname
		}
	}
	return userID
}

func (r *Room) broadcastRoster() {
	r.broadcastRoom(protocol.UserList{RoomID: r.code, Users: append([]protocol.Member{}, r.members...)})
}

func (r *Room) broadcastRoom(ev protocol.RoomEvent) {
	body, err := protocol.EncodeRoomEvent(ev)
	if err != nil {
		r.log.Error("encode event", zap.Error(err))
		return
	}
	r.broadcast(protocol.RoomTopic(r.code), body)
}

func (r *Room) systemChat(content string, typ protocol.ChatType) {
	r.broadcastChat(protocol.ChatMessage{
		RoomID:  r.code,
		Sender:  protocol.SenderSystem,
		Content: content,
		Type:    typ,
	})
}

func (r *Room) broadcastChat(m protocol.ChatMessage) {
	body, err := json.Marshal(m)
	if err != nil {
		return
	}
	r.broadcast(protocol.ChatTopic(r.code), body)
}

// broadcast fans a MESSAGE frame out to every client subscribed to the
// topic. Slow clients are dropped, as blocking the actor is worse.
func (r *Room) broadcast(topic string, body []byte) {
	frame := protocol.Frame{Op: protocol.OpMessage, Destination: topic, Body: body}
	for id, c := range r.clients {
		if !c.topics[topic] {
			continue
		}
		select {
		case c.outbox <- frame:
		default:
			r.log.Warn("dropping slow client", zap.String("client", id))
			close(c.outbox)
			delete(r.clients, id)
		}
	}
}
