// Package chat is the room's message log: an append-only transcript fed by
// the chat topic, independent of game state.
package chat

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tankmates/tankmates/pkg/protocol"
)

type Publisher interface {
	Publish(destination string, v any) error
}

type Channel struct {
	roomID string
	sender string
	pub    Publisher
	log    *zap.Logger

	mu         sync.Mutex
	transcript []protocol.ChatMessage

	onMessage func(protocol.ChatMessage)
}

func NewChannel(roomID, sender string, pub Publisher, log *zap.Logger) *Channel {
	return &Channel{roomID: roomID, sender: sender, pub: pub, log: log.Named("chat")}
}

// OnMessage registers the received-message callback.
func (c *Channel) OnMessage(fn func(protocol.ChatMessage)) { c.onMessage = fn }

// Handle consumes one chat-topic payload. Arrival order is transcript order;
// there is no dedup and no replay.
func (c *Channel) Handle(payload []byte) {
	msg, err := protocol.DecodeChatMessage(payload)
	if err != nil {
		c.log.Warn("dropping chat payload", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.transcript = append(c.transcript, msg)
	c.mu.Unlock()
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// Send publishes a user chat message. Blank input is dropped.
func (c *Channel) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return c.pub.Publish(protocol.DestSendChat, protocol.ChatMessage{
		RoomID:  c.roomID,
		Sender:  c.sender,
		Content: text,
		Type:    protocol.ChatTypeChat,
	})
}

// Transcript returns a copy of the log in arrival order.
func (c *Channel) Transcript() []protocol.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.ChatMessage{}, c.transcript...)
}
