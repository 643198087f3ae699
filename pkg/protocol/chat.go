package protocol

import (
	"encoding/json"
	"fmt"
)

// ChatType discriminates chat-topic envelopes. JOIN/LEAVE/READY announcements
// share the envelope with user chat and carry SenderSystem as sender.
type ChatType string

const (
	ChatTypeChat  ChatType = "CHAT"
	ChatTypeJoin  ChatType = "JOIN"
	ChatTypeLeave ChatType = "LEAVE"
	ChatTypeReady ChatType = "READY"
)

const SenderSystem = "SYSTEM"

type ChatMessage struct {
	RoomID  string   `json:"roomId"`
	Sender  string   `json:"sender"`
	Content string   `json:"content"`
	Type    ChatType `json:"type"`
}

func (m ChatMessage) System() bool { return m.Sender == SenderSystem }

func DecodeChatMessage(data []byte) (ChatMessage, error) {
	var m ChatMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ChatMessage{}, fmt.Errorf("chat message: %w", err)
	}
	return m, nil
}
