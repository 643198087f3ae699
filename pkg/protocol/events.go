package protocol

import (
	"encoding/json"
	"fmt"
)

// Variant identifies which minigame a room is playing.
type Variant string

const (
	VariantTapRace  Variant = "TAP_RACE"
	VariantSequence Variant = "DIRECTION_SEQUENCE"
	VariantDodge    Variant = "ITEM_DODGE"
)

func ParseVariant(s string) (Variant, bool) {
	switch Variant(s) {
	case VariantTapRace, VariantSequence, VariantDodge:
		return Variant(s), true
	default:
		return "", false
	}
}

// Member is one roster entry as broadcast in a USER_LIST snapshot.
type Member struct {
	ID        string `json:"userName"`
	Nickname  string `json:"nickname"`
	FishImage string `json:"mainFishImage"`
	Host      bool   `json:"isHost"`
	Ready     bool   `json:"ready"`
	Level     int    `json:"level"`
}

// Player is one participant's gameplay state as broadcast during a game.
// Progress is server-authoritative: press count, sequence index, or score
// depending on the variant.
type Player struct {
	ID        string `json:"userName"`
	Nickname  string `json:"nickname"`
	FishImage string `json:"mainFishImage"`
	Progress  int    `json:"progress"`
	Stunned   bool   `json:"stunned,omitempty"`
}

// Room-topic event discriminants. Progress carries a per-variant name on the
// wire; all three decode to the one ProgressUpdated event.
const (
	msgUserList        = "USER_LIST"
	msgUserKicked      = "USER_KICKED"
	msgGameTypeUpdated = "GAME_TYPE_UPDATED"
	msgGameStarted     = "GAME_STARTED"
	msgPressUpdated    = "PRESS_UPDATED"
	msgStateUpdated    = "GAME_STATE_UPDATE"
	msgScoreUpdated    = "SCORE_UPDATED"
	msgGameEnded       = "GAME_ENDED"
)

// RoomEvent is the decoded form of a room-topic broadcast.
type RoomEvent interface{ isRoomEvent() }

// UserList is a full-replace roster snapshot.
type UserList struct {
	RoomID string
	Users  []Member
}

// UserKicked reports a host-initiated eject of TargetUser.
type UserKicked struct {
	RoomID     string
	TargetUser string
}

// GameTypeUpdated mirrors the host's minigame selection to all members.
type GameTypeUpdated struct {
	RoomID    string
	Variant   Variant
	UpdatedBy string
}

// GameStarted carries the participant snapshot the game runs against and,
// for the direction-sequence variant, the server-generated sequence.
type GameStarted struct {
	RoomID   string
	Variant  Variant
	Players  []Player
	Sequence []int
}

// ProgressUpdated is a last-write-wins gameplay state broadcast. Variant
// selects the wire discriminant when encoding.
type ProgressUpdated struct {
	RoomID  string
	Variant Variant
	Players []Player
}

// GameEnded is the authoritative end of a game. FinishOrder lists member IDs
// by completion rank; Winner is FinishOrder[0] when anyone finished.
type GameEnded struct {
	RoomID      string
	Players     []Player
	Winner      string
	FinishOrder []string
}

func (UserList) isRoomEvent()        {}
func (UserKicked) isRoomEvent()      {}
func (GameTypeUpdated) isRoomEvent() {}
func (GameStarted) isRoomEvent()     {}
func (ProgressUpdated) isRoomEvent() {}
func (GameEnded) isRoomEvent()       {}

// roomEventWire is the loose envelope the broker actually sends. Decoding
// narrows it to one RoomEvent variant.
type roomEventWire struct {
	RoomID      string   `json:"roomId"`
	Message     string   `json:"message"`
	Users       []Member `json:"users,omitempty"`
	Players     []Player `json:"players,omitempty"`
	TargetUser  string   `json:"targetUser,omitempty"`
	GameType    string   `json:"gameType,omitempty"`
	UpdatedBy   string   `json:"updatedBy,omitempty"`
	Sequence    []int    `json:"directionSequence,omitempty"`
	Winner      string   `json:"winner,omitempty"`
	FinishOrder []string `json:"finishOrder,omitempty"`
}

// DecodeRoomEvent parses a room-topic payload. An unrecognized message
// discriminant is not an error: it decodes to (nil, nil) and the caller is
// expected to ignore it.
func DecodeRoomEvent(data []byte) (RoomEvent, error) {
	var w roomEventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("room event: %w", err)
	}
	switch w.Message {
	case msgUserList:
		return UserList{RoomID: w.RoomID, Users: w.Users}, nil
	case msgUserKicked:
		return UserKicked{RoomID: w.RoomID, TargetUser: w.TargetUser}, nil
	case msgGameTypeUpdated:
		v, ok := ParseVariant(w.GameType)
		if !ok {
			return nil, nil
		}
		return GameTypeUpdated{RoomID: w.RoomID, Variant: v, UpdatedBy: w.UpdatedBy}, nil
	case msgGameStarted:
		v, ok := ParseVariant(w.GameType)
		if !ok {
			return nil, nil
		}
		return GameStarted{RoomID: w.RoomID, Variant: v, Players: w.Players, Sequence: w.Sequence}, nil
	case msgPressUpdated:
		return ProgressUpdated{RoomID: w.RoomID, Variant: VariantTapRace, Players: w.Players}, nil
	case msgStateUpdated:
		return ProgressUpdated{RoomID: w.RoomID, Variant: VariantSequence, Players: w.Players}, nil
	case msgScoreUpdated:
		return ProgressUpdated{RoomID: w.RoomID, Variant: VariantDodge, Players: w.Players}, nil
	case msgGameEnded:
		return GameEnded{RoomID: w.RoomID, Players: w.Players, Winner: w.Winner, FinishOrder: w.FinishOrder}, nil
	default:
		return nil, nil
	}
}

// EncodeRoomEvent builds the wire envelope for a RoomEvent. The broker side
// uses this; the client only decodes.
func EncodeRoomEvent(ev RoomEvent) ([]byte, error) {
	var w roomEventWire
	switch e := ev.(type) {
	case UserList:
		w = roomEventWire{RoomID: e.RoomID, Message: msgUserList, Users: e.Users}
	case UserKicked:
		w = roomEventWire{RoomID: e.RoomID, Message: msgUserKicked, TargetUser: e.TargetUser}
	case GameTypeUpdated:
		w = roomEventWire{RoomID: e.RoomID, Message: msgGameTypeUpdated, GameType: string(e.Variant), UpdatedBy: e.UpdatedBy}
	case GameStarted:
		w = roomEventWire{RoomID: e.RoomID, Message: msgGameStarted, GameType: string(e.Variant), Players: e.Players, Sequence: e.Sequence}
	case ProgressUpdated:
		msg := msgPressUpdated
		switch e.Variant {
		case VariantSequence:
			msg = msgStateUpdated
		case VariantDodge:
			msg = msgScoreUpdated
		}
		w = roomEventWire{RoomID: e.RoomID, Message: msg, Players: e.Players}
	case GameEnded:
		w = roomEventWire{RoomID: e.RoomID, Message: msgGameEnded, Players: e.Players, Winner: e.Winner, FinishOrder: e.FinishOrder}
	default:
		return nil, fmt.Errorf("room event: unsupported type %T", ev)
	}
	return json.Marshal(w)
}
