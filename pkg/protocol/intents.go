package protocol

// Direction symbols for the direction-sequence variant.
const (
	DirUp    = 0
	DirRight = 1
	DirDown  = 2
	DirLeft  = 3
)

// Item classification for the falling-item variant.
type ItemType string

const (
	ItemFeed  ItemType = "FEED"
	ItemStone ItemType = "STONE"
)

// Outbound intent payloads. Every intent names the room; gameplay intents
// additionally name the sending participant.

type JoinIntent struct {
	RoomID string `json:"roomId"`
	Sender string `json:"sender"`
}

type LeaveIntent struct {
	RoomID string `json:"roomId"`
	Sender string `json:"sender"`
}

type ReadyIntent struct {
	RoomID string `json:"roomId"`
	Sender string `json:"sender"`
}

type KickIntent struct {
	RoomID     string `json:"roomId"`
	Sender     string `json:"sender"`
	TargetUser string `json:"targetUser"`
}

type SelectGameIntent struct {
	RoomID   string `json:"roomId"`
	Sender   string `json:"sender"`
	GameType string `json:"gameType"`
}

type StartGameIntent struct {
	RoomID   string `json:"roomId"`
	GameType string `json:"gameType"`
}

type EndGameIntent struct {
	RoomID string `json:"roomId"`
}

// PressIntent reports tap-race presses. PressCount is a delta, not a total.
type PressIntent struct {
	RoomID     string `json:"roomId"`
	UserName   string `json:"userName"`
	PressCount int    `json:"pressCount"`
}

// AdvanceIntent reports a direction-sequence match attempt.
type AdvanceIntent struct {
	RoomID    string `json:"roomId"`
	UserName  string `json:"userName"`
	Direction int    `json:"direction"`
}

// EatIntent reports a falling-item collision. Movement itself stays local;
// only the collision event crosses the wire.
type EatIntent struct {
	RoomID   string   `json:"roomId"`
	UserName string   `json:"userName"`
	ItemType ItemType `json:"itemType"`
}
