package protocol

// Topic strings (broker -> client broadcasts).
func RoomTopic(roomID string) string { return "/topic/room/" + roomID }
func ChatTopic(roomID string) string { return "/topic/chat/" + roomID }

// Destination strings (client -> broker intents).
const (
	DestJoinRoom    = "/app/room.join"
	DestLeaveRoom   = "/app/room.leave"
	DestReady       = "/app/room.ready"
	DestUnready     = "/app/room.unready"
	DestClearReady  = "/app/room.clearReady"
	DestKickUser    = "/app/room.kick"
	DestSelectGame  = "/app/room.selectGame"
	DestSendChat    = "/app/chat.send"
	DestStartGame   = "/app/game.start"
	DestEndGame     = "/app/game.end"
	DestGamePress   = "/app/game.press"
	DestGameAdvance = "/app/game.advance"
	DestGameEat     = "/app/game.eat"
)
