package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"op":"SEND","destination":"/app/room.join","body":{"roomId":"R1"}}`))
	require.NoError(t, err)
	assert.Equal(t, OpSend, f.Op)
	assert.Equal(t, DestJoinRoom, f.Destination)
	assert.JSONEq(t, `{"roomId":"R1"}`, string(f.Body))
}

func TestDecodeFrame_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad json":            `{`,
		"unknown op":          `{"op":"PING","destination":"/x"}`,
		"missing destination": `{"op":"SEND"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(raw))
			assert.ErrorIs(t, err, ErrBadFrame)
		})
	}
}

func TestDecodeRoomEvent_UserList(t *testing.T) {
	raw := `{"roomId":"R1","message":"USER_LIST","users":[
		{"userName":"u1","nickname":"Ann","isHost":true,"level":3},
		{"userName":"u2","nickname":"Bob","ready":true}
	]}`
	ev, err := DecodeRoomEvent([]byte(raw))
	require.NoError(t, err)
	list, ok := ev.(UserList)
	require.True(t, ok)
	require.Len(t, list.Users, 2)
	assert.True(t, list.Users[0].Host)
	assert.Equal(t, 3, list.Users[0].Level)
	assert.True(t, list.Users[1].Ready)
}

func TestDecodeRoomEvent_UnknownMessageIgnored(t *testing.T) {
	ev, err := DecodeRoomEvent([]byte(`{"roomId":"R1","message":"SOMETHING_NEW"}`))
	assert.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDecodeRoomEvent_BadJSON(t *testing.T) {
	_, err := DecodeRoomEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestRoomEvent_EncodeDecodeGameStarted(t *testing.T) {
	in := GameStarted{
		RoomID:   "R1",
		Variant:  VariantSequence,
		Players:  []Player{{ID: "u1", Nickname: "Ann"}},
		Sequence: []int{DirUp, DirLeft, DirDown},
	}
	data, err := EncodeRoomEvent(in)
	require.NoError(t, err)
	ev, err := DecodeRoomEvent(data)
	require.NoError(t, err)
	out, ok := ev.(GameStarted)
	require.True(t, ok)
	assert.Equal(t, in.Sequence, out.Sequence)
	assert.Equal(t, in.Players, out.Players)
}

func TestDecodeRoomEvent_ProgressVariants(t *testing.T) {
	cases := map[string]Variant{
		"PRESS_UPDATED":     VariantTapRace,
		"GAME_STATE_UPDATE": VariantSequence,
		"SCORE_UPDATED":     VariantDodge,
	}
	for msg, variant := range cases {
		t.Run(msg, func(t *testing.T) {
			raw := `{"roomId":"R1","message":"` + msg + `","players":[{"userName":"u1","progress":7}]}`
			ev, err := DecodeRoomEvent([]byte(raw))
			require.NoError(t, err)
			prog, ok := ev.(ProgressUpdated)
			require.True(t, ok)
			assert.Equal(t, variant, prog.Variant)
			assert.Equal(t, 7, prog.Players[0].Progress)

			data, err := EncodeRoomEvent(prog)
			require.NoError(t, err)
			assert.Contains(t, string(data), msg)
		})
	}
}

func TestDecodeRoomEvent_GameEnded(t *testing.T) {
	raw := `{"roomId":"R1","message":"GAME_ENDED","winner":"u2","finishOrder":["u2","u1"]}`
	ev, err := DecodeRoomEvent([]byte(raw))
	require.NoError(t, err)
	end, ok := ev.(GameEnded)
	require.True(t, ok)
	assert.Equal(t, "u2", end.Winner)
	assert.Equal(t, []string{"u2", "u1"}, end.FinishOrder)
}

func TestParseVariant(t *testing.T) {
	for _, s := range []string{"TAP_RACE", "DIRECTION_SEQUENCE", "ITEM_DODGE"} {
		v, ok := ParseVariant(s)
		assert.True(t, ok)
		assert.Equal(t, Variant(s), v)
	}
	_, ok := ParseVariant("CHESS")
	assert.False(t, ok)
}

func TestChatMessage_System(t *testing.T) {
	m, err := DecodeChatMessage([]byte(`{"roomId":"R1","sender":"SYSTEM","content":"Ann joined the room","type":"JOIN"}`))
	require.NoError(t, err)
	assert.True(t, m.System())
	assert.Equal(t, ChatTypeJoin, m.Type)

	user, err := DecodeChatMessage([]byte(`{"roomId":"R1","sender":"u1","content":"hi","type":"CHAT"}`))
	require.NoError(t, err)
	assert.False(t, user.System())
}
