// Package protocol defines the wire format shared by the room client and the
// broker: the transport frame, the room-topic event envelope, the chat
// envelope, and the outbound intent payloads.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Op is the frame-level discriminant.
type Op string

const (
	OpSubscribe   Op = "SUBSCRIBE"
	OpUnsubscribe Op = "UNSUBSCRIBE"
	OpSend        Op = "SEND"
	OpMessage     Op = "MESSAGE"
)

var ErrBadFrame = errors.New("malformed frame")

// Frame is the unit of transfer on the websocket. SEND carries an intent to a
// destination, MESSAGE carries a broker broadcast on a topic, SUBSCRIBE and
// UNSUBSCRIBE manage topic interest.
type Frame struct {
	Op          Op              `json:"op"`
	Destination string          `json:"destination"`
	Body        json.RawMessage `json:"body,omitempty"`
}

func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	switch f.Op {
	case OpSubscribe, OpUnsubscribe, OpSend, OpMessage:
	default:
		return Frame{}, fmt.Errorf("%w: op %q", ErrBadFrame, f.Op)
	}
	if f.Destination == "" {
		return Frame{}, fmt.Errorf("%w: missing destination", ErrBadFrame)
	}
	return f, nil
}

func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
