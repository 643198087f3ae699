package devserver

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tankmates/tankmates/pkg/protocol"
)

// WSHandler accepts a websocket, attaches it to the requested room and pumps
// frames both ways. Membership is intent-driven, so a dropped connection does
// not remove the user from the roster; they rejoin on reconnect.
func WSHandler(h *Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("room")
		if code == "" {
			http.Error(w, "missing room", http.StatusBadRequest)
			return
		}
		rm := h.Ensure(code)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		outbox := make(chan protocol.Frame, 16)
		rm.Inbox() <- clientAttach{ClientID: clientID, Outbox: outbox}
		defer func() { rm.Inbox() <- clientDetach{ClientID: clientID} }()

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for frame := range outbox {
				payload, err := frame.Encode()
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			frame, err := protocol.DecodeFrame(data)
			if err != nil {
				log.Debug("bad frame", zap.String("client", clientID), zap.Error(err))
				continue
			}

			switch frame.Op {
			case protocol.OpSubscribe:
				rm.Inbox() <- clientSubscribe{ClientID: clientID, Topic: frame.Destination}
			case protocol.OpUnsubscribe:
				rm.Inbox() <- clientUnsubscribe{ClientID: clientID, Topic: frame.Destination}
			case protocol.OpSend:
				rm.Inbox() <- clientIntent{ClientID: clientID, Destination: frame.Destination, Body: frame.Body}
			default:
				// Clients never send MESSAGE.
			}
		}
	}
}
