// Package devserver is a development broker speaking the room protocol over
// websocket, plus the collaborator REST endpoints the client consumes. It
// exists so the client stack is runnable and integration-testable without
// the production backend.
package devserver

import (
	"context"

	"go.uber.org/zap"
)

type hubMsg interface{ isHubMsg() }

type ensureRoom struct {
	Code  string
	Reply chan *Room
}

type getRoom struct {
	Code  string
	Reply chan *Room
}

type removeRoom struct{ Code string }

type shutdownHub struct{}

func (ensureRoom) isHubMsg()  {}
func (getRoom) isHubMsg()     {}
func (removeRoom) isHubMsg()  {}
func (shutdownHub) isHubMsg() {}

// Hub owns the set of live rooms. Like the rooms themselves it is an actor:
// a single goroutine draining a typed inbox, so no locks are needed.
type Hub struct {
	inbox  chan hubMsg
	rooms  map[string]*Room
	users  UserStore
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, users UserStore, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan hubMsg, 64),
		rooms:  make(map[string]*Room),
		users:  users,
		log:    log.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- hubMsg { return h.inbox }

// Ensure returns the room for a code, creating it on first use.
func (h *Hub) Ensure(code string) *Room {
	reply := make(chan *Room, 1)
	h.inbox <- ensureRoom{Code: code, Reply: reply}
	return <-reply
}

// Get returns the room for a code, or nil.
func (h *Hub) Get(code string) *Room {
	reply := make(chan *Room, 1)
	h.inbox <- getRoom{Code: code, Reply: reply}
	return <-reply
}

func (h *Hub) Shutdown() { h.inbox <- shutdownHub{} }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case m := <-h.inbox:
			switch msg := m.(type) {
			case ensureRoom:
				rm := h.rooms[msg.Code]
				if rm == nil {
					rm = newRoom(h.ctx, msg.Code, h.users, h.log)
					h.rooms[msg.Code] = rm
				}
				msg.Reply <- rm

			case getRoom:
				msg.Reply <- h.rooms[msg.Code]

			case removeRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					rm.Inbox() <- roomShutdown{}
					delete(h.rooms, msg.Code)
				}

			case shutdownHub:
				for _, rm := range h.rooms {
					rm.Inbox() <- roomShutdown{}
				}
				clear(h.rooms)
				h.cancel()
				return
			}
		}
	}
}
