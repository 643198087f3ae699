// Package transport owns the single publish/subscribe connection a room
// client runs over. One Session maps to one websocket; every component above
// shares it through Subscribe/Publish.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/tankmates/tankmates/pkg/protocol"
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrClosed       = errors.New("transport: session closed")
	ErrGaveUp       = errors.New("transport: reconnect attempts exhausted")
)

// Handler receives the raw payload of a MESSAGE frame on a subscribed topic.
// Handlers for a given Session are invoked serially, in arrival order.
type Handler func(payload []byte)

// Token identifies one subscription. Zero value is inert.
type Token struct {
	topic string
	id    int
}

type Config struct {
	URL            string
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	ReconnectDelay time.Duration
	MaxReconnects  int
	// PendingLimit bounds the publish queue while disconnected. A publish
	// past the limit fails with ErrNotConnected instead of silently dropping.
	PendingLimit int
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 5
	}
	if c.PendingLimit <= 0 {
		c.PendingLimit = 32
	}
	return c
}

type sessionState int

const (
	stateIdle sessionState = iota
	stateConnecting
	stateConnected
	stateClosed
	stateFailed
)

type Session struct {
	cfg Config
	log *zap.Logger

	mu        sync.Mutex
	st        sessionState
	conn      *websocket.Conn
	subs      map[string]map[int]Handler
	nextSub   int
	pending   []protocol.Frame
	onConnect []func(reconnect bool)
	onDown    func(error)
	wasUp     bool

	writeMu sync.Mutex
}

func NewSession(cfg Config, log *zap.Logger) *Session {
	return &Session{
		cfg:  cfg.withDefaults(),
		log:  log.Named("transport"),
		subs: make(map[string]map[int]Handler),
	}
}

// OnConnect registers a callback fired after every successful (re)connect,
// with reconnect=false only for the first connection of the session's life.
// Register before Connect.
func (s *Session) OnConnect(fn func(reconnect bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = append(s.onConnect, fn)
}

// OnDown registers the terminal-failure callback, fired once if reconnection
// is exhausted.
func (s *Session) OnDown(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDown = fn
}

// Connect establishes the connection. It is idempotent: calling it while
// connecting or connected does nothing.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.st {
	case stateClosed:
		s.mu.Unlock()
		return ErrClosed
	case stateConnecting, stateConnected:
		s.mu.Unlock()
		return nil
	}
	s.st = stateConnecting
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		s.mu.Lock()
		if s.st == stateConnecting {
			s.st = stateIdle
		}
		s.mu.Unlock()
		return fmt.Errorf("transport: connect %s: %w", s.cfg.URL, err)
	}
	if !s.becomeConnected(conn) {
		return ErrClosed
	}
	go s.run(conn)
	return nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, s.cfg.URL, nil)
	return conn, err
}

// becomeConnected installs conn, replays topic interest, flushes queued
// publishes and fires the connect callbacks. When Close raced the dial the
// fresh conn is discarded instead of installed, so a closed session stays
// closed.
func (s *Session) becomeConnected(conn *websocket.Conn) bool {
	s.mu.Lock()
	if s.st == stateClosed {
		s.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "bye")
		return false
	}
	s.conn = conn
	s.st = stateConnected
	reconnect := s.wasUp
	s.wasUp = true
	topics := make([]string, 0, len(s.subs))
	for topic := range s.subs {
		topics = append(topics, topic)
	}
	queued := s.pending
	s.pending = nil
	callbacks := append([]func(bool){}, s.onConnect...)
	s.mu.Unlock()

	for _, topic := range topics {
		if err := s.writeFrame(conn, protocol.Frame{Op: protocol.OpSubscribe, Destination: topic}); err != nil {
			s.log.Warn("resubscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
	for _, f := range queued {
		if err := s.writeFrame(conn, f); err != nil {
			s.log.Warn("queued publish failed", zap.String("destination", f.Destination), zap.Error(err))
		}
	}
	s.log.Info("connected", zap.String("url", s.cfg.URL), zap.Bool("reconnect", reconnect))
	for _, fn := range callbacks {
		fn(reconnect)
	}
	return true
}

// run is the single dispatch loop: it reads frames until the connection
// drops, then drives reconnection. Handler invocation happens here, so all
// inbound handling is serialized.
func (s *Session) run(conn *websocket.Conn) {
	for {
		err := s.readUntilError(conn)
		s.mu.Lock()
		if s.st == stateClosed {
			s.mu.Unlock()
			return
		}
		s.st = stateConnecting
		s.conn = nil
		s.mu.Unlock()
		s.log.Warn("connection lost, reconnecting", zap.Error(err))

		next, rerr := s.reconnect()
		if rerr != nil {
			s.mu.Lock()
			closed := s.st == stateClosed
			if !closed {
				s.st = stateFailed
			}
			down := s.onDown
			s.mu.Unlock()
			if !closed {
				s.log.Error("reconnect exhausted", zap.Error(rerr))
				if down != nil {
					down(rerr)
				}
			}
			return
		}
		if !s.becomeConnected(next) {
			return
		}
		conn = next
	}
}

func (s *Session) readUntilError(conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return err
		}
		f, err := protocol.DecodeFrame(data)
		if err != nil {
			// Protocol errors never crash the loop.
			s.log.Warn("dropping frame", zap.Error(err))
			continue
		}
		if f.Op != protocol.OpMessage {
			continue
		}
		s.dispatch(f)
	}
}

func (s *Session) dispatch(f protocol.Frame) {
	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.subs[f.Destination]))
	for _, h := range s.subs[f.Destination] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(f.Body)
	}
}

func (s *Session) reconnect() (*websocket.Conn, error) {
	for attempt := 1; attempt <= s.cfg.MaxReconnects; attempt++ {
		time.Sleep(s.cfg.ReconnectDelay)
		s.mu.Lock()
		if s.st == stateClosed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		s.mu.Unlock()
		conn, err := s.dial(context.Background())
		if err == nil {
			return conn, nil
		}
		s.log.Warn("reconnect attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max", s.cfg.MaxReconnects),
			zap.Error(err))
	}
	return nil, ErrGaveUp
}

// Subscribe registers a handler for a topic and announces interest to the
// broker on first use of that topic.
func (s *Session) Subscribe(topic string, h Handler) (Token, error) {
	s.mu.Lock()
	if s.st == stateClosed {
		s.mu.Unlock()
		return Token{}, ErrClosed
	}
	s.nextSub++
	id := s.nextSub
	first := len(s.subs[topic]) == 0
	if s.subs[topic] == nil {
		s.subs[topic] = make(map[int]Handler)
	}
	s.subs[topic][id] = h
	conn := s.conn
	connected := s.st == stateConnected
	s.mu.Unlock()

	if first && connected {
		if err := s.writeFrame(conn, protocol.Frame{Op: protocol.OpSubscribe, Destination: topic}); err != nil {
			return Token{}, err
		}
	}
	return Token{topic: topic, id: id}, nil
}

// Unsubscribe releases a subscription. Releasing an already-released or zero
// token is a no-op.
func (s *Session) Unsubscribe(tok Token) {
	if tok.topic == "" {
		return
	}
	s.mu.Lock()
	m := s.subs[tok.topic]
	if m == nil {
		s.mu.Unlock()
		return
	}
	if _, ok := m[tok.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(m, tok.id)
	last := len(m) == 0
	if last {
		delete(s.subs, tok.topic)
	}
	conn := s.conn
	connected := s.st == stateConnected
	s.mu.Unlock()

	if last && connected {
		if err := s.writeFrame(conn, protocol.Frame{Op: protocol.OpUnsubscribe, Destination: tok.topic}); err != nil {
			s.log.Warn("unsubscribe failed", zap.String("topic", tok.topic), zap.Error(err))
		}
	}
}

// Publish sends an intent to a destination. Before the connection is ready
// the frame is queued (bounded); past the bound the caller gets
// ErrNotConnected and can retry.
func (s *Session) Publish(destination string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: encode publish: %w", err)
	}
	f := protocol.Frame{Op: protocol.OpSend, Destination: destination, Body: body}

	s.mu.Lock()
	switch s.st {
	case stateClosed:
		s.mu.Unlock()
		return ErrClosed
	case stateConnected:
		conn := s.conn
		s.mu.Unlock()
		return s.writeFrame(conn, f)
	default:
		if len(s.pending) >= s.cfg.PendingLimit {
			s.mu.Unlock()
			return ErrNotConnected
		}
		s.pending = append(s.pending, f)
		s.mu.Unlock()
		return nil
	}
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st == stateConnected
}

// Close tears the connection down intentionally. No reconnection follows.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.st == stateClosed {
		s.mu.Unlock()
		return nil
	}
	s.st = stateClosed
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "bye")
	}
	return nil
}

func (s *Session) writeFrame(conn *websocket.Conn, f protocol.Frame) error {
	if conn == nil {
		return ErrNotConnected
	}
	data, err := f.Encode()
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: write %s: %w", f.Destination, err)
	}
	return nil
}
