package gamesim

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
	"math/rand/v2"
	"net/http"
	"sync"
	"werewolf-bdd/applog"
	"werewolf-bdd/game"
	"werewolf-bdd/util"
)

var ErrUnknownClient = errors.New("unknown client")

type client struct {
	id      string
	name    string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) label() string {
	if c.name != "" {
		return c.name
	}
	return c.id
}

func (c *client) send(payload string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return websocket.Message.Send(c.conn, payload)
}

type Option func(*Server)

// WithNameHeader names every connection from the given handshake header, so tests can
// address players before they join a lobby.
func WithNameHeader(key string) Option {
	return func(s *Server) {
		s.nameHeader = key
	}
}

// WithRand makes lobby codes and role assignment reproducible.
func WithRand(r *rand.Rand) Option {
	return func(s *Server) {
		s.intN = r.IntN
	}
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// Server is an in-process werewolf game server speaking the same websocket protocol as the
// real deployment. It keeps every lobby in memory.
type Server struct {
	nameHeader string
	intN       func(int) int
	logger     *applog.Logger
	ws         websocket.Server

	mu       sync.Mutex
	nextID   int
	clients  map[string]*client
	names    map[string]string
	lobbies  map[string]*game.GameState
	received map[string][]string
	changed  chan struct{}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		intN:     rand.IntN,
		logger:   applog.GetLogger(),
		clients:  map[string]*client{},
		names:    map[string]string{},
		lobbies:  map[string]*game.GameState{},
		received: map[string][]string{},
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ws = websocket.Server{
		// Test clients send no Origin header; accept everything.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   s.handle,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.ws.ServeHTTP(w, r)
}

func (s *Server) handle(conn *websocket.Conn) {
	c := s.register(conn)
	defer s.unregister(c)

	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			s.logger.Debug("Client read finished", zap.String("client", c.label()), zap.Error(err))
			return
		}
		s.record(c, string(data))
		s.dispatch(c, data)
	}
}

func (s *Server) register(conn *websocket.Conn) *client {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	c := &client{id: fmt.Sprintf("conn-%d", s.nextID), conn: conn}
	if s.nameHeader != "" {
		c.name = conn.Request().Header.Get(s.nameHeader)
	}
	s.clients[c.id] = c
	if c.name != "" {
		s.names[c.name] = c.id
	}
	s.notifyLocked()

	s.logger.Info("Client connected", zap.String("connectionId", c.id), zap.String("client", c.name))
	return c
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients, c.id)
	if c.name != "" && s.names[c.name] == c.id {
		delete(s.names, c.name)
	}
	s.notifyLocked()

	s.logger.Info("Client disconnected", zap.String("connectionId", c.id), zap.String("client", c.name))
}

func (s *Server) record(c *client, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := c.label()
	s.received[key] = append(s.received[key], payload)
	s.notifyLocked()

	s.logger.Debug("Client message", zap.String("client", key), zap.String("payload", util.TruncateForLog(payload, 512)))
}

func (s *Server) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Server) lookupLocked(name string) (*client, error) {
	id, ok := s.names[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClient, name)
	}
	return s.clients[id], nil
}

// Push sends a raw text frame to the named client.
func (s *Server) Push(name, payload string) error {
	s.mu.Lock()
	c, err := s.lookupLocked(name)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return c.send(payload)
}

// Broadcast sends a raw text frame to every connected client.
func (s *Server) Broadcast(payload string) error {
	var err error
	for _, c := range s.snapshotClients() {
		if sendErr := c.send(payload); sendErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", c.id, sendErr))
		}
	}
	return err
}

// Disconnect closes the named client's connection from the server side with a normal
// close frame.
func (s *Server) Disconnect(name string) error {
	s.mu.Lock()
	c, err := s.lookupLocked(name)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Close()
}

func (s *Server) Connected(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.names[name]
	return ok
}

// ConnectionCount returns the number of live connections, named or not.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// WaitConnected blocks until every named client is connected.
func (s *Server) WaitConnected(ctx context.Context, names ...string) error {
	return s.waitUntil(ctx, func() bool {
		for _, name := range names {
			if _, ok := s.names[name]; !ok {
				return false
			}
		}
		return true
	})
}

// WaitConnectionCount blocks until exactly n connections are live.
func (s *Server) WaitConnectionCount(ctx context.Context, n int) error {
	return s.waitUntil(ctx, func() bool {
		return len(s.clients) == n
	})
}

// WaitReceived blocks until the named client has sent at least n messages.
func (s *Server) WaitReceived(ctx context.Context, name string, n int) error {
	return s.waitUntil(ctx, func() bool {
		return len(s.received[name]) >= n
	})
}

// waitUntil evaluates cond with s.mu held each time the server state changes.
func (s *Server) waitUntil(ctx context.Context, cond func() bool) error {
	for {
		s.mu.Lock()
		ok := cond()
		changed := s.changed
		s.mu.Unlock()
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Received returns the raw messages the named client has sent, in order.
func (s *Server) Received(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received[name]...)
}

// Lobby returns a copy of the lobby state for code.
func (s *Server) Lobby(code string) (game.GameState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.lobbies[code]
	if !ok {
		return game.GameState{}, false
	}
	return cloneState(state), true
}

// LobbyCodes returns the codes of every lobby created so far.
func (s *Server) LobbyCodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.lobbies))
	for code := range s.lobbies {
		codes = append(codes, code)
	}
	return codes
}

func (s *Server) snapshotClients() []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	return clients
}
