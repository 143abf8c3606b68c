package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"werewolf-bdd/applog"
	"werewolf-bdd/metrics"
	"werewolf-bdd/util"
)

const maxLoggedPayload = 512

type outboundMessage struct {
	kind MessageKind
	data []byte
}

// Player is one simulated client holding its own websocket connection to the game server.
// All connection IO happens on the player's goroutines; the exported methods only touch
// guarded state and the outbound queue.
type Player struct {
	name     string
	endpoint string
	opts     options
	log      *InboundLog
	logger   *applog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	outbound chan outboundMessage

	stateMu      sync.RWMutex
	state        ConnectionState
	lastErr      error
	stateChanged chan struct{}

	opened    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewPlayer validates its arguments and starts connecting in the background. It never waits
// for the handshake; dial failures show up later through State and LastError.
func NewPlayer(name, endpoint string, opts ...Option) (*Player, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	p := newPlayer(name, endpoint, buildOptions(opts))
	go p.run()
	return p, nil
}

func newPlayer(name, endpoint string, o options) *Player {
	ctx := applog.WithPlayer(o.ctx, name, endpoint)
	ctx, cancel := context.WithCancel(ctx)

	var logger *applog.Logger
	if o.logger != nil {
		logger = o.logger.With(zap.String("playerName", name), zap.String("endpoint", endpoint))
	} else {
		logger = applog.FromContext(ctx)
	}

	return &Player{
		name:         name,
		endpoint:     endpoint,
		opts:         o,
		log:          NewInboundLog(),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		outbound:     make(chan outboundMessage, o.sendQueueSize),
		state:        StateConnecting,
		stateChanged: make(chan struct{}),
		opened:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// ValidateEndpoint accepts absolute ws:// and wss:// URLs only.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidEndpoint, endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: %q: scheme must be ws or wss", ErrInvalidEndpoint, endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q: missing host", ErrInvalidEndpoint, endpoint)
	}
	return nil
}

func (p *Player) Name() string     { return p.name }
func (p *Player) Endpoint() string { return p.endpoint }

// Log is the live inbound log of this player.
func (p *Player) Log() *InboundLog { return p.log }

func (p *Player) State() ConnectionState {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// LastError is the most recent asynchronous transport failure, wrapped in ErrTransport.
func (p *Player) LastError() error {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.lastErr
}

// Opened is closed once the handshake completes.
func (p *Player) Opened() <-chan struct{} { return p.opened }

// Done is closed when the player goroutine has exited and the state is final.
func (p *Player) Done() <-chan struct{} { return p.done }

// WaitOpen blocks until the player is Open. It fails as soon as the player can no
// longer become Open.
func (p *Player) WaitOpen(ctx context.Context) error {
	for {
		p.stateMu.RLock()
		state, lastErr, changed := p.state, p.lastErr, p.stateChanged
		p.stateMu.RUnlock()

		switch state {
		case StateOpen:
			return nil
		case StateClosed, StateErrored:
			if lastErr != nil {
				return fmt.Errorf("%w: %s is %s: %w", ErrNotConnected, p.name, state, lastErr)
			}
			return fmt.Errorf("%w: %s is %s", ErrNotConnected, p.name, state)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s still %s: %w", p.name, state, ctx.Err())
		case <-changed:
		}
	}
}

func (p *Player) SendText(text string) error {
	return p.Send(MessageText, []byte(text))
}

// SendJSON marshals v and sends it as a text frame.
func (p *Player) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", p.name, err)
	}
	return p.Send(MessageText, data)
}

// Send queues one frame for the writer goroutine. It does not wait for delivery.
func (p *Player) Send(kind MessageKind, data []byte) error {
	if state := p.State(); state != StateOpen {
		return fmt.Errorf("%w: %s is %s", ErrNotConnected, p.name, state)
	}

	msg := outboundMessage{kind: kind, data: append([]byte(nil), data...)}
	select {
	case p.outbound <- msg:
		return nil
	default:
		return fmt.Errorf("%w: %s (capacity %d)", ErrSendQueueFull, p.name, cap(p.outbound))
	}
}

// Close asks the connection to shut down. Repeated calls are no-ops.
func (p *Player) Close() {
	p.closeOnce.Do(func() {
		p.logger.Debug("Close requested")
		p.cancel()
	})
}

// Shutdown closes the player and waits for its goroutine to finish.
func (p *Player) Shutdown(ctx context.Context) error {
	p.Close()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s did not close in time: %w", p.name, ctx.Err())
	}
}

func (p *Player) run() {
	defer close(p.done)

	p.logger.Info("Connecting")
	conn, err := p.dial()
	if err != nil {
		if p.ctx.Err() != nil {
			p.onClose()
			return
		}
		p.onError(err)
		// Errored until someone closes us, so teardown still ends in Closed.
		<-p.ctx.Done()
		p.onClose()
		return
	}

	p.onOpen()

	// Once Close is requested the server has closeGrace to answer the close frame.
	job := util.DelayedCancelContextWithJob(p.ctx, p.opts.closeGrace)
	go func() {
		<-job.GetContext().Done()
		_ = conn.Close()
	}()

	writerDone := make(chan struct{})
	writeFailed := make(chan error, 1)
	go p.writeLoop(conn, writeFailed, writerDone)

	p.readLoop(conn, writeFailed)

	p.cancel()
	job.Cancel()
	<-writerDone
	p.onClose()
}

func (p *Player) dial() (*websocket.Conn, error) {
	dialer := p.opts.dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = p.opts.handshakeTimeout
		dialer = &d
	}

	header := p.opts.header.Clone()
	if p.opts.nameHeader != "" {
		if header == nil {
			header = http.Header{}
		}
		header.Set(p.opts.nameHeader, p.name)
	}

	conn, resp, err := dialer.DialContext(p.ctx, p.endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", p.endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", p.endpoint, err)
	}
	return conn, nil
}

// readLoop owns every callback after open. A failed write closes the connection, and the
// reader reports that failure in place of the resulting read error.
func (p *Player) readLoop(conn *websocket.Conn, writeFailed <-chan error) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case werr := <-writeFailed:
				err = werr
			default:
			}
			if p.ctx.Err() == nil && !isNormalClose(err) {
				p.onError(err)
			} else {
				p.logger.Debug("Read loop finished", zap.Error(err))
			}
			return
		}

		kind := MessageText
		if msgType == websocket.BinaryMessage {
			kind = MessageBinary
		}
		p.onMessage(Payload{Kind: kind, Data: data, ReceivedAt: time.Now()})
	}
}

func (p *Player) writeLoop(conn *websocket.Conn, failed chan<- error, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-p.ctx.Done():
			p.flushOutbound(conn)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(p.opts.writeWait)); err != nil {
				p.logger.Debug("Could not send close frame", zap.Error(err))
			}
			return
		case msg := <-p.outbound:
			if err := p.write(conn, msg); err != nil {
				failed <- fmt.Errorf("write: %w", err)
				_ = conn.Close()
				return
			}
		}
	}
}

// flushOutbound writes whatever was queued before Close, best effort.
func (p *Player) flushOutbound(conn *websocket.Conn) {
	for {
		select {
		case msg := <-p.outbound:
			if err := p.write(conn, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (p *Player) write(conn *websocket.Conn, msg outboundMessage) error {
	msgType := websocket.TextMessage
	if msg.kind == MessageBinary {
		msgType = websocket.BinaryMessage
	}
	_ = conn.SetWriteDeadline(time.Now().Add(p.opts.writeWait))
	if err := conn.WriteMessage(msgType, msg.data); err != nil {
		return err
	}
	metrics.IncSent(p.name)
	p.logger.Debug("Message sent", zap.Stringer("kind", msg.kind), zap.Int("size", len(msg.data)))
	return nil
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

func (p *Player) onOpen() {
	if p.transition(StateOpen) {
		close(p.opened)
		p.logger.Info("Connection open")
	}
}

func (p *Player) onMessage(msg Payload) {
	p.log.append(msg)
	metrics.IncReceived(p.name)

	if msg.Kind == MessageBinary {
		p.logger.Debug("Message received",
			zap.Stringer("kind", msg.Kind),
			zap.String("payload", util.TruncateForLog(util.DataToHex(msg.Data), maxLoggedPayload)),
		)
		return
	}
	p.logger.Debug("Message received",
		zap.Stringer("kind", msg.Kind),
		zap.String("payload", util.TruncateForLog(msg.Text(), maxLoggedPayload)),
	)
}

// onError records the failure. Only a connection that never opened becomes Errored.
func (p *Player) onError(err error) {
	wrapped := fmt.Errorf("%w: %w", ErrTransport, err)

	p.stateMu.Lock()
	p.lastErr = wrapped
	p.stateMu.Unlock()

	metrics.IncTransportError()
	p.logger.Warn("Transport error", zap.Error(err))

	if p.State() == StateConnecting {
		p.transition(StateErrored)
	}
}

func (p *Player) onClose() {
	if p.transition(StateClosed) {
		p.logger.Info("Connection closed", zap.Int("received", p.log.Len()))
	}
}

func (p *Player) transition(to ConnectionState) bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	from := p.state
	if !canTransition(from, to) {
		return false
	}
	p.state = to
	close(p.stateChanged)
	p.stateChanged = make(chan struct{})

	if to == StateOpen {
		metrics.ConnectionOpened()
	} else if from == StateOpen {
		metrics.ConnectionClosed()
	}
	return true
}

// PlayerStatus is a point-in-time summary of one player.
type PlayerStatus struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Received  int    `json:"received"`
	LastError string `json:"lastError,omitempty"`
}

func (p *Player) Status() PlayerStatus {
	p.stateMu.RLock()
	state, lastErr := p.state, p.lastErr
	p.stateMu.RUnlock()

	status := PlayerStatus{
		Name:     p.name,
		State:    state.String(),
		Received: p.log.Len(),
	}
	if lastErr != nil {
		status.LastError = lastErr.Error()
	}
	return status
}
