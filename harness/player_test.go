package harness

import (
	"context"
	"errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestValidateEndpoint(t *testing.T) {
	for _, endpoint := range []string{"ws://localhost:8080/game", "wss://example.com/prod", "ws://127.0.0.1:1"} {
		assert.NoError(t, ValidateEndpoint(endpoint), endpoint)
	}
	for _, endpoint := range []string{"ftp://bad", "http://example.com", "", "ws://", "://nope", "localhost:8080"} {
		assert.ErrorIs(t, ValidateEndpoint(endpoint), ErrInvalidEndpoint, endpoint)
	}
}

func TestNewPlayerRejectsBadInput(t *testing.T) {
	p, err := NewPlayer("Adam", "ftp://bad")
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
	assert.Nil(t, p)

	p, err = NewPlayer("  ", "ws://localhost:1")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Nil(t, p)
}

func TestPlayerOpensAndExchangesMessages(t *testing.T) {
	sim, endpoint := startSim(t)
	ctx := testContext(t)

	p, err := NewPlayer("Adam", endpoint, WithNameHeader(testNameHeader))
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(ctx) }()

	require.NoError(t, p.WaitOpen(ctx))
	assert.Equal(t, StateOpen, p.State())
	select {
	case <-p.Opened():
	default:
		t.Fatal("opened channel not closed")
	}

	require.NoError(t, p.SendText("hello"))
	require.NoError(t, sim.WaitReceived(ctx, "Adam", 1))
	assert.Equal(t, []string{"hello"}, sim.Received("Adam"))

	require.NoError(t, sim.Push("Adam", "welcome"))
	_, err = p.Log().WaitFor(ctx, func(msg Payload) bool { return msg.Text() == "welcome" })
	require.NoError(t, err)
	assert.Nil(t, p.LastError())
}

func TestSendBeforeOpenFailsFast(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Hold the handshake so the player stays in Connecting.
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewPlayer("Adam", wsURL(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, StateConnecting, p.State())
	assert.ErrorIs(t, p.SendText("too early"), ErrNotConnected)

	// Closing while the handshake is pending never opens the player.
	p.Close()
	close(release)
	require.NoError(t, p.Shutdown(testContext(t)))
	assert.Equal(t, StateClosed, p.State())
	assert.Nil(t, p.LastError())
}

func TestHandshakeRejectionMovesToErrored(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p, err := NewPlayer("Adam", wsURL(srv.URL))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.State() == StateErrored }, 5*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, p.LastError(), ErrTransport)
	assert.ErrorIs(t, p.LastError(), websocket.ErrBadHandshake)
	assert.Contains(t, p.LastError().Error(), "status 404")

	err = p.WaitOpen(testContext(t))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, p.SendText("x"), ErrNotConnected)

	// Closing an errored player still ends in Closed and keeps the error around.
	require.NoError(t, p.Shutdown(testContext(t)))
	assert.Equal(t, StateClosed, p.State())
	assert.ErrorIs(t, p.LastError(), ErrTransport)
}

func TestRefusedConnectionMovesToErrored(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	p, err := NewPlayer("Adam", "ws://"+addr+"/game")
	require.NoError(t, err, "constructor must not report network failures")
	defer func() { _ = p.Shutdown(testContext(t)) }()

	require.Eventually(t, func() bool { return p.State() == StateErrored }, 5*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, p.LastError(), ErrTransport)
}

func TestServerCloseMovesToClosed(t *testing.T) {
	sim, endpoint := startSim(t)
	ctx := testContext(t)

	p, err := NewPlayer("Adam", endpoint, WithNameHeader(testNameHeader))
	require.NoError(t, err)
	require.NoError(t, p.WaitOpen(ctx))
	require.NoError(t, sim.WaitConnected(ctx, "Adam"))

	require.NoError(t, sim.Disconnect("Adam"))

	select {
	case <-p.Done():
	case <-ctx.Done():
		t.Fatal("player goroutine did not finish after server close")
	}
	assert.Equal(t, StateClosed, p.State())
	assert.Nil(t, p.LastError(), "a normal close is not a transport error")
	assert.ErrorIs(t, p.SendText("late"), ErrNotConnected)
}

func TestBinaryFramesAreLoggedAsBinary(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0xDE, 0xAD})
		_ = conn.WriteMessage(websocket.TextMessage, []byte("after"))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		// Wait for the client's close reply.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	p, err := NewPlayer("Adam", wsURL(srv.URL))
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-testContext(t).Done():
		t.Fatal("player did not finish")
	}

	snapshot := p.Log().Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, MessageBinary, snapshot[0].Kind)
	assert.Equal(t, []byte{0xDE, 0xAD}, snapshot[0].Data)
	assert.Equal(t, MessageText, snapshot[1].Kind)
	assert.Equal(t, StateClosed, p.State())
	assert.Nil(t, p.LastError())
}

func TestAbnormalDropRecordsTransportError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the TCP connection without a close frame.
		_ = conn.UnderlyingConn().Close()
	}))
	defer srv.Close()

	p, err := NewPlayer("Adam", wsURL(srv.URL))
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-testContext(t).Done():
		t.Fatal("player did not finish")
	}
	assert.Equal(t, StateClosed, p.State(), "errors after open leave the state to onClose")
	assert.ErrorIs(t, p.LastError(), ErrTransport)
}

type failingWriteConn struct {
	net.Conn
	fail *atomic.Bool
}

func (c *failingWriteConn) Write(b []byte) (int, error) {
	if c.fail.Load() {
		return 0, errors.New("write refused")
	}
	return c.Conn.Write(b)
}

func TestWriteFailureClosesWithTransportError(t *testing.T) {
	sim, endpoint := startSim(t)
	ctx := testContext(t)

	var fail atomic.Bool
	dialer := &websocket.Dialer{
		HandshakeTimeout: time.Second,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &failingWriteConn{Conn: conn, fail: &fail}, nil
		},
	}

	p, err := NewPlayer("Adam", endpoint, WithDialer(dialer), WithNameHeader(testNameHeader))
	require.NoError(t, err)
	require.NoError(t, p.WaitOpen(ctx))
	require.NoError(t, sim.WaitConnected(ctx, "Adam"))

	fail.Store(true)
	require.NoError(t, p.SendText("lost"))

	select {
	case <-p.Done():
	case <-ctx.Done():
		t.Fatal("player did not finish after a failed write")
	}
	assert.Equal(t, StateClosed, p.State())
	require.ErrorIs(t, p.LastError(), ErrTransport)
	assert.Contains(t, p.LastError().Error(), "write refused")
}

func TestSendQueueFull(t *testing.T) {
	o := buildOptions([]Option{WithSendQueueSize(1)})
	p := newPlayer("Adam", "ws://localhost:1", o)
	require.True(t, p.transition(StateOpen))
	defer p.transition(StateClosed)

	require.NoError(t, p.SendText("one"))
	assert.ErrorIs(t, p.SendText("two"), ErrSendQueueFull)
}

func TestSendCopiesPayload(t *testing.T) {
	p := newPlayer("Adam", "ws://localhost:1", buildOptions(nil))
	require.True(t, p.transition(StateOpen))
	defer p.transition(StateClosed)

	data := []byte("abc")
	require.NoError(t, p.Send(MessageText, data))
	data[0] = 'x'

	msg := <-p.outbound
	assert.Equal(t, "abc", string(msg.data))
}

func TestCloseIsIdempotent(t *testing.T) {
	_, endpoint := startSim(t)
	ctx := testContext(t)

	p, err := NewPlayer("Adam", endpoint)
	require.NoError(t, err)
	require.NoError(t, p.WaitOpen(ctx))

	p.Close()
	p.Close()
	require.NoError(t, p.Shutdown(ctx))
	require.NoError(t, p.Shutdown(ctx))
	assert.Equal(t, StateClosed, p.State())
}

func TestParentContextCancelClosesPlayer(t *testing.T) {
	_, endpoint := startSim(t)
	parent, cancel := context.WithCancel(context.Background())

	p, err := NewPlayer("Adam", endpoint, WithContext(parent))
	require.NoError(t, err)
	require.NoError(t, p.WaitOpen(testContext(t)))

	cancel()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("player ignored parent cancellation")
	}
	assert.Equal(t, StateClosed, p.State())
}

func TestStatusSummarizesPlayer(t *testing.T) {
	p := newPlayer("Adam", "ws://localhost:1", buildOptions(nil))
	p.log.append(textPayload("x"))
	p.onError(assert.AnError)

	status := p.Status()
	assert.Equal(t, "Adam", status.Name)
	assert.Equal(t, "Errored", status.State)
	assert.Equal(t, 1, status.Received)
	assert.Contains(t, status.LastError, "transport error")
}
