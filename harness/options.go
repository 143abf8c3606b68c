package harness

import (
	"context"
	"github.com/gorilla/websocket"
	"net/http"
	"time"
	"werewolf-bdd/applog"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultCloseGrace       = 2 * time.Second
	defaultWriteWait        = 5 * time.Second
	defaultSendQueueSize    = 256
)

type options struct {
	ctx              context.Context
	header           http.Header
	nameHeader       string
	dialer           *websocket.Dialer
	handshakeTimeout time.Duration
	closeGrace       time.Duration
	writeWait        time.Duration
	sendQueueSize    int
	logger           *applog.Logger
}

type Option func(*options)

func defaultOptions() options {
	return options{
		ctx:              context.Background(),
		handshakeTimeout: defaultHandshakeTimeout,
		closeGrace:       defaultCloseGrace,
		writeWait:        defaultWriteWait,
		sendQueueSize:    defaultSendQueueSize,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithContext binds player lifetimes to ctx: cancelling it closes every connection.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithHeader adds headers to the opening handshake of every connection.
func WithHeader(h http.Header) Option {
	return func(o *options) {
		if o.header == nil {
			o.header = http.Header{}
		}
		for k, vs := range h {
			for _, v := range vs {
				o.header.Add(k, v)
			}
		}
	}
}

// WithNameHeader sends the player name under key during the handshake.
func WithNameHeader(key string) Option {
	return func(o *options) {
		o.nameHeader = key
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.handshakeTimeout = d
		}
	}
}

// WithCloseGrace bounds how long Close waits for the server's close reply before
// dropping the socket.
func WithCloseGrace(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.closeGrace = d
		}
	}
}

func WithSendQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sendQueueSize = n
		}
	}
}

func WithLogger(l *applog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
