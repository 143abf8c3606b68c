package harness

import "errors"

var (
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrNotConnected    = errors.New("player not connected")
	ErrDuplicateName   = errors.New("duplicate player name")
	ErrUnknownPlayer   = errors.New("unknown player")
	ErrTransport       = errors.New("transport error")
	ErrInvalidName     = errors.New("invalid player name")
	ErrNoPlayers       = errors.New("no players requested")
	ErrSendQueueFull   = errors.New("send queue full")
)
