package game

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownServerMessage = errors.New("unknown server message")

// ServerMessage is anything the game server pushes down a player connection.
type ServerMessage interface {
	Kind() string
}

const (
	ServerMessageKindState = "state"
	ServerMessageKindError = "error"
)

// GameState is the full lobby snapshot broadcast after every accepted action.
type GameState struct {
	LobbyID       string            `json:"lobbyId"`
	Phase         Phase             `json:"phase"`
	Players       []Player          `json:"players"`
	InternalState map[string]string `json:"internal_state,omitempty"`
	TTL           uint32            `json:"ttl,omitempty"`
	Version       uint32            `json:"version"`
}

func (s *GameState) Kind() string { return ServerMessageKindState }

func (s *GameState) String() string {
	return fmt.Sprintf("GameState { LobbyId=%s, Phase=%s, Players=%d, Version=%d }",
		s.LobbyID, s.Phase.Name, len(s.Players), s.Version)
}

// PlayerByName returns the lobby member with the given name, or nil.
func (s *GameState) PlayerByName(name string) *Player {
	for i := range s.Players {
		if s.Players[i].Name == name {
			return &s.Players[i]
		}
	}
	return nil
}

// AlivePlayers returns the names of players still in the game, in lobby order.
func (s *GameState) AlivePlayers() []string {
	var names []string
	for _, p := range s.Players {
		if p.Attributes.Alive {
			names = append(names, p.Name)
		}
	}
	return names
}

// ErrorMessage is what the server sends instead of a state when an action is rejected.
type ErrorMessage struct {
	Message string `json:"message"`
}

func (e *ErrorMessage) Kind() string { return ServerMessageKindError }

func (e *ErrorMessage) String() string {
	return fmt.Sprintf("ErrorMessage { Message=%q }", e.Message)
}

// probe carries just enough to tell the two message shapes apart.
type probe struct {
	LobbyID *string `json:"lobbyId"`
	Message *string `json:"message"`
}

func ParseServerMessage(data []byte) (ServerMessage, error) {
	var raw probe
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch {
	case raw.LobbyID != nil:
		var msg GameState
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	case raw.Message != nil:
		var msg ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	default:
		return nil, ErrUnknownServerMessage
	}
}

// ParseGameState is ParseServerMessage narrowed to states; anything else is an error.
func ParseGameState(data []byte) (*GameState, error) {
	msg, err := ParseServerMessage(data)
	if err != nil {
		return nil, err
	}
	state, ok := msg.(*GameState)
	if !ok {
		return nil, fmt.Errorf("expected game state, got %s message", msg.Kind())
	}
	return state, nil
}
