package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"
	"werewolf-bdd/game"
	"werewolf-bdd/harness"
)

const defaultConditionTimeout = 8 * time.Second

// CondAllOpen holds once every player finished its handshake.
type CondAllOpen struct {
	Timeout time.Duration
}

func (c CondAllOpen) String() string { return "CondAllOpen{}" }

func (c CondAllOpen) Wait(s *ScenarioContext, to time.Duration) error {
	reg, err := s.Registry()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(s.Context(), conditionTimeout(c.Timeout, to))
	defer cancel()
	return reg.AwaitOpen(ctx)
}

// CondLobbyCreated holds once NewLobbyStep learned the lobby code.
type CondLobbyCreated struct {
	Timeout time.Duration
}

func (c CondLobbyCreated) String() string { return "CondLobbyCreated{}" }

func (c CondLobbyCreated) Wait(s *ScenarioContext, to time.Duration) error {
	return poll(s.Context(), conditionTimeout(c.Timeout, to), func() error {
		if s.LobbyCode() == "" {
			return errors.New("no lobby code yet")
		}
		return nil
	})
}

// CondState holds once each of Players received a state in Phase.
type CondState struct {
	Players []string
	Phase   game.PhaseName
	Timeout time.Duration
}

func (c CondState) String() string {
	return fmt.Sprintf("CondState{%v in %s}", c.Players, c.Phase)
}

func (c CondState) Wait(s *ScenarioContext, to time.Duration) error {
	d := conditionTimeout(c.Timeout, to)
	for _, name := range c.Players {
		if _, err := awaitMessage(s, name, 0, d, isState(c.Phase)); err != nil {
			return err
		}
	}
	return nil
}

// CondConnection holds once Player reaches State.
type CondConnection struct {
	Player  string
	State   harness.ConnectionState
	Timeout time.Duration
}

func (c CondConnection) String() string {
	return fmt.Sprintf("CondConnection{%s is %s}", c.Player, c.State)
}

func (c CondConnection) Wait(s *ScenarioContext, to time.Duration) error {
	return ExpectConnectionStep{Player: c.Player, State: c.State, Timeout: conditionTimeout(c.Timeout, to)}.Run(s)
}

func conditionTimeout(own, fallback time.Duration) time.Duration {
	if own > 0 {
		return own
	}
	if fallback > 0 {
		return fallback
	}
	return defaultConditionTimeout
}
