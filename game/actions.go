package game

import (
	"encoding/json"
	"fmt"
)

type ActionKind = string

const (
	ActionJoin      ActionKind = "join"
	ActionStart     ActionKind = "start"
	ActionSleep     ActionKind = "sleep"
	ActionLynch     ActionKind = "lynch"
	ActionSeer      ActionKind = "seer"
	ActionWerewolf  ActionKind = "werewolf"
	ActionBodyguard ActionKind = "bodyguard"
)

var actionKinds = []ActionKind{
	ActionJoin, ActionStart, ActionSleep, ActionLynch, ActionSeer, ActionWerewolf, ActionBodyguard,
}

func IsAction(name string) bool {
	for _, k := range actionKinds {
		if k == name {
			return true
		}
	}
	return false
}

// Action is the envelope every client message travels in: {"action": ..., "data": {...}}.
type Action struct {
	Action ActionKind      `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func (a Action) String() string {
	return fmt.Sprintf("Action { Action=%s, Data=%s }", a.Action, string(a.Data))
}

// DecodeData unmarshals the action payload into v.
func (a Action) DecodeData(v any) error {
	if len(a.Data) == 0 {
		return fmt.Errorf("action %q has no data", a.Action)
	}
	return json.Unmarshal(a.Data, v)
}

type JoinData struct {
	Name   string  `json:"name"`
	Secret string  `json:"secret"`
	Code   *string `json:"code,omitempty"`
}

// StartData mirrors the server defaults: seer is on unless explicitly disabled, every
// other special role is off.
type StartData struct {
	Code       string `json:"code"`
	Werewolves uint32 `json:"werewolves"`
	Bodyguard  *bool  `json:"bodyguard,omitempty"`
	Seer       *bool  `json:"seer,omitempty"`
	Lycan      *bool  `json:"lycan,omitempty"`
	Tanner     *bool  `json:"tanner,omitempty"`
}

type LobbyData struct {
	Code string `json:"code"`
}

// TargetData is shared by every action that names another player (lynch, seer, werewolf, bodyguard).
type TargetData struct {
	Code   string `json:"code"`
	Player string `json:"player"`
}

// NewAction wraps data into an envelope. data may be nil for actions without payload.
func NewAction(kind ActionKind, data any) (Action, error) {
	a := Action{Action: kind}
	if data == nil {
		return a, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Action{}, fmt.Errorf("marshal %s data: %w", kind, err)
	}
	a.Data = raw
	return a, nil
}

// Encode renders the action as the JSON text frame the server expects.
func (a Action) Encode() ([]byte, error) {
	return json.Marshal(a)
}

func ParseAction(data []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return Action{}, err
	}
	if a.Action == "" {
		return Action{}, fmt.Errorf("missing action field")
	}
	return a, nil
}

func mustAction(kind ActionKind, data any) Action {
	a, err := NewAction(kind, data)
	if err != nil {
		// Only reachable with unmarshalable data, which the typed payloads never are.
		panic(err)
	}
	return a
}

// NewGameAction asks the server to create a lobby with the sender as first member.
func NewGameAction(name, secret string) Action {
	return mustAction(ActionJoin, JoinData{Name: name, Secret: secret})
}

func JoinAction(name, secret, code string) Action {
	return mustAction(ActionJoin, JoinData{Name: name, Secret: secret, Code: &code})
}

func StartAction(data StartData) Action {
	return mustAction(ActionStart, data)
}

func SleepAction(code string) Action {
	return mustAction(ActionSleep, LobbyData{Code: code})
}

func LynchAction(code, player string) Action {
	return mustAction(ActionLynch, TargetData{Code: code, Player: player})
}

func SeerAction(code, player string) Action {
	return mustAction(ActionSeer, TargetData{Code: code, Player: player})
}

func WerewolfAction(code, player string) Action {
	return mustAction(ActionWerewolf, TargetData{Code: code, Player: player})
}

func BodyguardAction(code, player string) Action {
	return mustAction(ActionBodyguard, TargetData{Code: code, Player: player})
}
