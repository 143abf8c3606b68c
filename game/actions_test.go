package game

import (
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"werewolf-bdd/util"
)

func TestJoinActionWireFormat(t *testing.T) {
	raw, err := JoinAction("Adam", "s3cret", "ABCD").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"join","data":{"name":"Adam","secret":"s3cret","code":"ABCD"}}`, string(raw))

	raw, err = NewGameAction("Adam", "s3cret").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"join","data":{"name":"Adam","secret":"s3cret"}}`, string(raw))
}

func TestTargetActionsWireFormat(t *testing.T) {
	cases := map[ActionKind]Action{
		ActionLynch:     LynchAction("ABCD", "Bob"),
		ActionSeer:      SeerAction("ABCD", "Bob"),
		ActionWerewolf:  WerewolfAction("ABCD", "Bob"),
		ActionBodyguard: BodyguardAction("ABCD", "Bob"),
	}
	for kind, action := range cases {
		raw, err := action.Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"action":"`+kind+`","data":{"code":"ABCD","player":"Bob"}}`, string(raw))
	}
}

func TestStartActionOmitsUnsetRoles(t *testing.T) {
	raw, err := StartAction(StartData{Code: "ABCD", Werewolves: 1, Seer: util.Ptr(false)}).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"start","data":{"code":"ABCD","werewolves":1,"seer":false}}`, string(raw))
}

func TestNewActionWithoutData(t *testing.T) {
	a, err := NewAction("ping", nil)
	require.NoError(t, err)
	raw, err := a.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"ping"}`, string(raw))
}

func TestNewActionRejectsUnmarshalableData(t *testing.T) {
	_, err := NewAction(ActionJoin, map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestParseActionRoundTrip(t *testing.T) {
	a, err := ParseAction([]byte(`{"action":"sleep","data":{"code":"WXYZ"}}`))
	require.NoError(t, err)
	assert.Equal(t, ActionSleep, a.Action)

	var data LobbyData
	require.NoError(t, a.DecodeData(&data))
	assert.Equal(t, "WXYZ", data.Code)

	_, err = ParseAction([]byte(`{"data":{}}`))
	assert.EqualError(t, err, "missing action field")

	var empty Action
	assert.Error(t, empty.DecodeData(&json.RawMessage{}))
}
