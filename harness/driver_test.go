package harness

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestDriverFunctions(t *testing.T) {
	sim, endpoint := startSim(t)
	ctx := testContext(t)

	r, err := Connect([]string{"Adam", "Bob"}, endpoint, WithNameHeader(testNameHeader))
	require.NoError(t, err)
	require.NoError(t, r.AwaitOpen(ctx))

	require.NoError(t, Send(r, "Bob", "ping"))
	require.NoError(t, sim.WaitReceived(ctx, "Bob", 1))
	assert.ErrorIs(t, Send(r, "Nobody", "ping"), ErrUnknownPlayer)

	require.NoError(t, sim.Push("Bob", "pong"))
	bobLog, _ := r.LogFor("Bob")
	_, err = bobLog.WaitFor(ctx, func(p Payload) bool { return p.Text() == "pong" })
	require.NoError(t, err)

	msgs, err := Log(r, "Bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "pong", msgs[0].Text())

	_, err = Log(r, "Nobody")
	assert.ErrorIs(t, err, ErrUnknownPlayer)

	require.NoError(t, Close(ctx, r))
	assert.NoError(t, Close(ctx, r))
}

func TestConnectRejectsInvalidEndpoint(t *testing.T) {
	r, err := Connect([]string{"Adam"}, "ftp://bad")
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
	assert.Nil(t, r)
}
