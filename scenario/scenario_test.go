package scenario

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"werewolf-bdd/config"
	"werewolf-bdd/game"
	"werewolf-bdd/gamesim"
	"werewolf-bdd/harness"
)

const nameHeader = "X-Player-Name"

func newTestContext(t *testing.T) (*ScenarioContext, *gamesim.Server) {
	t.Helper()
	sim := gamesim.NewServer(gamesim.WithNameHeader(nameHeader))
	srv := httptest.NewServer(sim)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		SocketURL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		OpenTimeout:  5 * time.Second,
		StepTimeout:  3 * time.Second,
		CloseTimeout: 5 * time.Second,
		NameHeader:   nameHeader,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return NewScenarioContext(ctx, cfg, harness.WithCloseGrace(500*time.Millisecond)), sim
}

func TestConnectStepRoster(t *testing.T) {
	names, err := ConnectStep{Count: 3}.roster(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Adam", "Bob", "Charles"}, names)

	names, err = ConnectStep{}.roster(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRoster, names)

	names, err = ConnectStep{Count: 2}.roster([]string{"Xena", "Yuri", "Zoe"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Xena", "Yuri"}, names)

	names, err = ConnectStep{Count: 1, Names: []string{"Solo", "Duo"}}.roster(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Solo", "Duo"}, names)

	_, err = ConnectStep{Count: 9}.roster(nil)
	assert.Error(t, err)
}

func TestLobbyLifecycleScenario(t *testing.T) {
	s, sim := newTestContext(t)

	err := RunScenario(s, Scenario{
		Name: "lobby-lifecycle",
		Steps: []ScenarioStep{
			ConnectStep{Count: 4},
			AwaitOpenStep{},
			UseGameStateStep{Phase: game.PhaseLobby},
			NewLobbyStep{Host: "Adam"},
			JoinLobbyStep{Players: []string{"Bob", "Charles", "Debbie"}},
			ExpectStateStep{Player: "Bob"},
			StartGameStep{Mod: "Adam", Data: game.StartData{Werewolves: 1}},
			ExpectStateStep{Player: "Debbie", Phase: game.PhaseDay},
			SleepStep{Mod: "Adam"},
			ExpectStateStep{Player: "Charles", Phase: game.PhaseSeer},
			EndStep{},
		},
	})
	require.NoError(t, err)

	code := s.LobbyCode()
	require.NotEmpty(t, code)
	state, ok := sim.Lobby(code)
	require.True(t, ok)
	assert.Equal(t, game.PhaseSeer, state.Phase.Name)
	assert.Len(t, state.Players, 4)

	results := s.Results()
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)
	require.Len(t, results[0].Players, 4)
	for _, p := range results[0].Players {
		assert.Equal(t, "Closed", p.State)
		assert.Greater(t, p.Received, 0)
	}
}

func TestPushReachesOnlyAddressedPlayer(t *testing.T) {
	s, sim := newTestContext(t)

	err := RunScenario(s, Scenario{
		Name: "push",
		Steps: []ScenarioStep{
			ConnectStep{Names: []string{"Adam", "Bob"}},
			AwaitOpenStep{},
			HookStep{Name: "server pushes lobby state to Adam", Fn: func(s *ScenarioContext) error {
				if err := sim.WaitConnected(s.Context(), "Adam", "Bob"); err != nil {
					return err
				}
				return sim.Push("Adam", "state:lobby")
			}},
			ExpectLogStep{Player: "Adam", Messages: []string{"state:lobby"}},
			ExpectNoMessagesStep{Player: "Bob", For: 100 * time.Millisecond},
			ExpectLogStep{Player: "Bob", Messages: []string{}},
			EndStep{},
		},
	})
	require.NoError(t, err)
}

func TestFailingStepStopsScenario(t *testing.T) {
	s, _ := newTestContext(t)
	reached := false

	err := RunScenario(s, Scenario{
		Name: "never-day",
		Steps: []ScenarioStep{
			ConnectStep{Count: 2},
			AwaitOpenStep{},
			ExpectStateStep{Player: "Adam", Phase: game.PhaseDay, Timeout: 100 * time.Millisecond},
			HookStep{Name: "unreachable", Fn: func(*ScenarioContext) error {
				reached = true
				return nil
			}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never-day")
	assert.Contains(t, err.Error(), "ExpectStateStep")
	assert.False(t, reached)

	results := s.Results()
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.NotEmpty(t, results[0].Error)
	for _, p := range results[0].Players {
		assert.Equal(t, "Closed", p.State, "players are torn down even on failure")
	}
}

func TestServerErrorsAreObservable(t *testing.T) {
	s, _ := newTestContext(t)

	err := RunScenario(s, Scenario{
		Name: "errors",
		Steps: []ScenarioStep{
			ConnectStep{Count: 1},
			AwaitOpenStep{},
			SendStep{Player: "Adam", Action: "dance", Data: map[string]any{}},
			ExpectErrorStep{Player: "Adam", Message: `Unknown action "dance"!`},
			SendStep{Player: "Adam", Action: game.ActionStart, Data: map[string]any{"code": LobbyCodePlaceholder}},
			ExpectErrorStep{Player: "Adam", Message: "Unable to find lobby"},
			SendRawStep{Player: "Adam", Payload: "garbage"},
			ExpectMessageStep{Player: "Adam", Contains: "Invalid message"},
		},
	})
	require.NoError(t, err)
}

func TestExpectationsConsumeMatchedMessages(t *testing.T) {
	s, _ := newTestContext(t)

	err := RunScenario(s, Scenario{
		Name: "stale-reply",
		Steps: []ScenarioStep{
			ConnectStep{Count: 1},
			AwaitOpenStep{},
			SendStep{Player: "Adam", Action: "dance", Data: map[string]any{}},
			ExpectErrorStep{Player: "Adam", Message: `Unknown action "dance"!`},
			SendRawStep{Player: "Adam", Payload: "garbage"},
			// The server answers "Invalid message"; the earlier reply must not count again.
			ExpectErrorStep{Player: "Adam", Message: `Unknown action "dance"!`, Timeout: 300 * time.Millisecond},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale-reply")
	assert.Contains(t, err.Error(), `error "Unknown action \"dance\"!" not received`)
}

func TestRepeatedMessagesMatchOncePerExpectation(t *testing.T) {
	s, sim := newTestContext(t)

	pings := func(name string, expectations int) []ScenarioStep {
		steps := []ScenarioStep{
			ConnectStep{Names: []string{name}},
			AwaitOpenStep{},
			HookStep{Name: "push two pings", Fn: func(s *ScenarioContext) error {
				if err := sim.WaitConnected(s.Context(), name); err != nil {
					return err
				}
				if err := sim.Push(name, "ping"); err != nil {
					return err
				}
				return sim.Push(name, "ping")
			}},
		}
		for i := 0; i < expectations; i++ {
			steps = append(steps, ExpectMessageStep{Player: name, Contains: "ping", Timeout: time.Second})
		}
		return steps
	}

	require.NoError(t, RunScenario(s, Scenario{Name: "two-pings", Steps: pings("Adam", 2)}))

	err := RunScenario(s, Scenario{Name: "three-pings", Steps: pings("Bob", 3)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "three-pings")
	assert.Contains(t, err.Error(), "ExpectMessageStep")
}

func TestConnectionExpectations(t *testing.T) {
	s, sim := newTestContext(t)

	err := RunScenario(s, Scenario{
		Name: "disconnect",
		Steps: []ScenarioStep{
			ConnectStep{Count: 2},
			ParallelStep{
				Until: []Condition{
					CondAllOpen{},
					CondConnection{Player: "Bob", State: harness.StateOpen},
				},
			},
			HookStep{Name: "server drops Bob", Fn: func(s *ScenarioContext) error {
				if err := sim.WaitConnected(s.Context(), "Bob"); err != nil {
					return err
				}
				return sim.Disconnect("Bob")
			}},
			ExpectConnectionStep{Player: "Bob", State: harness.StateClosed},
			ExpectConnectionStep{Player: "Adam", State: harness.StateOpen},
		},
	})
	require.NoError(t, err)
}

func TestParallelJoins(t *testing.T) {
	s, _ := newTestContext(t)

	err := RunScenario(s, Scenario{
		Name: "parallel",
		Steps: []ScenarioStep{
			ConnectStep{Count: 3},
			AwaitOpenStep{},
			NewLobbyStep{Host: "Adam"},
			ParallelStep{
				Steps: []ScenarioStep{
					JoinLobbyStep{Players: []string{"Bob"}},
					JoinLobbyStep{Players: []string{"Charles"}},
				},
				Until: []Condition{
					CondLobbyCreated{},
					CondState{Players: []string{"Bob", "Charles"}, Phase: game.PhaseLobby},
				},
			},
		},
	})
	require.NoError(t, err)
}

func TestStepsNeedPlayers(t *testing.T) {
	s, _ := newTestContext(t)

	err := RunScenario(s, Scenario{
		Name:  "empty",
		Steps: []ScenarioStep{AwaitOpenStep{}},
	})
	assert.ErrorIs(t, err, ErrNotConnected)

	err = RunScenario(s, Scenario{
		Name:  "bad-phase",
		Steps: []ScenarioStep{UseGameStateStep{Phase: "Brunch"}},
	})
	assert.Error(t, err)

	err = RunScenario(s, Scenario{
		Name:  "join-without-lobby",
		Steps: []ScenarioStep{ConnectStep{Count: 1}, JoinLobbyStep{Players: []string{"Adam"}}},
	})
	assert.Error(t, err)
}

func TestRunScenariosStopsAtFirstFailure(t *testing.T) {
	s, _ := newTestContext(t)
	ran := 0
	count := HookStep{Name: "count", Fn: func(*ScenarioContext) error {
		ran++
		return nil
	}}

	err := RunScenarios(s, []Scenario{
		{Name: "first", Steps: []ScenarioStep{count}},
		{Name: "second", Steps: []ScenarioStep{UseGameStateStep{Phase: "Nope"}}},
		{Name: "third", Steps: []ScenarioStep{count}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")
	assert.Equal(t, 1, strings.Count(err.Error(), "scenario (second)"), err.Error())
	assert.Equal(t, 1, ran)
	assert.Len(t, s.Results(), 2)
}

func TestScenarioContextResetsBetweenScenarios(t *testing.T) {
	s, _ := newTestContext(t)

	require.NoError(t, RunScenario(s, Scenario{
		Name: "one",
		Steps: []ScenarioStep{
			ConnectStep{Count: 1},
			AwaitOpenStep{},
			NewLobbyStep{Host: "Adam"},
		},
	}))
	require.NotEmpty(t, s.LobbyCode())

	require.NoError(t, RunScenario(s, Scenario{
		Name:  "two",
		Steps: []ScenarioStep{ConnectStep{Count: 1}, AwaitOpenStep{}},
	}))
	assert.Empty(t, s.LobbyCode())
	assert.Empty(t, s.FixturePhase())
}
