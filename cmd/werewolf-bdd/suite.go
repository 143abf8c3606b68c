package main

import (
	"time"
	"werewolf-bdd/game"
	"werewolf-bdd/scenario"
)

// suite is the built-in feature set, one scenario per behaviour of the game server.
func suite() []scenario.Scenario {
	return []scenario.Scenario{
		{
			Name: "connect",
			Steps: []scenario.ScenarioStep{
				scenario.ConnectStep{Count: 4},
				scenario.AwaitOpenStep{},
				scenario.ExpectNoMessagesStep{Player: "Adam", For: 500 * time.Millisecond},
				scenario.EndStep{},
			},
		},
		{
			Name: "lobby",
			Steps: []scenario.ScenarioStep{
				scenario.ConnectStep{Count: 3},
				scenario.AwaitOpenStep{},
				scenario.UseGameStateStep{Phase: game.PhaseLobby},
				scenario.NewLobbyStep{Host: "Adam"},
				scenario.JoinLobbyStep{Players: []string{"Bob", "Charles"}},
				scenario.ExpectStateStep{Player: "Adam"},
				scenario.ExpectStateStep{Player: "Charles"},
				scenario.EndStep{},
			},
		},
		{
			Name: "start-game",
			Steps: []scenario.ScenarioStep{
				scenario.ConnectStep{Count: 5},
				scenario.AwaitOpenStep{},
				scenario.NewLobbyStep{Host: "Adam"},
				scenario.JoinLobbyStep{Players: []string{"Bob", "Charles", "Debbie", "Emma"}},
				scenario.StartGameStep{Mod: "Adam", Data: game.StartData{Werewolves: 1}},
				scenario.ParallelStep{
					Until: []scenario.Condition{
						scenario.CondState{
							Players: []string{"Adam", "Bob", "Charles", "Debbie", "Emma"},
							Phase:   game.PhaseDay,
						},
					},
				},
				scenario.SleepStep{Mod: "Adam"},
				scenario.ExpectStateStep{Player: "Emma", Phase: game.PhaseSeer},
				scenario.EndStep{},
			},
		},
		{
			Name: "join-in-progress",
			Steps: []scenario.ScenarioStep{
				scenario.ConnectStep{Count: 4},
				scenario.AwaitOpenStep{},
				scenario.NewLobbyStep{Host: "Adam"},
				scenario.JoinLobbyStep{Players: []string{"Bob", "Charles"}},
				scenario.StartGameStep{Mod: "Adam", Data: game.StartData{Werewolves: 1}},
				scenario.ExpectStateStep{Player: "Bob", Phase: game.PhaseDay},
				scenario.SendStep{
					Player: "Debbie",
					Action: game.ActionJoin,
					Data:   map[string]any{"name": "Debbie", "secret": "late", "code": scenario.LobbyCodePlaceholder},
				},
				scenario.ExpectErrorStep{Player: "Debbie", Message: "Error cannot join an in-progress game"},
				scenario.EndStep{},
			},
		},
		{
			Name: "too-many-roles",
			Steps: []scenario.ScenarioStep{
				scenario.ConnectStep{Count: 2},
				scenario.AwaitOpenStep{},
				scenario.NewLobbyStep{Host: "Adam"},
				scenario.JoinLobbyStep{Players: []string{"Bob"}},
				scenario.StartGameStep{Mod: "Adam", Data: game.StartData{Werewolves: 1}},
				scenario.ExpectErrorStep{Player: "Adam", Message: "More roles than players!"},
				scenario.EndStep{},
			},
		},
		{
			Name: "unknown-action",
			Steps: []scenario.ScenarioStep{
				scenario.ConnectStep{Count: 1},
				scenario.AwaitOpenStep{},
				scenario.SendStep{Player: "Adam", Action: "dance", Data: map[string]any{}},
				scenario.ExpectErrorStep{Player: "Adam", Message: `Unknown action "dance"!`},
				scenario.EndStep{},
			},
		},
	}
}
