package gamesim

import (
	"encoding/json"
	"fmt"
	"go.uber.org/zap"
	"strings"
	"werewolf-bdd/game"
	"werewolf-bdd/util"
)

const lobbyCodeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// outgoing is a frame computed under the server lock and written after releasing it.
type outgoing struct {
	to      *client
	payload string
}

func (s *Server) dispatch(c *client, data []byte) {
	action, err := game.ParseAction(data)
	if err != nil {
		s.flush(s.errorTo(c, fmt.Sprintf("Invalid message: %v", err)))
		return
	}

	var out []outgoing
	switch action.Action {
	case game.ActionJoin:
		out = s.handleJoin(c, action)
	case game.ActionStart:
		out = s.handleStart(c, action)
	case game.ActionSleep:
		out = s.handleSleep(c, action)
	case game.ActionLynch, game.ActionSeer, game.ActionWerewolf, game.ActionBodyguard:
		out = s.errorTo(c, fmt.Sprintf("Action \"%s\" is not supported by the simulator", action.Action))
	default:
		out = s.errorTo(c, fmt.Sprintf("Unknown action \"%s\"!", action.Action))
	}
	s.flush(out)
}

func (s *Server) flush(out []outgoing) {
	for _, o := range out {
		if err := o.to.send(o.payload); err != nil {
			s.logger.Warn("Could not deliver message",
				zap.String("connectionId", o.to.id),
				zap.Error(err),
			)
		}
	}
}

func (s *Server) errorTo(c *client, message string) []outgoing {
	raw, _ := json.Marshal(game.ErrorMessage{Message: message})
	s.logger.Debug("Rejecting client action", zap.String("connectionId", c.id), zap.String("message", message))
	return []outgoing{{to: c, payload: string(raw)}}
}

func (s *Server) handleJoin(c *client, action game.Action) []outgoing {
	var data game.JoinData
	if err := action.DecodeData(&data); err != nil {
		return s.errorTo(c, fmt.Sprintf("Invalid join data: %v", err))
	}
	if data.Name == "" {
		return s.errorTo(c, "Empty first name")
	}
	if data.Secret == "" {
		return s.errorTo(c, "Empty secret")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.adoptNameLocked(c, data.Name)

	if data.Code == nil {
		state := &game.GameState{
			LobbyID: s.newLobbyCodeLocked(),
			Phase:   game.Phase{Name: game.PhaseLobby, Data: map[string]string{}},
			Players: []game.Player{newLobbyPlayer(c.id, data.Name, data.Secret)},
			Version: 1,
		}
		s.lobbies[state.LobbyID] = state
		s.logger.Info("Lobby created", zap.String("lobbyId", state.LobbyID), zap.String("host", data.Name))
		return s.stateToMembersLocked(state)
	}

	state, ok := s.lobbies[*data.Code]
	if !ok {
		return s.errorTo(c, "Unable to find lobby")
	}

	if existing := state.PlayerByName(data.Name); existing != nil {
		if existing.Secret != data.Secret {
			s.logger.Warn("Non-matching secret on rejoin", zap.String("lobbyId", state.LobbyID), zap.String("name", data.Name))
			return nil
		}
		rejoined := *existing
		rejoined.ID = c.id
		players := make([]game.Player, 0, len(state.Players))
		for _, p := range state.Players {
			if p.Name != data.Name {
				players = append(players, p)
			}
		}
		state.Players = append(players, rejoined)
	} else if state.Phase.Name == game.PhaseLobby {
		state.Players = append(state.Players, newLobbyPlayer(c.id, data.Name, data.Secret))
	} else {
		return s.errorTo(c, "Error cannot join an in-progress game")
	}

	state.Version++
	return s.stateToMembersLocked(state)
}

func (s *Server) handleStart(c *client, action game.Action) []outgoing {
	var data game.StartData
	if err := action.DecodeData(&data); err != nil {
		return s.errorTo(c, fmt.Sprintf("Invalid start data: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.lobbies[data.Code]
	if !ok {
		return s.errorTo(c, "Unable to find lobby")
	}
	if memberByID(state, c.id) == nil {
		return s.errorTo(c, fmt.Sprintf("Could not find player with connection ID: %s", c.id))
	}
	if state.Phase.Name != game.PhaseLobby {
		return s.errorTo(c, "Not a valid transition!")
	}

	roles, err := rolesFor(data, len(state.Players))
	if err != nil {
		s.logger.Warn("Cannot start lobby", zap.String("lobbyId", state.LobbyID), zap.Error(err))
		return s.errorTo(c, "More roles than players!")
	}

	for i := range state.Players {
		if state.Players[i].ID == c.id {
			state.Players[i].Attributes = game.PlayerAttributes{
				Role:      game.RoleMod,
				Team:      game.TeamUnknown,
				Alive:     true,
				VisibleTo: []string{game.VisibleToAll},
			}
			continue
		}
		pick := s.intN(len(roles))
		state.Players[i].Attributes = roles[pick]
		roles = append(roles[:pick], roles[pick+1:]...)
	}

	state.Phase = game.Phase{Name: game.PhaseDay, Data: map[string]string{}}
	state.Version++
	s.logger.Info("Lobby started", zap.String("lobbyId", state.LobbyID), zap.Int("players", len(state.Players)))
	return s.stateToMembersLocked(state)
}

func (s *Server) handleSleep(c *client, action game.Action) []outgoing {
	var data game.LobbyData
	if err := action.DecodeData(&data); err != nil {
		return s.errorTo(c, fmt.Sprintf("Invalid sleep data: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.lobbies[data.Code]
	if !ok {
		return s.errorTo(c, "Unable to find lobby")
	}
	sender := memberByID(state, c.id)
	switch {
	case sender == nil:
		return s.errorTo(c, fmt.Sprintf("Could not find player with connection ID: %s", c.id))
	case state.Phase.Name != game.PhaseDay:
		return s.errorTo(c, "Not a valid transition!")
	case sender.Attributes.Role != game.RoleMod:
		return s.errorTo(c, "You are not the moderator!")
	}

	next := game.PhaseWerewolf
	if livingWithRole(state, game.RoleSeer) > 0 {
		next = game.PhaseSeer
	} else if livingWithRole(state, game.RoleBodyguard) > 0 {
		next = game.PhaseBodyguard
	}
	state.Phase = game.Phase{Name: next, Data: map[string]string{}}
	state.Version++
	return s.stateToMembersLocked(state)
}

// rolesFor builds the shuffled-in role pool for everyone except the moderator.
func rolesFor(data game.StartData, players int) ([]game.PlayerAttributes, error) {
	seer := util.PtrValueOrDef(data.Seer, true)
	bodyguard := util.PtrValueOrDef(data.Bodyguard, false)
	lycan := util.PtrValueOrDef(data.Lycan, false)
	tanner := util.PtrValueOrDef(data.Tanner, false)

	// The moderator takes one seat.
	count := int(data.Werewolves) + 1
	for _, on := range []bool{seer, bodyguard, lycan, tanner} {
		if on {
			count++
		}
	}
	if count > players {
		return nil, fmt.Errorf("roles: %d, players: %d", count, players)
	}

	modOnly := []string{game.RoleMod}
	roles := make([]game.PlayerAttributes, 0, players-1)
	special := func(role game.PlayerRole) {
		roles = append(roles, game.PlayerAttributes{Role: role, Team: game.TeamGood, Alive: true, VisibleTo: modOnly})
	}
	if seer {
		special(game.RoleSeer)
	}
	if bodyguard {
		special(game.RoleBodyguard)
	}
	if lycan {
		special(game.RoleLycan)
	}
	if tanner {
		special(game.RoleTanner)
	}
	for i := uint32(0); i < data.Werewolves; i++ {
		roles = append(roles, game.PlayerAttributes{
			Role:      game.RoleWerewolf,
			Team:      game.TeamEvil,
			Alive:     true,
			VisibleTo: []string{game.RoleMod, game.RoleWerewolf},
		})
	}
	for i := count; i < players; i++ {
		roles = append(roles, game.PlayerAttributes{Role: game.RoleVillager, Team: game.TeamGood, Alive: true, VisibleTo: modOnly})
	}
	return roles, nil
}

func newLobbyPlayer(id, name, secret string) game.Player {
	return game.Player{
		ID:     id,
		Name:   name,
		Secret: secret,
		Attributes: game.PlayerAttributes{
			Role:      game.RoleUnknown,
			Team:      game.TeamUnknown,
			Alive:     true,
			VisibleTo: []string{game.VisibleToAll},
		},
	}
}

func memberByID(state *game.GameState, id string) *game.Player {
	for i := range state.Players {
		if state.Players[i].ID == id {
			return &state.Players[i]
		}
	}
	return nil
}

func livingWithRole(state *game.GameState, role game.PlayerRole) int {
	n := 0
	for _, p := range state.Players {
		if p.Attributes.Alive && p.Attributes.Role == role {
			n++
		}
	}
	return n
}

func (s *Server) newLobbyCodeLocked() string {
	for {
		var sb strings.Builder
		for i := 0; i < 4; i++ {
			sb.WriteByte(lobbyCodeLetters[s.intN(len(lobbyCodeLetters))])
		}
		if _, taken := s.lobbies[sb.String()]; !taken {
			return sb.String()
		}
	}
}

// adoptNameLocked names an anonymous connection after the player it joins as.
func (s *Server) adoptNameLocked(c *client, name string) {
	if c.name != "" {
		return
	}
	c.name = name
	s.names[name] = c.id
	if msgs, ok := s.received[c.id]; ok {
		s.received[name] = append(msgs, s.received[name]...)
		delete(s.received, c.id)
	}
}

// stateToMembersLocked renders the lobby once and addresses it to every member still
// connected. Secrets never leave the server.
func (s *Server) stateToMembersLocked(state *game.GameState) []outgoing {
	public := cloneState(state)
	for i := range public.Players {
		public.Players[i].Secret = ""
	}
	raw, err := json.Marshal(public)
	if err != nil {
		s.logger.Error("Could not encode game state", zap.Error(err))
		return nil
	}

	var out []outgoing
	for _, p := range state.Players {
		if c, ok := s.clients[p.ID]; ok {
			out = append(out, outgoing{to: c, payload: string(raw)})
		}
	}
	return out
}

func cloneState(state *game.GameState) game.GameState {
	clone := *state
	clone.Players = make([]game.Player, len(state.Players))
	for i, p := range state.Players {
		p.Attributes.VisibleTo = append([]string(nil), p.Attributes.VisibleTo...)
		clone.Players[i] = p
	}
	clone.Phase.Data = make(map[string]string, len(state.Phase.Data))
	for k, v := range state.Phase.Data {
		clone.Phase.Data[k] = v
	}
	if state.InternalState != nil {
		clone.InternalState = make(map[string]string, len(state.InternalState))
		for k, v := range state.InternalState {
			clone.InternalState[k] = v
		}
	}
	return clone
}
