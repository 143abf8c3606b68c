package game

type PhaseName = string

const (
	PhaseLobby     PhaseName = "Lobby"
	PhaseDay       PhaseName = "Day"
	PhaseSeer      PhaseName = "Seer"
	PhaseBodyguard PhaseName = "Bodyguard"
	PhaseWerewolf  PhaseName = "Werewolf"
	PhaseEnd       PhaseName = "End"
)

var phaseNames = []PhaseName{PhaseLobby, PhaseDay, PhaseSeer, PhaseBodyguard, PhaseWerewolf, PhaseEnd}

// IsPhase reports whether name is one of the phases the server knows about.
func IsPhase(name string) bool {
	for _, p := range phaseNames {
		if p == name {
			return true
		}
	}
	return false
}

type PlayerRole = string

const (
	RoleUnknown   PlayerRole = "Unknown"
	RoleVillager  PlayerRole = "Villager"
	RoleSeer      PlayerRole = "Seer"
	RoleWerewolf  PlayerRole = "Werewolf"
	RoleMod       PlayerRole = "Mod"
	RoleBodyguard PlayerRole = "Bodyguard"
	RoleLycan     PlayerRole = "Lycan"
	RoleTanner    PlayerRole = "Tanner"
)

type PlayerTeam = string

const (
	TeamUnknown PlayerTeam = "Unknown"
	TeamGood    PlayerTeam = "Good"
	TeamEvil    PlayerTeam = "Evil"
	TeamTanner  PlayerTeam = "Tanner"
	TeamMod     PlayerTeam = "Mod"
)

// VisibleToAll is the visible_to marker for attributes every player may see.
const VisibleToAll = "All"

type PlayerAttributes struct {
	Role      PlayerRole `json:"role"`
	Team      PlayerTeam `json:"team"`
	Alive     bool       `json:"alive"`
	VisibleTo []string   `json:"visible_to"`
}

type Player struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Secret     string           `json:"secret,omitempty"`
	Attributes PlayerAttributes `json:"attributes"`
}

type Phase struct {
	Name PhaseName         `json:"name"`
	Data map[string]string `json:"data"`
}
