package scenario

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"strings"
	"sync"
	"time"
	"werewolf-bdd/game"
	"werewolf-bdd/harness"
)

// DefaultRoster is the name pool players are drawn from when the scenario and the
// configuration name nobody.
var DefaultRoster = []string{"Adam", "Bob", "Charles", "Debbie", "Emma", "Fred", "George", "Harry"}

// LobbyCodePlaceholder in SendStep data is replaced by the code of the scenario's lobby.
const LobbyCodePlaceholder = "$code"

// ConnectStep is "we connect N players": the first Count names of the roster, or exactly
// Names when given.
type ConnectStep struct {
	Count int
	Names []string
}

type AwaitOpenStep struct {
	Timeout time.Duration
}

// UseGameStateStep is "use game state X": it pins the phase later expectations default to.
type UseGameStateStep struct {
	Phase game.PhaseName
}

// NewLobbyStep makes Host create a lobby and remembers its code.
type NewLobbyStep struct {
	Host string
}

// JoinLobbyStep joins every player to the scenario's lobby, waiting for each to be seated.
type JoinLobbyStep struct {
	Players []string
}

type StartGameStep struct {
	Mod  string
	Data game.StartData
}

type SleepStep struct {
	Mod string
}

// SendStep is "we send X message from Y".
type SendStep struct {
	Player string
	Action game.ActionKind
	Data   map[string]any
}

type SendRawStep struct {
	Player  string
	Payload string
}

// ExpectStateStep is "Y receives state Z". An empty Phase falls back to the phase pinned
// by UseGameStateStep, and to any state when nothing was pinned.
type ExpectStateStep struct {
	Player  string
	Phase   game.PhaseName
	Timeout time.Duration
}

// ExpectMessageStep waits for a text message containing Contains. Like ExpectStateStep and
// ExpectErrorStep it consumes what it matches: the next expectation for the same player
// only looks at later messages.
type ExpectMessageStep struct {
	Player   string
	Contains string
	Timeout  time.Duration
}

// ExpectLogStep asserts the complete inbound log of Player, in order.
type ExpectLogStep struct {
	Player   string
	Messages []string
	Timeout  time.Duration
}

// ExpectNoMessagesStep asserts Player receives nothing new for For.
type ExpectNoMessagesStep struct {
	Player string
	For    time.Duration
}

// ExpectErrorStep waits for an error message from the server. An empty Message accepts
// any error.
type ExpectErrorStep struct {
	Player  string
	Message string
	Timeout time.Duration
}

type ExpectConnectionStep struct {
	Player  string
	State   harness.ConnectionState
	Timeout time.Duration
}

type WaitStep struct {
	Delay time.Duration
}

// HookStep runs arbitrary code, e.g. to poke a simulator between steps.
type HookStep struct {
	Name string
	Fn   func(s *ScenarioContext) error
}

type ParallelStep struct {
	Steps []ScenarioStep
	Until []Condition
}

type EndStep struct{}

func (st ConnectStep) String() string {
	if len(st.Names) > 0 {
		return fmt.Sprintf("ConnectStep{names=%s}", strings.Join(st.Names, ","))
	}
	return fmt.Sprintf("ConnectStep{count=%d}", st.Count)
}

func (st ConnectStep) Run(s *ScenarioContext) error {
	names, err := st.roster(s.cfg.Players)
	if err != nil {
		return err
	}
	return s.connect(names)
}

func (st ConnectStep) roster(configured []string) ([]string, error) {
	if len(st.Names) > 0 {
		return st.Names, nil
	}
	pool := DefaultRoster
	if len(configured) > 0 {
		pool = configured
	}
	if st.Count <= 0 {
		return pool, nil
	}
	if st.Count > len(pool) {
		return nil, fmt.Errorf("%d players requested but the roster has only %d", st.Count, len(pool))
	}
	return pool[:st.Count], nil
}

func (st AwaitOpenStep) String() string { return "AwaitOpenStep{}" }
func (st AwaitOpenStep) Run(s *ScenarioContext) error {
	reg, err := s.Registry()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(s.Context(), orDefault(st.Timeout, s.cfg.OpenTimeout))
	defer cancel()
	return reg.AwaitOpen(ctx)
}

func (st UseGameStateStep) String() string { return fmt.Sprintf("UseGameStateStep{%s}", st.Phase) }
func (st UseGameStateStep) Run(s *ScenarioContext) error {
	if !game.IsPhase(st.Phase) {
		return fmt.Errorf("unknown game state %q", st.Phase)
	}
	s.mu.Lock()
	s.fixturePhase = st.Phase
	s.mu.Unlock()
	return nil
}

func (st NewLobbyStep) String() string { return fmt.Sprintf("NewLobbyStep{host=%s}", st.Host) }
func (st NewLobbyStep) Run(s *ScenarioContext) error {
	p, err := s.player(st.Host)
	if err != nil {
		return err
	}
	from := p.Log().Len()
	if err = sendAction(p, game.NewGameAction(st.Host, s.secretFor(st.Host))); err != nil {
		return err
	}

	msg, err := awaitMessage(s, st.Host, from, s.cfg.StepTimeout, isState(game.PhaseLobby))
	if err != nil {
		return fmt.Errorf("lobby not created: %w", err)
	}
	state, err := game.ParseGameState(msg.Data)
	if err != nil {
		return err
	}
	s.setLobbyCode(state.LobbyID)
	return nil
}

func (st JoinLobbyStep) String() string {
	return fmt.Sprintf("JoinLobbyStep{%s}", strings.Join(st.Players, ","))
}

func (st JoinLobbyStep) Run(s *ScenarioContext) error {
	code := s.LobbyCode()
	if code == "" {
		return fmt.Errorf("no lobby created yet")
	}
	for _, name := range st.Players {
		p, err := s.player(name)
		if err != nil {
			return err
		}
		from := p.Log().Len()
		if err = sendAction(p, game.JoinAction(name, s.secretFor(name), code)); err != nil {
			return err
		}
		_, err = awaitMessage(s, name, from, s.cfg.StepTimeout, func(msg harness.Payload) bool {
			state, err := game.ParseGameState(msg.Data)
			return err == nil && state.LobbyID == code && state.PlayerByName(name) != nil
		})
		if err != nil {
			return fmt.Errorf("%s not seated in %s: %w", name, code, err)
		}
	}
	return nil
}

func (st StartGameStep) String() string {
	return fmt.Sprintf("StartGameStep{mod=%s, werewolves=%d}", st.Mod, st.Data.Werewolves)
}

func (st StartGameStep) Run(s *ScenarioContext) error {
	p, err := s.player(st.Mod)
	if err != nil {
		return err
	}
	data := st.Data
	if data.Code == "" {
		data.Code = s.LobbyCode()
	}
	return sendAction(p, game.StartAction(data))
}

func (st SleepStep) String() string { return fmt.Sprintf("SleepStep{mod=%s}", st.Mod) }
func (st SleepStep) Run(s *ScenarioContext) error {
	p, err := s.player(st.Mod)
	if err != nil {
		return err
	}
	return sendAction(p, game.SleepAction(s.LobbyCode()))
}

func (st SendStep) String() string {
	return fmt.Sprintf("SendStep{%s from %s}", st.Action, st.Player)
}

func (st SendStep) Run(s *ScenarioContext) error {
	if !game.IsAction(st.Action) {
		// Sent anyway: the server's rejection is usually what the scenario checks.
		s.logger().Debug("Sending non-standard action", zap.String("action", st.Action))
	}

	p, err := s.player(st.Player)
	if err != nil {
		return err
	}

	var data any
	if st.Data != nil {
		data = substituteCode(st.Data, s.LobbyCode())
	}
	action, err := game.NewAction(st.Action, data)
	if err != nil {
		return err
	}
	return sendAction(p, action)
}

func (st SendRawStep) String() string { return fmt.Sprintf("SendRawStep{from %s}", st.Player) }
func (st SendRawStep) Run(s *ScenarioContext) error {
	reg, err := s.Registry()
	if err != nil {
		return err
	}
	return reg.SendFrom(st.Player, st.Payload)
}

func (st ExpectStateStep) String() string {
	return fmt.Sprintf("ExpectStateStep{%s receives %s}", st.Player, st.Phase)
}

func (st ExpectStateStep) Run(s *ScenarioContext) error {
	phase := st.Phase
	if phase == "" {
		phase = s.FixturePhase()
	}
	_, err := expectNext(s, st.Player, orDefault(st.Timeout, s.cfg.StepTimeout), isState(phase))
	if err != nil {
		return fmt.Errorf("state %q not received: %w", phase, err)
	}
	return nil
}

func (st ExpectMessageStep) String() string {
	return fmt.Sprintf("ExpectMessageStep{%s receives %q}", st.Player, st.Contains)
}

func (st ExpectMessageStep) Run(s *ScenarioContext) error {
	_, err := expectNext(s, st.Player, orDefault(st.Timeout, s.cfg.StepTimeout), func(msg harness.Payload) bool {
		return strings.Contains(msg.Text(), st.Contains)
	})
	return err
}

func (st ExpectLogStep) String() string {
	return fmt.Sprintf("ExpectLogStep{%s, %d messages}", st.Player, len(st.Messages))
}

func (st ExpectLogStep) Run(s *ScenarioContext) error {
	p, err := s.player(st.Player)
	if err != nil {
		return err
	}
	err = poll(s.Context(), orDefault(st.Timeout, s.cfg.StepTimeout), func() error {
		if got := p.Log().Len(); got < len(st.Messages) {
			return fmt.Errorf("%s has %d of %d messages", st.Player, got, len(st.Messages))
		}
		return nil
	})
	if err != nil {
		return err
	}

	got := p.Log().Texts()
	if len(got) != len(st.Messages) {
		return fmt.Errorf("%s received %q, expected %q", st.Player, got, st.Messages)
	}
	for i := range got {
		if got[i] != st.Messages[i] {
			return fmt.Errorf("%s message %d is %q, expected %q", st.Player, i, got[i], st.Messages[i])
		}
	}
	return nil
}

func (st ExpectNoMessagesStep) String() string {
	return fmt.Sprintf("ExpectNoMessagesStep{%s for %s}", st.Player, st.For)
}

func (st ExpectNoMessagesStep) Run(s *ScenarioContext) error {
	p, err := s.player(st.Player)
	if err != nil {
		return err
	}
	before := p.Log().Len()
	if err = s.sleep(st.For); err != nil {
		return err
	}
	if fresh := p.Log().Since(before); len(fresh) > 0 {
		return fmt.Errorf("%s received %d unexpected messages, first: %s", st.Player, len(fresh), fresh[0].Text())
	}
	return nil
}

func (st ExpectErrorStep) String() string {
	return fmt.Sprintf("ExpectErrorStep{%s receives %q}", st.Player, st.Message)
}

func (st ExpectErrorStep) Run(s *ScenarioContext) error {
	_, err := expectNext(s, st.Player, orDefault(st.Timeout, s.cfg.StepTimeout), isError(st.Message))
	if err != nil {
		return fmt.Errorf("error %q not received: %w", st.Message, err)
	}
	return nil
}

func (st ExpectConnectionStep) String() string {
	return fmt.Sprintf("ExpectConnectionStep{%s is %s}", st.Player, st.State)
}

func (st ExpectConnectionStep) Run(s *ScenarioContext) error {
	p, err := s.player(st.Player)
	if err != nil {
		return err
	}
	return poll(s.Context(), orDefault(st.Timeout, s.cfg.StepTimeout), func() error {
		if got := p.State(); got != st.State {
			return fmt.Errorf("%s is %s, expected %s", st.Player, got, st.State)
		}
		return nil
	})
}

func (st WaitStep) String() string { return fmt.Sprintf("WaitStep{%s}", st.Delay) }
func (st WaitStep) Run(s *ScenarioContext) error {
	return s.sleep(st.Delay)
}

func (st HookStep) String() string { return fmt.Sprintf("HookStep{%s}", st.Name) }
func (st HookStep) Run(s *ScenarioContext) error {
	if st.Fn == nil {
		return nil
	}
	return st.Fn(s)
}

func (st ParallelStep) String() string { return "ParallelStep{...}" }
func (st ParallelStep) Run(s *ScenarioContext) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(st.Steps)+len(st.Until))
	for _, step := range st.Steps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := step.Run(s); err != nil {
				errCh <- fmt.Errorf("parallel sub-step %s: %w", step.String(), err)
			}
		}()
	}

	for _, cond := range st.Until {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cond.Wait(s, s.cfg.StepTimeout); err != nil {
				errCh <- fmt.Errorf("parallel condition %s: %w", cond.String(), err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for e := range errCh {
		return e
	}
	return nil
}

func (st EndStep) String() string { return "EndStep{}" }
func (st EndStep) Run(s *ScenarioContext) error {
	return s.Cleanup()
}

func sendAction(p *harness.Player, action game.Action) error {
	raw, err := action.Encode()
	if err != nil {
		return err
	}
	return p.SendText(string(raw))
}

func substituteCode(data map[string]any, code string) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if str, ok := v.(string); ok && str == LobbyCodePlaceholder {
			out[k] = code
			continue
		}
		out[k] = v
	}
	return out
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
