package scenario

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"sync"
	"time"
	"werewolf-bdd/applog"
	"werewolf-bdd/config"
	"werewolf-bdd/game"
	"werewolf-bdd/harness"
	"werewolf-bdd/report"
)

var ErrNotConnected = errors.New("no players connected in this scenario")

// ScenarioContext carries everything steps share: configuration, the current scenario's
// registry and what has been learned from the server so far.
type ScenarioContext struct {
	ctx  context.Context
	cfg  *config.Config
	opts []harness.Option

	mu           sync.RWMutex
	scenarioCtx  context.Context
	registry     *harness.Registry
	fixturePhase game.PhaseName
	lobbyCode    string
	secrets      map[string]string
	cursors      map[string]int
	results      []report.ScenarioReport
}

// NewScenarioContext prepares a context for running scenarios against cfg.SocketURL.
// Extra harness options are applied to every player after the ones derived from cfg.
func NewScenarioContext(ctx context.Context, cfg *config.Config, opts ...harness.Option) *ScenarioContext {
	return &ScenarioContext{
		ctx:         ctx,
		cfg:         cfg,
		opts:        opts,
		scenarioCtx: ctx,
		secrets:     map[string]string{},
		cursors:     map[string]int{},
	}
}

func (s *ScenarioContext) Context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scenarioCtx
}

func (s *ScenarioContext) Config() *config.Config { return s.cfg }

func (s *ScenarioContext) logger() *applog.Logger {
	return applog.FromContext(s.Context())
}

// Registry returns the players of the running scenario.
func (s *ScenarioContext) Registry() (*harness.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.registry == nil {
		return nil, ErrNotConnected
	}
	return s.registry, nil
}

func (s *ScenarioContext) LobbyCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lobbyCode
}

func (s *ScenarioContext) setLobbyCode(code string) {
	s.mu.Lock()
	s.lobbyCode = code
	s.mu.Unlock()
}

func (s *ScenarioContext) FixturePhase() game.PhaseName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fixturePhase
}

// secretFor returns a stable per-player secret so rejoins within a scenario match.
func (s *ScenarioContext) secretFor(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[name]
	if !ok {
		secret = fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
		s.secrets[name] = secret
	}
	return secret
}

// cursor is the index of the first message of name no expectation has consumed yet.
func (s *ScenarioContext) cursor(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[name]
}

func (s *ScenarioContext) advanceCursor(name string, next int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next > s.cursors[name] {
		s.cursors[name] = next
	}
}

// Results returns the reports of every scenario run so far.
func (s *ScenarioContext) Results() []report.ScenarioReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]report.ScenarioReport(nil), s.results...)
}

func (s *ScenarioContext) playerOptions() []harness.Option {
	opts := []harness.Option{
		harness.WithContext(s.Context()),
		harness.WithHandshakeTimeout(s.cfg.OpenTimeout),
	}
	if s.cfg.NameHeader != "" {
		opts = append(opts, harness.WithNameHeader(s.cfg.NameHeader))
	}
	return append(opts, s.opts...)
}

func (s *ScenarioContext) connect(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registry != nil {
		return fmt.Errorf("players already connected: %v", s.registry.Names())
	}

	reg, err := harness.NewRegistry(names, s.cfg.SocketURL, s.playerOptions()...)
	if err != nil {
		return err
	}
	s.registry = reg
	return nil
}

func (s *ScenarioContext) begin(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarioCtx = applog.WithScenario(s.ctx, name)
	s.registry = nil
	s.fixturePhase = ""
	s.lobbyCode = ""
	s.secrets = map[string]string{}
	s.cursors = map[string]int{}
}

// Cleanup tears down the scenario's players, bounded by the configured close timeout.
// The registry stays reachable afterwards so its final state can be reported.
func (s *ScenarioContext) Cleanup() error {
	s.mu.RLock()
	reg := s.registry
	s.mu.RUnlock()
	if reg == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CloseTimeout)
	defer cancel()
	if err := reg.Teardown(ctx); err != nil {
		s.logger().Warn("Teardown failed", zap.Error(err))
		return err
	}
	return nil
}

func (s *ScenarioContext) record(sr report.ScenarioReport) {
	s.mu.Lock()
	s.results = append(s.results, sr)
	s.mu.Unlock()
}

func (s *ScenarioContext) snapshot() []harness.PlayerStatus {
	s.mu.RLock()
	reg := s.registry
	s.mu.RUnlock()
	if reg == nil {
		return []harness.PlayerStatus{}
	}
	return reg.Snapshot()
}

func (s *ScenarioContext) player(name string) (*harness.Player, error) {
	reg, err := s.Registry()
	if err != nil {
		return nil, err
	}
	return reg.Player(name)
}

func (s *ScenarioContext) sleep(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.Context().Done():
		return s.Context().Err()
	case <-t.C:
		return nil
	}
}
