package harness

import (
	"context"
	"fmt"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"strings"
	"sync"
	"sync/atomic"
	"werewolf-bdd/applog"
)

// Registry owns every virtual player of one scenario, keyed by unique name.
// The set of players is fixed at construction, so lookups need no locking.
type Registry struct {
	endpoint string
	order    []string
	players  map[string]*Player
	tornDown atomic.Bool
}

// NewRegistry validates the whole roster before opening anything, then starts one
// connection per name without waiting for any handshake.
func NewRegistry(names []string, endpoint string, opts ...Option) (*Registry, error) {
	if len(names) == 0 {
		return nil, ErrNoPlayers
	}

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: empty name in roster", ErrInvalidName)
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		seen[name] = struct{}{}
	}
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	r := &Registry{
		endpoint: endpoint,
		order:    append([]string(nil), names...),
		players:  make(map[string]*Player, len(names)),
	}
	for _, name := range names {
		p := newPlayer(name, endpoint, o)
		r.players[name] = p
	}
	for _, name := range r.order {
		go r.players[name].run()
	}

	applog.Info("Players connecting",
		zap.String("endpoint", endpoint),
		zap.Strings("players", r.order),
	)
	return r, nil
}

func (r *Registry) Endpoint() string { return r.endpoint }

// Names returns player names in roster order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int { return len(r.order) }

func (r *Registry) Player(name string) (*Player, error) {
	p, ok := r.players[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, name)
	}
	return p, nil
}

// SendFrom sends a text frame on behalf of the named player.
func (r *Registry) SendFrom(name, payload string) error {
	p, err := r.Player(name)
	if err != nil {
		return err
	}
	return p.SendText(payload)
}

func (r *Registry) SendJSONFrom(name string, v any) error {
	p, err := r.Player(name)
	if err != nil {
		return err
	}
	return p.SendJSON(v)
}

// LogFor returns the live inbound log of the named player.
func (r *Registry) LogFor(name string) (*InboundLog, error) {
	p, err := r.Player(name)
	if err != nil {
		return nil, err
	}
	return p.Log(), nil
}

func (r *Registry) Logs() map[string]*InboundLog {
	logs := make(map[string]*InboundLog, len(r.players))
	for name, p := range r.players {
		logs[name] = p.Log()
	}
	return logs
}

// AwaitOpen waits for every player to finish its handshake and reports all that didn't.
func (r *Registry) AwaitOpen(ctx context.Context) error {
	return r.forEach(func(p *Player) error {
		return p.WaitOpen(ctx)
	})
}

func (r *Registry) Snapshot() []PlayerStatus {
	statuses := make([]PlayerStatus, 0, len(r.order))
	for _, name := range r.order {
		statuses = append(statuses, r.players[name].Status())
	}
	return statuses
}

// Teardown closes all players concurrently and waits for them, bounded by ctx.
// Only the first call does anything; later calls return nil.
func (r *Registry) Teardown(ctx context.Context) error {
	if !r.tornDown.CompareAndSwap(false, true) {
		return nil
	}

	err := r.forEach(func(p *Player) error {
		return p.Shutdown(ctx)
	})
	if err != nil {
		applog.Warn("Teardown incomplete", zap.Error(err))
	} else {
		applog.Info("Players closed", zap.Int("count", len(r.order)))
	}
	return err
}

func (r *Registry) forEach(fn func(p *Player) error) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, name := range r.order {
		p := r.players[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(p); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}
