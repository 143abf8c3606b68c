package scenario

import (
	"context"
	"fmt"
	"github.com/cenkalti/backoff/v4"
	"time"
	"werewolf-bdd/game"
	"werewolf-bdd/harness"
)

const pollInterval = 50 * time.Millisecond

// poll retries check at a constant interval until it passes or timeout runs out.
// On timeout the last check error is returned.
func poll(ctx context.Context, timeout time.Duration, check func() error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var last error
	err := backoff.Retry(func() error {
		last = check()
		return last
	}, backoff.WithContext(backoff.NewConstantBackOff(pollInterval), ctx))
	if err == nil {
		return nil
	}
	if last != nil {
		return fmt.Errorf("not met within %s: %w", timeout, last)
	}
	return err
}

// awaitMessage waits for the first message of player at or after index from that pred
// accepts.
func awaitMessage(
	s *ScenarioContext,
	player string,
	from int,
	timeout time.Duration,
	pred func(harness.Payload) bool,
) (harness.Payload, error) {
	_, msg, err := awaitIndex(s, player, from, timeout, pred)
	return msg, err
}

// expectNext is awaitMessage starting at the player's read cursor. A match moves the
// cursor past it, so the next expectation for that player can't be met by the same
// or an older message.
func expectNext(
	s *ScenarioContext,
	player string,
	timeout time.Duration,
	pred func(harness.Payload) bool,
) (harness.Payload, error) {
	idx, msg, err := awaitIndex(s, player, s.cursor(player), timeout, pred)
	if err != nil {
		return harness.Payload{}, err
	}
	s.advanceCursor(player, idx+1)
	return msg, nil
}

func awaitIndex(
	s *ScenarioContext,
	player string,
	from int,
	timeout time.Duration,
	pred func(harness.Payload) bool,
) (int, harness.Payload, error) {
	p, err := s.player(player)
	if err != nil {
		return -1, harness.Payload{}, err
	}

	ctx, cancel := context.WithTimeout(s.Context(), timeout)
	defer cancel()

	idx, err := p.Log().WaitForFrom(ctx, from, pred)
	if err != nil {
		return -1, harness.Payload{}, fmt.Errorf("%s: %w (%s)", player, err, describeLog(p))
	}
	msg, _ := p.Log().At(idx)
	return idx, msg, nil
}

func isState(phase game.PhaseName) func(harness.Payload) bool {
	return func(msg harness.Payload) bool {
		state, err := game.ParseGameState(msg.Data)
		if err != nil {
			return false
		}
		return phase == "" || state.Phase.Name == phase
	}
}

func isError(message string) func(harness.Payload) bool {
	return func(msg harness.Payload) bool {
		parsed, err := game.ParseServerMessage(msg.Data)
		if err != nil {
			return false
		}
		e, ok := parsed.(*game.ErrorMessage)
		return ok && (message == "" || e.Message == message)
	}
}

func describeLog(p *harness.Player) string {
	texts := p.Log().Texts()
	if len(texts) == 0 {
		return "nothing received"
	}
	return fmt.Sprintf("last of %d: %s", len(texts), texts[len(texts)-1])
}
