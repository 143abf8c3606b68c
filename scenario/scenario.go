package scenario

import (
	"fmt"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"time"
	"werewolf-bdd/metrics"
	"werewolf-bdd/report"
)

type Scenario struct {
	Name  string
	Steps []ScenarioStep
}

type ScenarioStep interface {
	Run(s *ScenarioContext) error
	String() string
}

type Condition interface {
	Wait(s *ScenarioContext, to time.Duration) error
	String() string
}

// RunScenario executes the steps of sc in order and stops at the first failing one.
// Players left open by the scenario are always torn down, and the outcome is recorded
// for the run report.
func RunScenario(s *ScenarioContext, sc Scenario) error {
	s.begin(sc.Name)
	logger := s.logger()
	startedAt := time.Now()

	logger.Info("Scenario started", zap.Int("steps", len(sc.Steps)))

	var err error
	for i, step := range sc.Steps {
		if i > 0 {
			if err = s.sleep(s.cfg.StepDelay); err != nil {
				err = fmt.Errorf("scenario (%s) interrupted: %w", sc.Name, err)
				break
			}
		}
		logger.Debug("Running step", zap.String("step", step.String()))
		if err = step.Run(s); err != nil {
			err = fmt.Errorf("scenario (%s) step %s failed: %w", sc.Name, step.String(), err)
			break
		}
	}

	if cerr := s.Cleanup(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("scenario (%s) teardown: %w", sc.Name, cerr))
	}

	result := report.ScenarioReport{
		Name:      sc.Name,
		Passed:    err == nil,
		StartedAt: startedAt.UTC(),
		Duration:  time.Since(startedAt),
		Players:   s.snapshot(),
	}
	if err != nil {
		result.Error = err.Error()
		logger.Error("Scenario failed", zap.Error(err), zap.Duration("duration", result.Duration))
	} else {
		logger.Info("Scenario passed", zap.Duration("duration", result.Duration))
	}
	s.record(result)
	metrics.ObserveScenario(result.Passed)

	return err
}

// RunScenarios runs list in order and returns the first failure.
func RunScenarios(s *ScenarioContext, list []Scenario) error {
	for _, sc := range list {
		if err := RunScenario(s, sc); err != nil {
			return err
		}
	}
	return nil
}
