package report

import (
	"encoding/json"
	"fmt"
	"github.com/klauspost/compress/zstd"
	"os"
	"time"
	"werewolf-bdd/build"
	"werewolf-bdd/harness"
)

// ScenarioReport is the outcome of one scenario plus the final state of its players.
type ScenarioReport struct {
	Name      string                 `json:"name"`
	Passed    bool                   `json:"passed"`
	Error     string                 `json:"error,omitempty"`
	StartedAt time.Time              `json:"startedAt"`
	Duration  time.Duration          `json:"duration"`
	Players   []harness.PlayerStatus `json:"players"`
}

type Report struct {
	RunID      string           `json:"runId"`
	Endpoint   string           `json:"endpoint"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Build      *build.Info      `json:"build,omitempty"`
	Scenarios  []ScenarioReport `json:"scenarios"`
}

func New(runID, endpoint string) *Report {
	return &Report{
		RunID:     runID,
		Endpoint:  endpoint,
		StartedAt: time.Now().UTC(),
		Build:     build.GetBuildInfo(),
		Scenarios: []ScenarioReport{},
	}
}

func (r *Report) Add(sr ScenarioReport) {
	r.Scenarios = append(r.Scenarios, sr)
}

func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC()
}

// Failed returns the number of failed scenarios.
func (r *Report) Failed() int {
	n := 0
	for _, sc := range r.Scenarios {
		if !sc.Passed {
			n++
		}
	}
	return n
}

func (r *Report) Passed() bool {
	return r.Failed() == 0
}

// WriteFile stores r as zstd-compressed JSON.
func WriteFile(path string, r *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}

	if err = json.NewEncoder(enc).Encode(r); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode report: %w", err)
	}

	if err = enc.Close(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return f.Sync()
}

func ReadFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report file: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	var r Report
	if err = json.NewDecoder(dec).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
