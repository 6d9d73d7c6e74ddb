// Package service coordinates policy runs for the daemon: one run at a
// time, per-policy run configs from the config directory, last-run
// records for the ops surface.
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"investhor/internal/config"
	"investhor/internal/runner"
)

const (
	PolicyInvestPrimary   = "invest_primary"
	PolicyInvestSecondary = "invest_secondary"
	PolicySell            = "sell"
	PolicySellStale       = "sell_stale"
)

// Policies lists the runnable policies in trigger order.
var Policies = []string{
	PolicyInvestPrimary,
	PolicyInvestSecondary,
	PolicySell,
	PolicySellStale,
}

// ErrBusy is returned when a trigger overlaps a run already in flight.
var ErrBusy = fmt.Errorf("a run is already in progress")

var ErrUnknownPolicy = fmt.Errorf("unknown policy")

// RunRecord is the retained outcome of the most recent run per policy.
type RunRecord struct {
	Policy     string    `json:"policy"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Actions    int       `json:"actions"`
	Failed     int       `json:"failed_batches"`
	Error      string    `json:"error,omitempty"`
}

// RunService serializes policy runs over a shared Runner.
type RunService struct {
	Runner    *runner.Runner
	ConfigDir string
	// Timeout bounds one run including reconciler batch delays.
	Timeout time.Duration
	Logger  *zap.Logger

	mu      sync.Mutex
	running bool
	last    map[string]RunRecord
}

func (s *RunService) configPath(policy string) string {
	return filepath.Join(s.ConfigDir, policy+".json")
}

// Trigger executes one policy run. Concurrent triggers get ErrBusy
// instead of queueing; overlapping runs would double-submit orders.
func (s *RunService) Trigger(ctx context.Context, policy string) (RunRecord, error) {
	op, err := s.dispatch(policy)
	if err != nil {
		return RunRecord{}, err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return RunRecord{}, ErrBusy
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	path := s.configPath(policy)
	cfg, err := config.LoadRun(path)
	if err != nil {
		rec := s.record(policy, runner.Summary{Policy: policy, StartedAt: time.Now()}, &runner.ConfigError{Path: path, Err: err})
		return rec, &runner.ConfigError{Path: path, Err: err}
	}

	sum, runErr := op(ctx, cfg, path)
	rec := s.record(policy, sum, runErr)
	if s.Logger != nil {
		s.Logger.Info("run finished",
			zap.String("policy", policy),
			zap.Int("actions", rec.Actions),
			zap.Int("failed_batches", rec.Failed),
			zap.String("error", rec.Error),
			zap.Duration("duration", sum.Duration),
		)
	}
	return rec, runErr
}

func (s *RunService) dispatch(policy string) (func(context.Context, config.RunConfig, string) (runner.Summary, error), error) {
	switch policy {
	case PolicyInvestPrimary:
		return s.Runner.RunPrimary, nil
	case PolicyInvestSecondary:
		return s.Runner.RunSecondary, nil
	case PolicySell:
		return s.Runner.RunSell, nil
	case PolicySellStale:
		return s.Runner.RunSellStale, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
}

func (s *RunService) record(policy string, sum runner.Summary, runErr error) RunRecord {
	rec := RunRecord{
		Policy:     policy,
		StartedAt:  sum.StartedAt,
		DurationMS: sum.Duration.Milliseconds(),
		Actions:    len(sum.Actions),
		Failed:     len(sum.Failed),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	s.mu.Lock()
	if s.last == nil {
		s.last = map[string]RunRecord{}
	}
	s.last[policy] = rec
	s.mu.Unlock()
	return rec
}

// Last returns the most recent record per policy, in Policies order.
func (s *RunService) Last() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunRecord, 0, len(s.last))
	for _, p := range Policies {
		if rec, ok := s.last[p]; ok {
			out = append(out, rec)
		}
	}
	return out
}
