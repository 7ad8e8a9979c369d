package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// CheckFunc performs one health check and returns nil when it passes.
type CheckFunc func(ctx context.Context) error

// Probe is one startup check against an external dependency.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // A critical failure prevents startup
}

// Result is the outcome of one probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes the probes in order. Each check gets its own timeout so a
// single unreachable service cannot stall startup.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	for i, p := range probes {
		start := time.Now()

		checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := p.Check(checkCtx)
		cancel()

		results[i] = Result{Probe: p, Error: err, Duration: time.Since(start)}
	}
	return results
}

// AnalyzeResults logs every outcome and returns the joined errors of the
// critical failures, nil when startup may proceed.
func AnalyzeResults(results []Result) error {
	var critical []error

	slog.Info("Startup Checks Summary")
	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}
		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		if r.Error != nil {
			slog.Error(msg, "error", r.Error)
			if r.Probe.Critical {
				critical = append(critical, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
			}
		} else {
			slog.Info(msg)
		}
	}

	if len(critical) > 0 {
		return errors.Join(critical...)
	}
	return nil
}
