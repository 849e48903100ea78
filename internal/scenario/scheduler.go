package scenario

import (
	"context"
	"log"
	"time"
)

// Scheduler re-runs a scenario on a fixed interval until the context ends.
type Scheduler struct {
	Runner   *Runner
	Scenario *Scenario
	Interval time.Duration
	// MaxRuns stops the scheduler after that many runs. Zero means no limit.
	MaxRuns int
	// OnReport is called after every run.
	OnReport func(Report, error)
}

func NewScheduler(runner *Runner, sc *Scenario, interval time.Duration) *Scheduler {
	return &Scheduler{
		Runner:   runner,
		Scenario: sc,
		Interval: interval,
	}
}

// Start runs the scenario immediately and then on every tick.
func (s *Scheduler) Start(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Scenario scheduler started for %s, every %s", s.Scenario.Name, interval)

	runs := 0
	for {
		s.runOnce(ctx)
		runs++
		if s.MaxRuns > 0 && runs >= s.MaxRuns {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	report, err := s.Runner.Run(ctx, s.Scenario)
	if err != nil {
		log.Printf("Error running scenario %s: %v", s.Scenario.Name, err)
	}
	if s.OnReport != nil {
		s.OnReport(report, err)
	}
}
