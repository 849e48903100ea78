package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/rahul/uipilot/internal/observability"
	"github.com/rahul/uipilot/internal/scenario"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var noCache bool
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(sc.Platform, sc.StartURL)
			if err != nil {
				return err
			}
			defer a.Close()
			a.scenarios.NoCache = noCache

			report, err := a.scenarios.Run(cmd.Context(), sc)
			fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
			if err != nil {
				return err
			}
			if !report.Passed() {
				return fmt.Errorf("scenario %s failed", sc.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "ignore cached actions and run every step with the agent")
	return cmd
}

func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover <run-id>",
		Short: "Resume the last failed step of a run with the agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp("", "")
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			rec, err := a.store.LastFailed(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recovering step %d of %s: %s\n", rec.StepIndex+1, rec.Scenario, rec.Prompt)

			res, runErr := a.agent.Recover(ctx, rec)
			if res.Status != nil {
				out, err := res.Recording(rec.Scenario, rec.StepIndex)
				if err == nil {
					_, err = a.store.SaveRecording(context.WithoutCancel(ctx), out)
				}
				if err != nil {
					fmt.Fprintf(os.Stderr, "failed to save recording: %v\n", err)
				}
			}
			if runErr != nil {
				return runErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s after %d steps: %s\n", res.Outcome, res.Steps, res.Explanation)
			if !res.Passed() {
				return fmt.Errorf("recovery ended with %s", res.Outcome)
			}
			return nil
		},
	}
}

func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent step recordings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp("", "")
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.store.ListRecordings(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRUN\tSCENARIO\tSTEP\tKIND\tOUTCOME\tSTEPS\tWHEN")
			for _, r := range recs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
					r.ID, r.RunID, r.Scenario, r.StepIndex+1, r.Kind, r.Outcome, r.Steps, r.CreatedAt.Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of recordings to show")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "watch <scenario.yaml>",
		Short: "Re-run a scenario on an interval and report every run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(sc.Platform, sc.StartURL)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			var (
				mu   sync.Mutex
				last scenario.Report
			)
			scheduler := scenario.NewScheduler(a.scenarios, sc, every)
			scheduler.OnReport = func(r scenario.Report, _ error) {
				mu.Lock()
				last = r
				mu.Unlock()
				observability.PrintStatusLine()
			}

			if a.telegram != nil {
				go a.telegram.Listen(ctx, func(_ context.Context, command string) string {
					switch command {
					case "/status":
						return observability.StatusLine()
					case "/last":
						mu.Lock()
						defer mu.Unlock()
						if last.RunID == "" {
							return "No run has finished yet."
						}
						return last.Summary()
					default:
						return "Commands: /status, /last"
					}
				})
			}

			go func() {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						observability.PrintStatusLine()
					}
				}
			}()

			scheduler.Start(ctx)
			return nil
		},
	}
	cmd.Flags().DurationVar(&every, "every", 30*time.Minute, "interval between runs")
	return cmd
}
