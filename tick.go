package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var tickAt string

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one delivery tick and exit",
	Long: `Run the per-minute delivery check once, as the scheduler would, and
print what happened. Without --at the current minute is used.`,
	RunE: runTick,
}

func init() {
	tickCmd.Flags().StringVar(&tickAt, "at", "", "Local time to evaluate, e.g. 2024-01-10T08:00")
}

func runTick(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	now, err := parseTickTime(tickAt, a.cfg.Location(), time.Now())
	if err != nil {
		return err
	}

	report := a.bot.OnTick(cmd.Context(), now)
	fmt.Fprintf(cmd.OutOrStdout(), "%s candidates=%d sent=%d skipped=%d failed=%d\n",
		report.At.Format("2006-01-02 15:04 MST"), report.Candidates, report.Sent, report.Skipped, report.Failed)
	return nil
}

// parseTickTime reads value in loc; an empty value means now.
func parseTickTime(value string, loc *time.Location, now time.Time) (time.Time, error) {
	if value == "" {
		return now.In(loc).Truncate(time.Minute), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must look like 2024-01-10T08:00: %w", err)
	}
	return t, nil
}
