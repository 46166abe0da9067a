package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	historyUser  string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print a user's recent reminder history",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyUser, "user", "u", "", "User id, e.g. telegram:123 or whatsapp:+15550001111")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Number of entries (default HISTORY_LIMIT)")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if historyUser == "" {
		return errors.New("--user is required")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	limit := historyLimit
	if limit <= 0 {
		limit = a.cfg.HistoryLimit
	}
	records, err := a.store.RecentHistory(cmd.Context(), historyUser, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tLABEL\tACTION")
	loc := a.cfg.Location()
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.At.In(loc).Format("2006-01-02 15:04"), r.Label, r.Action)
	}
	return w.Flush()
}
