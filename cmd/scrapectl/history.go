package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sheetscrape/console/internal/models"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1, got %d", limit)
			}
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			if a.history == nil {
				return errors.New("run history is unavailable")
			}
			runs, err := a.history.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func printRuns(out io.Writer, runs []*models.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "no runs recorded")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tFILE\tSTATUS\tOUTPUT\tDURATION\tERROR")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		output := r.OutputFile
		if output == "" {
			output = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.FileName, r.Status, output, duration, r.Error)
	}
	return w.Flush()
}
