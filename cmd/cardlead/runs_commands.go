package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/entity"
	"github.com/joseph-ayodele/cardlead/internal/export"
	"github.com/joseph-ayodele/cardlead/internal/ledger"
)

const dateLayout = "2006-01-02"

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run history",
	}

	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsExportCommand(ctx))

	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var status, since string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ledger.ListFilter{
				Status: constants.RunStatus(strings.ToUpper(strings.TrimSpace(status))),
				Limit:  limit,
			}
			if since != "" {
				t, err := parseDay(since)
				if err != nil {
					return err
				}
				filter.Since = &t
			}

			return ctx.withLedger(cmd.Context(), func(l *ledger.Ledger, _ *slog.Logger) error {
				runs, err := l.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if runs == nil {
						runs = []entity.Run{}
					}
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs found")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					rows = append(rows, []string{
						r.ProcessID.String(),
						string(r.Status),
						string(r.InputMode),
						r.Assignee,
						r.Stage,
						strconv.Itoa(r.ImageCount),
						r.QueuedAt.Local().Format(time.DateTime),
						formatDuration(r),
					})
				}
				headers := []string{"Process", "Status", "Mode", "Assignee", "Stage", "Images", "Queued", "Took"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only runs with this status")
	cmd.Flags().StringVar(&since, "since", "", "Only runs queued on or after this day (YYYY-MM-DD)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows; 0 for all")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <process-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := entity.ParseProcessID(args[0])
			if err != nil {
				return fmt.Errorf("invalid process id %q: %w", args[0], err)
			}
			return ctx.withLedger(cmd.Context(), func(l *ledger.Ledger, _ *slog.Logger) error {
				run, err := l.Get(cmd.Context(), pid)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, run)
				}
				rows := [][]string{
					{"Process", run.ProcessID.String()},
					{"Status", string(run.Status)},
					{"Mode", string(run.InputMode)},
					{"Assignee", run.Assignee},
					{"Stage", run.Stage},
					{"Images", strconv.Itoa(run.ImageCount)},
					{"Record", deref(run.RecordID)},
					{"Card URL", deref(run.CardURL)},
					{"Queued", run.QueuedAt.Local().Format(time.DateTime)},
					{"Started", formatTime(run.StartedAt)},
					{"Finished", formatTime(run.FinishedAt)},
					{"Error", deref(run.ErrorMessage)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}
}

func newRunsExportCommand(ctx *commandContext) *cobra.Command {
	var out, from, to string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the run history to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			var fromT, toT *time.Time
			if from != "" {
				t, err := parseDay(from)
				if err != nil {
					return err
				}
				fromT = &t
			}
			if to != "" {
				t, err := parseDay(to)
				if err != nil {
					return err
				}
				// Inclusive of the whole day.
				t = t.AddDate(0, 0, 1)
				toT = &t
			}

			return ctx.withLedger(cmd.Context(), func(l *ledger.Ledger, logger *slog.Logger) error {
				data, err := export.NewService(l, logger).ExportRunsXLSX(cmd.Context(), fromT, toT)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", out, len(data))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "runs.xlsx", "Output file")
	cmd.Flags().StringVar(&from, "from", "", "First day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last day to include (YYYY-MM-DD)")
	return cmd
}

func parseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func formatDuration(r entity.Run) string {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return "-"
	}
	return r.FinishedAt.Sub(*r.StartedAt).Round(100 * time.Millisecond).String()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return dash(*s)
}
