package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cardlead/internal/app"
	"github.com/joseph-ayodele/cardlead/internal/entity"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect and remove staged images",
	}

	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingPurgeCommand(ctx))

	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <process-id>",
		Short: "List the images staged for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := entity.ParseProcessID(args[0])
			if err != nil {
				return fmt.Errorf("invalid process id %q: %w", args[0], err)
			}
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				assets, err := a.Staging.ListAssets(cmd.Context(), pid)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, assets)
				}
				if len(assets) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing staged")
					return nil
				}
				rows := make([][]string, 0, len(assets))
				for _, as := range assets {
					rows = append(rows, []string{
						string(as.Role),
						as.URL,
						strconv.FormatInt(as.Size, 10),
						as.UploadedAt.Local().Format(time.DateTime),
					})
				}
				aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Role", "URL", "Bytes", "Uploaded"}, rows, aligns))
				return nil
			})
		},
	}
}

func newStagingPurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <process-id>...",
		Short: "Delete everything staged for the given runs",
		Long:  "Records that still link to purged images will show broken images.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pids := make([]entity.ProcessID, 0, len(args))
			for _, arg := range args {
				pid, err := entity.ParseProcessID(arg)
				if err != nil {
					return fmt.Errorf("invalid process id %q: %w", arg, err)
				}
				pids = append(pids, pid)
			}
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				for _, pid := range pids {
					if err := a.Staging.Delete(cmd.Context(), pid); err != nil {
						return fmt.Errorf("purge %s: %w", pid, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", pid)
				}
				return nil
			})
		},
	}
}
