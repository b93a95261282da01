package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cardlead/internal/app"
	"github.com/joseph-ayodele/cardlead/internal/extract"
	"github.com/joseph-ayodele/cardlead/internal/llm"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var raw bool
	var concurrency int

	cmd := &cobra.Command{
		Use:   "extract <image>...",
		Short: "Extract contact fields from card images without publishing",
		Long:  "Each argument is an http(s) URL, a data URL or a local file path. Local files are sent inline.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				mode, err := llm.ParseMode(a.Config.Pipeline.ExtractionMode)
				if err != nil {
					return err
				}
				if raw {
					mode = llm.ModeRaw
				}
				engine := extract.NewEngine(a.Completer, a.Logger,
					extract.WithMaxAttempts(a.Config.Pipeline.MaxAttempts),
					extract.WithJitter(a.Config.Pipeline.RetryJitter.Duration),
					extract.WithMode(mode),
					extract.WithBatchLimit(concurrency),
				)
				results := engine.ExtractBatch(cmd.Context(), args)

				if ctx.JSONMode() {
					out := make([]map[string]any, len(args))
					for i, ref := range args {
						out[i] = map[string]any{"image": ref, "fields": results[i]}
					}
					return writeJSON(cmd, out)
				}
				for i, ref := range args {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\n", ref)
					if results[i].Empty() {
						fmt.Fprintln(cmd.OutOrStdout(), "  (no fields extracted)")
						continue
					}
					keys := make([]string, 0, len(results[i]))
					for k := range results[i] {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					rows := make([][]string, 0, len(keys))
					for _, k := range keys {
						rows = append(rows, []string{k, results[i][k]})
					}
					fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Transcribe only, without inferring missing fields")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Images extracted at once")
	return cmd
}
