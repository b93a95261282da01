package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cardlead/internal/app"
	"github.com/joseph-ayodele/cardlead/internal/entity"
	"github.com/joseph-ayodele/cardlead/internal/pipeline"
)

type runOptions struct {
	card        string
	hearing     []string
	contextPath string
	leadDate    string
	consume     bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one submission through the pipeline and wait for the result",
		Long: "Run stages the card and hearing images, extracts contact fields, publishes the lead record " +
			"and attaches the images. Input files are copied first unless --consume is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := readPipelineContext(cmd, opts.contextPath)
			if err != nil {
				return err
			}
			sub := pipeline.Submission{
				CardPath:     opts.card,
				HearingPaths: opts.hearing,
				LeadDate:     opts.leadDate,
				Context:      pc,
			}
			if !opts.consume {
				tmp, err := os.MkdirTemp("", "cardlead-run-")
				if err != nil {
					return err
				}
				defer os.RemoveAll(tmp)
				if sub, err = copyInputs(sub, tmp); err != nil {
					return err
				}
			}

			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				orch, err := a.Orchestrator(nil)
				if err != nil {
					return err
				}
				out, err := orch.RunNow(cmd.Context(), sub)
				if err != nil {
					return err
				}
				if err := printOutcome(cmd, ctx, out); err != nil {
					return err
				}
				return out.Err
			})
		},
	}

	cmd.Flags().StringVar(&opts.card, "card", "", "Business card image")
	cmd.Flags().StringSliceVar(&opts.hearing, "hearing", nil, "Hearing sheet image (repeatable)")
	cmd.Flags().StringVar(&opts.contextPath, "context", "", "JSON file with the operator form fields, or - for stdin")
	cmd.Flags().StringVar(&opts.leadDate, "lead-date", "", "Lead date as YYYY/MM/DD (default today)")
	cmd.Flags().BoolVar(&opts.consume, "consume", false, "Let the pipeline delete the input files")
	_ = cmd.MarkFlagRequired("context")

	return cmd
}

func readPipelineContext(cmd *cobra.Command, path string) (entity.PipelineContext, error) {
	var pc entity.PipelineContext
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return pc, fmt.Errorf("open context: %w", err)
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pc); err != nil {
		return pc, fmt.Errorf("decode context: %w", err)
	}
	return pc, nil
}

// copyInputs points sub at copies inside dir so the originals survive the
// pipeline's cleanup.
func copyInputs(sub pipeline.Submission, dir string) (pipeline.Submission, error) {
	n := 0
	dup := func(src string) (string, error) {
		n++
		dst := filepath.Join(dir, strconv.Itoa(n)+"_"+filepath.Base(src))
		return dst, copyFile(src, dst)
	}
	if sub.CardPath != "" {
		p, err := dup(sub.CardPath)
		if err != nil {
			return sub, err
		}
		sub.CardPath = p
	}
	hearing := make([]string, 0, len(sub.HearingPaths))
	for _, h := range sub.HearingPaths {
		p, err := dup(h)
		if err != nil {
			return sub, err
		}
		hearing = append(hearing, p)
	}
	sub.HearingPaths = hearing
	return sub, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

type outcomeView struct {
	ProcessID  string `json:"process_id"`
	Status     string `json:"status"`
	Stage      string `json:"stage"`
	RecordID   string `json:"record_id,omitempty"`
	CardURL    string `json:"card_url,omitempty"`
	ImageCount int    `json:"image_count"`
	Attached   int    `json:"attached"`
	Error      string `json:"error,omitempty"`
}

func printOutcome(cmd *cobra.Command, ctx *commandContext, out pipeline.Outcome) error {
	view := outcomeView{
		ProcessID:  out.ProcessID.String(),
		Status:     string(out.Status),
		Stage:      out.Stage,
		RecordID:   out.RecordID,
		CardURL:    out.CardURL,
		ImageCount: out.ImageCount,
		Attached:   out.Attached,
	}
	if out.Err != nil {
		view.Error = out.Err.Error()
	}
	if ctx.JSONMode() {
		return writeJSON(cmd, view)
	}
	rows := [][]string{
		{"Process", view.ProcessID},
		{"Status", view.Status},
		{"Stage", view.Stage},
		{"Record", dash(view.RecordID)},
		{"Card URL", dash(view.CardURL)},
		{"Images", fmt.Sprintf("%d/%d attached", view.Attached, view.ImageCount)},
	}
	if view.Error != "" {
		rows = append(rows, []string{"Error", view.Error})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
	return nil
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
