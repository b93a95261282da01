package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cardlead/internal/entity"
	"github.com/joseph-ayodele/cardlead/internal/ledger"
)

// RunLister is the part of the ledger the exporter reads.
type RunLister interface {
	List(ctx context.Context, f ledger.ListFilter) ([]entity.Run, error)
}

// Service produces XLSX workbooks of the run history.
type Service struct {
	runs   RunLister
	logger *slog.Logger
}

func NewService(runs RunLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runs: runs, logger: logger}
}

const (
	sheet      = "Runs"
	timeLayout = "2006-01-02 15:04:05"
)

// ExportRunsXLSX returns a workbook of the runs queued in [from, to).
// If only from is provided -> from..now.
// If neither is provided   -> every run.
func (s *Service) ExportRunsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	runs, err := s.runs.List(ctx, ledger.ListFilter{Since: from, Until: to})
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(idx)

	headers := []string{
		"Process ID",
		"Status",
		"Stage",
		"Input Mode",
		"Assignee",
		"Images",
		"Record ID",
		"Card URL",
		"Queued At",
		"Started At",
		"Finished At",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	for i, r := range runs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.ProcessID.String())
		write(2, string(r.Status))
		write(3, r.Stage)
		write(4, string(r.InputMode))
		write(5, r.Assignee)
		write(6, r.ImageCount)
		write(7, deref(r.RecordID))
		write(8, deref(r.CardURL))
		write(9, r.QueuedAt.Format(timeLayout))
		write(10, formatTime(r.StartedAt))
		write(11, formatTime(r.FinishedAt))
		write(12, deref(r.ErrorMessage))
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // process id
	_ = f.SetColWidth(sheet, "B", "E", 14)
	_ = f.SetColWidth(sheet, "G", "H", 40)
	_ = f.SetColWidth(sheet, "I", "K", 20)
	_ = f.SetColWidth(sheet, "L", "L", 60) // error

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(runs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}
