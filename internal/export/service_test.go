package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/entity"
	"github.com/joseph-ayodele/cardlead/internal/ledger"
)

type stubRuns struct {
	runs   []entity.Run
	err    error
	filter ledger.ListFilter
}

func (s *stubRuns) List(_ context.Context, f ledger.ListFilter) ([]entity.Run, error) {
	s.filter = f
	return s.runs, s.err
}

func TestExportRunsXLSX(t *testing.T) {
	rec := "rec-1"
	msg := "append rejected"
	queued := time.Date(2025, 4, 3, 9, 0, 0, 0, time.Local)
	stub := &stubRuns{runs: []entity.Run{
		{
			ProcessID:    "pid-1",
			Status:       constants.RunStatusPartial,
			Stage:        "attach",
			InputMode:    constants.InputModeImage,
			Assignee:     "佐藤",
			ImageCount:   3,
			RecordID:     &rec,
			ErrorMessage: &msg,
			QueuedAt:     queued,
		},
	}}
	from := queued.Add(-time.Hour)

	data, err := NewService(stub, nil).ExportRunsXLSX(context.Background(), &from, nil)
	require.NoError(t, err)
	require.NotNil(t, stub.filter.Since)
	assert.Nil(t, stub.filter.Until)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Runs"}, f.GetSheetList())
	rows, err := f.GetRows("Runs")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Process ID", rows[0][0])
	assert.Equal(t, "pid-1", rows[1][0])
	assert.Equal(t, "PARTIAL", rows[1][1])
	assert.Equal(t, "佐藤", rows[1][4])
	assert.Equal(t, "3", rows[1][5])
	assert.Equal(t, "rec-1", rows[1][6])
	assert.Equal(t, "2025-04-03 09:00:00", rows[1][8])
	assert.Equal(t, "append rejected", rows[1][11])
}

func TestExportRunsXLSX_QueryError(t *testing.T) {
	_, err := NewService(&stubRuns{err: errors.New("db down")}, nil).ExportRunsXLSX(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "db down")
}
