package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/entity"
	"github.com/joseph-ayodele/cardlead/internal/pipeline"
)

const table = "runs"

var columns = []string{
	"process_id", "status", "input_mode", "assignee", "stage", "record_id",
	"error_message", "card_url", "image_count", "queued_at", "started_at", "finished_at",
}

// maxErrorLen caps stored error messages.
const maxErrorLen = 1000

// Ledger is the run history. It is written by the orchestrator and read by
// the operator CLI. Rows are never used to resume work.
type Ledger struct {
	db      *sql.DB
	pool    *pgxpool.Pool
	dialect string
	logger  *slog.Logger
}

var _ pipeline.RunRecorder = (*Ledger)(nil)

// ListFilter narrows List. Zero values mean no restriction.
type ListFilter struct {
	Status constants.RunStatus
	Since  *time.Time
	Until  *time.Time
	Limit  int
}

func (l *Ledger) builder() *entsql.DialectBuilder {
	return entsql.Dialect(l.dialect)
}

func (l *Ledger) exec(ctx context.Context, query string, args []any) (int64, error) {
	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (l *Ledger) RecordQueued(ctx context.Context, run entity.Run) error {
	query, args := l.builder().Insert(table).
		Columns(columns...).
		Values(
			run.ProcessID.String(), string(run.Status), string(run.InputMode), run.Assignee, run.Stage,
			nullString(run.RecordID), nullString(run.ErrorMessage), nullString(run.CardURL),
			run.ImageCount, millis(run.QueuedAt), nullMillis(run.StartedAt), nullMillis(run.FinishedAt),
		).Query()
	if _, err := l.exec(ctx, query, args); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ProcessID, err)
	}
	return nil
}

func (l *Ledger) RecordStarted(ctx context.Context, id entity.ProcessID, at time.Time) error {
	query, args := l.builder().Update(table).
		Set("status", string(constants.RunStatusRunning)).
		Set("stage", pipeline.StageStaging).
		Set("started_at", millis(at)).
		Where(entsql.EQ("process_id", id.String())).
		Query()
	n, err := l.exec(ctx, query, args)
	if err != nil {
		return fmt.Errorf("mark run %s started: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("mark run %s started: %w", id, common.ErrNotFound)
	}
	return nil
}

// RecordFinished stores the outcome of a run. A run that was never recorded
// as queued, such as a one-shot CLI run, is inserted.
func (l *Ledger) RecordFinished(ctx context.Context, out pipeline.Outcome, at time.Time) error {
	var errMsg *string
	if out.Err != nil {
		s := truncate(out.Err.Error(), maxErrorLen)
		errMsg = &s
	}
	recordID := optional(out.RecordID)
	cardURL := optional(out.CardURL)

	query, args := l.builder().Update(table).
		Set("status", string(out.Status)).
		Set("stage", out.Stage).
		Set("record_id", nullString(recordID)).
		Set("error_message", nullString(errMsg)).
		Set("card_url", nullString(cardURL)).
		Set("image_count", out.ImageCount).
		Set("finished_at", millis(at)).
		Where(entsql.EQ("process_id", out.ProcessID.String())).
		Query()
	n, err := l.exec(ctx, query, args)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", out.ProcessID, err)
	}
	if n > 0 {
		return nil
	}

	finished := at
	return l.RecordQueued(ctx, entity.Run{
		ProcessID:    out.ProcessID,
		Status:       out.Status,
		InputMode:    constants.InputModeImage,
		Stage:        out.Stage,
		RecordID:     recordID,
		ErrorMessage: errMsg,
		CardURL:      cardURL,
		ImageCount:   out.ImageCount,
		QueuedAt:     at,
		FinishedAt:   &finished,
	})
}

// MarkAbandoned closes every run left queued or running by a previous
// process. It returns the number of rows changed.
func (l *Ledger) MarkAbandoned(ctx context.Context, at time.Time) (int64, error) {
	query, args := l.builder().Update(table).
		Set("status", string(constants.RunStatusAbandoned)).
		Set("error_message", "process exited before the run finished").
		Set("finished_at", millis(at)).
		Where(entsql.In("status", string(constants.RunStatusQueued), string(constants.RunStatusRunning))).
		Query()
	n, err := l.exec(ctx, query, args)
	if err != nil {
		return 0, fmt.Errorf("mark abandoned runs: %w", err)
	}
	if n > 0 {
		l.logger.Warn("ledger.runs.abandoned", "count", n)
	}
	return n, nil
}

// Get returns one run or an error matching common.ErrNotFound.
func (l *Ledger) Get(ctx context.Context, id entity.ProcessID) (entity.Run, error) {
	b := l.builder()
	query, args := b.Select(columns...).
		From(b.Table(table)).
		Where(entsql.EQ("process_id", id.String())).
		Query()
	runs, err := l.query(ctx, query, args)
	if err != nil {
		return entity.Run{}, err
	}
	if len(runs) == 0 {
		return entity.Run{}, fmt.Errorf("run %s: %w", id, common.ErrNotFound)
	}
	return runs[0], nil
}

// List returns runs newest first.
func (l *Ledger) List(ctx context.Context, f ListFilter) ([]entity.Run, error) {
	b := l.builder()
	sel := b.Select(columns...).From(b.Table(table))
	var preds []*entsql.Predicate
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", string(f.Status)))
	}
	if f.Since != nil {
		preds = append(preds, entsql.GTE("queued_at", millis(*f.Since)))
	}
	if f.Until != nil {
		preds = append(preds, entsql.LT("queued_at", millis(*f.Until)))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy(entsql.Desc("queued_at"))
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	query, args := sel.Query()
	return l.query(ctx, query, args)
}

func (l *Ledger) query(ctx context.Context, query string, args []any) ([]entity.Run, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []entity.Run
	for rows.Next() {
		var (
			r                         entity.Run
			pid, status, mode         string
			recordID, errMsg, cardURL sql.NullString
			queued                    int64
			started, finished         sql.NullInt64
		)
		if err := rows.Scan(&pid, &status, &mode, &r.Assignee, &r.Stage, &recordID,
			&errMsg, &cardURL, &r.ImageCount, &queued, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.ProcessID = entity.ProcessID(pid)
		r.Status = constants.RunStatus(status)
		r.InputMode = constants.InputMode(mode)
		r.RecordID = fromNullString(recordID)
		r.ErrorMessage = fromNullString(errMsg)
		r.CardURL = fromNullString(cardURL)
		r.QueuedAt = time.UnixMilli(queued)
		r.StartedAt = fromNullMillis(started)
		r.FinishedAt = fromNullMillis(finished)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64)
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
