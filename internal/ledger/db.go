package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/cardlead/internal/common"
)

// Config selects the ledger database.
type Config struct {
	Driver      string // "sqlite" or "pgx"
	DSN         string
	MaxConns    int32
	DialTimeout time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	process_id    TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	input_mode    TEXT NOT NULL,
	assignee      TEXT NOT NULL DEFAULT '',
	stage         TEXT NOT NULL DEFAULT '',
	record_id     TEXT,
	error_message TEXT,
	card_url      TEXT,
	image_count   INTEGER NOT NULL DEFAULT 0,
	queued_at     BIGINT NOT NULL,
	started_at    BIGINT,
	finished_at   BIGINT
)`

const indexes = `CREATE INDEX IF NOT EXISTS runs_queued_at_idx ON runs (queued_at)`

// Open connects to the configured database and creates the runs table if needed.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	var (
		db   *sql.DB
		pool *pgxpool.Pool
		name string
	)
	switch cfg.Driver {
	case "sqlite":
		var err error
		db, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		db.SetMaxOpenConns(1)
		name = dialect.SQLite
	case "pgx":
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse ledger dsn: %w", err)
		}
		if cfg.MaxConns > 0 {
			pc.MaxConns = cfg.MaxConns
		}
		pc.ConnConfig.RuntimeParams["application_name"] = "cardlead"

		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		pool, err = pgxpool.NewWithConfig(dialCtx, pc)
		if err != nil {
			return nil, fmt.Errorf("connect ledger: %w", err)
		}
		db = stdlib.OpenDBFromPool(pool)
		name = dialect.Postgres
	default:
		return nil, fmt.Errorf("%w: unsupported ledger driver %q", common.ErrConfig, cfg.Driver)
	}

	l := &Ledger{db: db, pool: pool, dialect: name, logger: logger}
	if err := l.migrate(ctx); err != nil {
		l.Close()
		return nil, err
	}
	logger.Info("ledger.open.ok", "driver", cfg.Driver)
	return l, nil
}

func (l *Ledger) migrate(ctx context.Context) error {
	for _, stmt := range []string{schema, indexes} {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

// Ping checks the connection, bounded by timeout when positive.
func (l *Ledger) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := common.WithTimeout(ctx, timeout)
	defer cancel()
	if err := l.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ledger: %w", common.ErrServiceUnhealthy, err)
	}
	return nil
}

// Close releases the database handles.
func (l *Ledger) Close() {
	if l.db != nil {
		if err := l.db.Close(); err != nil {
			l.logger.Error("ledger.close.failed", "error", err)
		}
	}
	if l.pool != nil {
		l.pool.Close()
	}
}
