package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	StepPrepare     = "prepare"
	StepSyncLogs    = "sync_logs"
	StepDiscover    = "discover"
	StepReport      = "report"
	StepSyncReports = "sync_reports"

	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Entry is one recorded step of a run.
type Entry struct {
	RunID    string
	Site     string
	Year     string
	Month    string
	Step     string
	Status   string
	Output   string
	Files    int
	Duration time.Duration
	Err      string
	At       time.Time
}

var columns = []string{"run_id", "site", "year", "month", "step", "status", "output_path", "files", "duration_ms", "error", "created_at"}

func (e Entry) row() []any {
	var errCol any
	if e.Err != "" {
		errCol = e.Err
	}
	return []any{e.RunID, e.Site, e.Year, e.Month, e.Step, e.Status, e.Output, e.Files, e.Duration.Milliseconds(), errCol, e.At.UTC()}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Ledger buffers entries and writes them in chunks on Flush.
type Ledger struct {
	db    execer
	chunk int

	mu      sync.Mutex
	pending []Entry
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, chunk: 500}
}

func (l *Ledger) Record(_ context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	l.mu.Lock()
	l.pending = append(l.pending, e)
	l.mu.Unlock()
	return nil
}

func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	rows := make([][]any, len(l.pending))
	for i, e := range l.pending {
		rows[i] = e.row()
	}
	l.pending = nil
	l.mu.Unlock()
	return chunkedExec(ctx, l.db, Table, columns, rows, l.chunk)
}

func chunkedExec(ctx context.Context, db execer, table string, cols []string, rows [][]any, chunk int) error {
	if len(rows) == 0 {
		return nil
	}
	if chunk <= 0 {
		chunk = 500
	}
	for i := 0; i < len(rows); i += chunk {
		j := i + chunk
		if j > len(rows) {
			j = len(rows)
		}
		query, args := insertStatement(table, cols, rows[i:j])
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func insertStatement(table string, cols []string, rows [][]any) (string, []any) {
	pl := "(" + strings.TrimRight(strings.Repeat("?,", len(cols)), ",") + ")"
	valPlace := strings.TrimRight(strings.Repeat(pl+",", len(rows)), ",")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ","), valPlace)

	args := make([]any, 0, len(rows)*len(cols))
	for _, r := range rows {
		args = append(args, r...)
	}
	return query, args
}
