package ledger

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"logreport/internal/config"
)

type fakeExec struct {
	queries []string
	args    [][]any
}

func (f *fakeExec) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, q)
	f.args = append(f.args, args)
	return nil, nil
}

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		MySQLUser: "rg", MySQLPassword: "pw", MySQLHost: "db.internal", MySQLPort: 3307, MySQLDB: "logreport",
		ConnectTimeout: 5 * time.Second, QueryTimeout: 30 * time.Second,
	}
	want := "rg:pw@tcp(db.internal:3307)/logreport?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci&loc=UTC&timeout=5s&readTimeout=30s&writeTimeout=30s"
	if got := DSN(cfg); got != want {
		t.Fatalf("DSN() = %s, want %s", got, want)
	}
}

func TestInsertStatement(t *testing.T) {
	q, args := insertStatement("t", []string{"a", "b"}, [][]any{{1, 2}, {3, 4}})
	if q != "INSERT INTO t (a,b) VALUES (?,?),(?,?)" {
		t.Fatalf("unexpected query %q", q)
	}
	if diff := cmp.Diff([]any{1, 2, 3, 4}, args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestFlushChunksRows(t *testing.T) {
	fx := &fakeExec{}
	l := &Ledger{db: fx, chunk: 2}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, m := range []string{"", "01", "02"} {
		_ = l.Record(context.Background(), Entry{
			RunID: "r1", Site: "example.com", Year: "2024", Month: m,
			Step: StepReport, Status: StatusOK, Files: i + 1, Duration: 1500 * time.Millisecond, At: at,
		})
	}
	_ = l.Record(context.Background(), Entry{RunID: "r1", Step: StepSyncReports, Status: StatusFailed, Err: "exit 1", At: at})

	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if len(fx.queries) != 2 {
		t.Fatalf("expected 2 chunked inserts, got %d", len(fx.queries))
	}
	if !strings.HasPrefix(fx.queries[0], "INSERT INTO reportgen_runs (run_id,site,year,month,step,status,output_path,files,duration_ms,error,created_at) VALUES ") {
		t.Fatalf("unexpected insert: %s", fx.queries[0])
	}
	if got := len(fx.args[0]); got != 2*len(columns) {
		t.Fatalf("expected %d args in first chunk, got %d", 2*len(columns), got)
	}
	first := fx.args[0][:len(columns)]
	want := []any{"r1", "example.com", "2024", "", StepReport, StatusOK, "", 1, int64(1500), nil, at}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Fatalf("first row mismatch (-want +got):\n%s", diff)
	}
	last := fx.args[1][len(columns):]
	if last[9] != "exit 1" {
		t.Fatalf("expected error column on failed row, got %v", last[9])
	}

	// flushed entries are not written twice
	if err := l.Flush(context.Background()); err != nil || len(fx.queries) != 2 {
		t.Fatalf("second Flush should be a no-op, got %d queries, err=%v", len(fx.queries), err)
	}
}
