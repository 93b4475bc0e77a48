package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const Table = "reportgen_runs"

const createTable = `
CREATE TABLE IF NOT EXISTS ` + Table + ` (
	id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
	run_id      VARCHAR(40)  NOT NULL,
	site        VARCHAR(255) NOT NULL,
	year        CHAR(4)      NOT NULL,
	month       CHAR(2)      NOT NULL DEFAULT '',
	step        VARCHAR(16)  NOT NULL,
	status      VARCHAR(16)  NOT NULL,
	output_path VARCHAR(1024) NOT NULL DEFAULT '',
	files       INT          NOT NULL DEFAULT 0,
	duration_ms BIGINT       NOT NULL DEFAULT 0,
	error       TEXT         NULL,
	created_at  DATETIME     NOT NULL,
	KEY idx_site_period (site, year, month)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// EnsureSchema creates the runs table when it is missing.
func EnsureSchema(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create %s: %w", Table, err)
	}
	ok, err := CheckSchema(ctx, conn)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("table %s not visible after create", Table)
	}
	return nil
}

// CheckSchema reports whether the runs table exists in the selected database.
func CheckSchema(ctx context.Context, conn *sql.DB) (bool, error) {
	schema, err := currentSchema(ctx, conn)
	if err != nil {
		return false, err
	}
	const q = `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?
	`
	var c int
	if err := conn.QueryRowContext(ctx, q, schema, Table).Scan(&c); err != nil {
		return false, fmt.Errorf("schema check: %w", err)
	}
	return c > 0, nil
}

func currentSchema(ctx context.Context, conn *sql.DB) (string, error) {
	var s sql.NullString
	if err := conn.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&s); err != nil {
		return "", fmt.Errorf("SELECT DATABASE() failed: %w", err)
	}
	if !s.Valid || s.String == "" {
		return "", errors.New("no database selected")
	}
	return s.String, nil
}
