package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// ErrSchemaTooNew is returned when the database was written by a build that
// knows more migrations than this one.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

// schemaStep is one forward-only change to the kv schema. The applied
// version is tracked in sqlite's user_version header field.
type schemaStep struct {
	version int
	name    string
	sql     string
}

// schemaSteps reads migrations/NNNN_name.sql in version order. Versions must
// start at 1 and have no gaps.
func schemaSteps() ([]schemaStep, error) {
	entries, err := fs.ReadDir(schemaFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	steps := make([]schemaStep, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, err := parseStepName(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("migration %q: %w", entry.Name(), err)
		}
		body, err := fs.ReadFile(schemaFS, path.Join("migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("migration %q: %w", entry.Name(), err)
		}
		steps = append(steps, schemaStep{version: version, name: name, sql: string(body)})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	for i, s := range steps {
		if s.version != i+1 {
			return nil, fmt.Errorf("migration %04d_%s: expected version %04d", s.version, s.name, i+1)
		}
	}
	return steps, nil
}

// parseStepName splits "0002_kv_expiry_index.sql" into 2 and "kv_expiry_index".
func parseStepName(file string) (int, string, error) {
	base, ok := strings.CutSuffix(file, ".sql")
	if !ok {
		return 0, "", errors.New("want .sql suffix")
	}
	num, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", errors.New("want NNNN_name.sql")
	}
	version, err := strconv.Atoi(num)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("version %q must be a positive integer", num)
	}
	return version, name, nil
}

// schemaVersion reads the applied version from the database header.
func schemaVersion(ctx context.Context, conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// migrateUp applies every step above the stored version. Each step and its
// version bump commit together.
func migrateUp(ctx context.Context, conn *sql.DB) error {
	steps, err := schemaSteps()
	if err != nil {
		return err
	}

	current, err := schemaVersion(ctx, conn)
	if err != nil {
		return err
	}
	if current > len(steps) {
		return fmt.Errorf("%w: database at %d, build knows %d", ErrSchemaTooNew, current, len(steps))
	}

	for _, s := range steps[current:] {
		log.Info().Int("version", s.version).Str("step", s.name).Msg("migrating kv schema")
		if err := applyStep(ctx, conn, s); err != nil {
			return fmt.Errorf("migration %04d_%s: %w", s.version, s.name, err)
		}
	}
	return nil
}

func applyStep(ctx context.Context, conn *sql.DB, s schemaStep) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.sql); err != nil {
		return err
	}
	// PRAGMA does not accept bind parameters; version is a parsed int.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", s.version)); err != nil {
		return err
	}
	return tx.Commit()
}
