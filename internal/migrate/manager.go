package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const defaultMigrationsTable = "schema_migrations"

// Manager applies SQL migration files from an fs.FS in lexical order,
// recording each applied file with a checksum so drift is detected.
type Manager struct {
	db    *sql.DB
	files fs.FS
	table string
}

// Option configures Manager.
type Option func(*Manager)

// WithTable overrides the bookkeeping table name.
func WithTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.table = name
		}
	}
}

// NewManager constructs a Manager over a migration filesystem.
func NewManager(db *sql.DB, files fs.FS, opts ...Option) *Manager {
	m := &Manager{db: db, files: files, table: defaultMigrationsTable}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations and returns the names applied.
func (m *Manager) Up(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	names, err := m.pendingNames(ctx)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, name := range names {
		if err := m.apply(ctx, name); err != nil {
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

func (m *Manager) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			name       text primary key,
			checksum   text not null,
			applied_at timestamptz not null
		)`, m.table))
	return err
}

func (m *Manager) pendingNames(ctx context.Context) ([]string, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, err
	}

	appliedSums, err := m.appliedChecksums(ctx)
	if err != nil {
		return nil, err
	}

	var pending []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		sum, ok := appliedSums[name]
		if !ok {
			pending = append(pending, name)
			continue
		}
		current, err := m.checksum(name)
		if err != nil {
			return nil, err
		}
		if current != sum {
			return nil, fmt.Errorf("migration %s changed after being applied", name)
		}
	}
	sort.Strings(pending)
	return pending, nil
}

func (m *Manager) appliedChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name, checksum from %s`, m.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, err
		}
		applied[name] = sum
	}
	return applied, rows.Err()
}

func (m *Manager) apply(ctx context.Context, name string) error {
	contents, err := fs.ReadFile(m.files, name)
	if err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
		return err
	}
	sum := sha256.Sum256(contents)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`insert into %s (name, checksum, applied_at) values ($1, $2, $3)`, m.table),
		name, hex.EncodeToString(sum[:]), time.Now().UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) checksum(name string) (string, error) {
	contents, err := fs.ReadFile(m.files, name)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(contents)
	return hex.EncodeToString(sum[:]), nil
}
