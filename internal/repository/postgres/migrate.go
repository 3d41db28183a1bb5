package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type Migration struct {
	Version int
	Name    string
	SQL     string
}

type MigrationStatus struct {
	Migration
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies the embedded migrations in version order.
type Migrator struct {
	BaseRepository
}

func NewMigrator(db *sqlx.DB) *Migrator {
	return &Migrator{NewBaseRepository(db)}
}

// LoadMigrations parses the embedded files. Names look like 0001_init.sql.
func LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	var out []Migration
	for _, e := range entries {
		name := e.Name()
		prefix, _, ok := strings.Cut(name, "_")
		if !ok || !strings.HasSuffix(name, ".sql") {
			return nil, fmt.Errorf("bad migration file name %q", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("bad migration version in %q: %w", name, err)
		}
		body, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Version: version, Name: strings.TrimSuffix(name, ".sql"), SQL: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// Up applies pending migrations, each in its own transaction, and returns how
// many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, s := range statuses {
		if s.Applied {
			continue
		}
		err := m.WithTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, s.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, s.Version, s.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("migration %s: %w", s.Name, err)
		}
		count++
	}
	return count, nil
}

func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	migrations, err := LoadMigrations()
	if err != nil {
		return nil, err
	}

	var applied []struct {
		Version   int       `db:"version"`
		AppliedAt time.Time `db:"applied_at"`
	}
	if err := m.db.SelectContext(ctx, &applied, `SELECT version, applied_at FROM schema_migrations`); err != nil {
		return nil, err
	}
	at := make(map[int]time.Time, len(applied))
	for _, a := range applied {
		at[a.Version] = a.AppliedAt
	}

	out := make([]MigrationStatus, 0, len(migrations))
	for _, mg := range migrations {
		s := MigrationStatus{Migration: mg}
		if t, ok := at[mg.Version]; ok {
			s.Applied = true
			s.AppliedAt = &t
		}
		out = append(out, s)
	}
	return out, nil
}
