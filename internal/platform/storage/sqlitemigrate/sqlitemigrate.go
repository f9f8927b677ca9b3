// Package sqlitemigrate applies embedded SQL migrations to a SQLite database.
package sqlitemigrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

const (
	migrationTable = "schema_migrations"

	markerUp   = "-- +migrate Up"
	markerDown = "-- +migrate Down"
)

// Migration is one embedded SQL file.
type Migration struct {
	Name     string
	UpSQL    string
	Checksum string
}

// Load reads every .sql file under root in lexical order.
func Load(migrationFS fs.FS, root string) ([]Migration, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	migrations := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		name := entry.Name()
		if root != "." {
			name = path.Join(root, name)
		}
		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sum := sha256.Sum256(content)
		migrations = append(migrations, Migration{
			Name:     name,
			UpSQL:    ExtractUpMigration(string(content)),
			Checksum: hex.EncodeToString(sum[:8]),
		})
	}
	slices.SortFunc(migrations, func(a, b Migration) int { return strings.Compare(a.Name, b.Name) })
	return migrations, nil
}

// ApplyMigrations executes embedded migrations from root at most once per file.
// A migration whose recorded checksum no longer matches its file is an error.
func ApplyMigrations(ctx context.Context, sqlDB *sql.DB, migrationFS fs.FS, root string) error {
	if sqlDB == nil {
		return errors.New("sql db is required")
	}
	migrations, err := Load(migrationFS, root)
	if err != nil {
		return err
	}

	if _, err := sqlDB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    checksum TEXT NOT NULL DEFAULT '',
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, m := range migrations {
		checksum, applied, err := recorded(ctx, sqlDB, m.Name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.Name, err)
		}
		if applied {
			if checksum != "" && checksum != m.Checksum {
				return fmt.Errorf("migration %s changed after it was applied", m.Name)
			}
			continue
		}
		if strings.TrimSpace(m.UpSQL) == "" {
			continue
		}
		if err := apply(ctx, sqlDB, m); err != nil {
			return err
		}
	}
	return nil
}

func apply(ctx context.Context, sqlDB *sql.DB, m Migration) error {
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil && !IsAlreadyExistsError(err) {
		return fmt.Errorf("exec migration %s: %w", m.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+migrationTable+" (name, checksum, applied_at) VALUES (?, ?, ?)",
		m.Name, m.Checksum, time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("record migration %s: %w", m.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.Name, err)
	}
	return nil
}

// ExtractUpMigration returns the SQL in the -- +migrate Up section.
// Files without markers are applied whole.
func ExtractUpMigration(content string) string {
	upIdx := strings.Index(content, markerUp)
	if upIdx == -1 {
		return content
	}
	body := content[upIdx+len(markerUp):]
	if downIdx := strings.Index(body, markerDown); downIdx != -1 {
		body = body[:downIdx]
	}
	return body
}

// IsAlreadyExistsError reports whether err indicates idempotent DDL success.
func IsAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}

func recorded(ctx context.Context, sqlDB *sql.DB, name string) (string, bool, error) {
	var checksum string
	err := sqlDB.QueryRowContext(ctx, "SELECT checksum FROM "+migrationTable+" WHERE name = ?", name).Scan(&checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return checksum, true, nil
}
