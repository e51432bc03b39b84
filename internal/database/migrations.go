package database

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Migration is one versioned schema change, read from a pair of
// NNN_name.up.sql / NNN_name.down.sql files.
type Migration struct {
	Version  string
	Name     string
	UpSQL    string
	DownSQL  string
	Checksum string
}

// MigrationExecutor applies pending migrations against a database and
// records them in schema_migrations together with a content checksum,
// so that edits to already-applied files are caught at startup.
type MigrationExecutor struct {
	db *sql.DB
}

// NewMigrationExecutor creates a new migration executor
func NewMigrationExecutor(db *sql.DB) *MigrationExecutor {
	return &MigrationExecutor{db: db}
}

// RunMigrations applies every migration under dir that has not been
// applied yet, in version order. It fails if a previously applied
// migration file no longer matches its recorded checksum.
func (m *MigrationExecutor) RunMigrations(dir string) error {
	if _, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			name VARCHAR(500),
			checksum VARCHAR(64),
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	migrations, err := loadMigrationDir(dir)
	if err != nil {
		return fmt.Errorf("failed to load migrations from %s: %w", dir, err)
	}

	applied, err := m.appliedChecksums()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, mig := range migrations {
		recorded, done := applied[mig.Version]
		if done {
			if recorded != "" && recorded != mig.Checksum {
				return fmt.Errorf(
					"migration %s (%s) was modified after being applied: recorded checksum %s, file checksum %s; restore the file or add a new migration",
					mig.Version, mig.Name, recorded, mig.Checksum)
			}
			continue
		}
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("migration %s failed: %w", mig.Version, err)
		}
		slog.Info("Applied migration", "version", mig.Version, "name", mig.Name)
	}

	return nil
}

// loadMigrationDir pairs up the .up.sql and .down.sql files in dir and
// returns them sorted by version prefix. Files without an up half are
// skipped.
func loadMigrationDir(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	byVersion := make(map[string]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		stem, isUp := strings.CutSuffix(filename, ".up.sql")
		if !isUp {
			var isDown bool
			stem, isDown = strings.CutSuffix(filename, ".down.sql")
			if !isDown {
				continue
			}
		}

		version, name, ok := strings.Cut(stem, "_")
		if !ok {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, filename))
		if err != nil {
			return nil, err
		}

		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{Version: version, Name: name}
			byVersion[version] = mig
		}
		if isUp {
			mig.UpSQL = string(content)
			sum := sha256.Sum256(content)
			mig.Checksum = hex.EncodeToString(sum[:])
		} else {
			mig.DownSQL = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.UpSQL != "" {
			migrations = append(migrations, *mig)
		}
	}
	slices.SortFunc(migrations, func(a, b Migration) int {
		return strings.Compare(a.Version, b.Version)
	})

	return migrations, nil
}

// appliedChecksums returns version -> recorded checksum for every
// migration already in schema_migrations.
func (m *MigrationExecutor) appliedChecksums() (map[string]string, error) {
	rows, err := m.db.Query(`SELECT version, COALESCE(checksum, '') FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}

// apply runs one migration and records it in the same transaction.
func (m *MigrationExecutor) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			slog.Error("Failed to rollback migration transaction", "error", err)
		}
	}()

	if _, err := tx.Exec(mig.UpSQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
		mig.Version, mig.Name, mig.Checksum,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
