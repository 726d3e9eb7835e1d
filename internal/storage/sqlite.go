package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/errorblob/internal/model"
	"github.com/kalambet/errorblob/internal/ranking"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps records in an embedded SQLite database and ranks them
// in-process with the same ranker as FileStore.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	ranker ranking.Ranker
	now    func() time.Time
}

// OpenSQLite opens (or creates) the database at path and runs pending
// migrations. Pass ":memory:" for an in-memory database (used by tests).
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, &model.StorageError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &model.StorageError{Op: "open", Path: path, Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &model.StorageError{Op: "open", Path: path, Err: err}
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Concurrent CLI invocations wait briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, &model.StorageError{Op: "configure", Path: path, Err: fmt.Errorf("setting busy timeout: %w", err)}
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, &model.StorageError{Op: "configure", Path: path, Err: fmt.Errorf("setting journal mode: %w", err)}
	}

	s := &SQLiteStore{db: db, path: path, ranker: ranking.NewLexical(), now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, &model.StorageError{Op: "migrate", Path: path, Err: err}
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// appliedMigrations returns the applied migration versions in ascending order.
func (s *SQLiteStore) appliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Commit inserts a new record. AUTOINCREMENT keeps ids of deleted rows
// from being reused.
func (s *SQLiteStore) Commit(ctx context.Context, d model.Draft) (model.Record, error) {
	if err := d.Validate(); err != nil {
		return model.Record{}, err
	}

	rec := model.NewRecord("", d, s.now())
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return model.Record{}, &model.StorageError{Op: "commit", Path: s.path, Err: err}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO errors (error_text, fix_text, tags, author, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ErrorText, rec.FixText, string(tags), rec.Author, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return model.Record{}, &model.StorageError{Op: "commit", Path: s.path, Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Record{}, &model.StorageError{Op: "commit", Path: s.path, Err: err}
	}
	rec.ID = strconv.FormatInt(id, 10)
	return rec, nil
}

// Look ranks every stored record against query.
func (s *SQLiteStore) Look(ctx context.Context, query string, limit int) ([]model.Match, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be at least 1, got %d", model.ErrInvalidArgument, limit)
	}
	recs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.Top(s.ranker, query, recs, limit), nil
}

// List returns all records in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, error_text, fix_text, tags, author, created_at
		FROM errors ORDER BY id ASC`)
	if err != nil {
		return nil, &model.StorageError{Op: "list", Path: s.path, Err: err}
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		var (
			r         model.Record
			id        int64
			tags      string
			createdAt string
		)
		if err := rows.Scan(&id, &r.ErrorText, &r.FixText, &tags, &r.Author, &createdAt); err != nil {
			return nil, &model.StorageError{Op: "list", Path: s.path, Err: err}
		}
		r.ID = strconv.FormatInt(id, 10)
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			return nil, &model.StorageError{Op: "list", Path: s.path, Err: fmt.Errorf("parsing tags of record %d: %w", id, err)}
		}
		if r.Tags == nil {
			r.Tags = []string{}
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, &model.StorageError{Op: "list", Path: s.path, Err: fmt.Errorf("parsing created_at: %w", err)}
		}
		r.CreatedAt = t
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "list", Path: s.path, Err: err}
	}
	return records, nil
}

// Delete removes a record by id and reports whether a row was removed.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := parseID(id)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM errors WHERE id = ?`, n)
	if err != nil {
		return false, &model.StorageError{Op: "delete", Path: s.path, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, &model.StorageError{Op: "delete", Path: s.path, Err: err}
	}
	return affected > 0, nil
}

// Status reports the database path and row count.
func (s *SQLiteStore) Status(ctx context.Context) (model.Status, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM errors`).Scan(&count); err != nil {
		return model.Status{}, &model.StorageError{Op: "count", Path: s.path, Err: err}
	}
	return model.Status{
		Kind:       model.KindSQLite,
		Location:   s.path,
		Count:      count,
		CountKnown: true,
	}, nil
}
