// Package state keeps an informational journal of pipeline runs in SQLite.
// The journal is history only: the fetch phase never consults it, presence
// on disk stays the sole resume signal.
package state

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"packfetch/internal/utils"
)

var (
	db         *sql.DB
	dbMu       sync.Mutex
	dbPath     string
	configured bool
)

// Configure sets the path for the SQLite database. Callers must do this
// before any journal operations so the DB is process-wide.
func Configure(path string) {
	dbMu.Lock()
	defer dbMu.Unlock()
	dbPath = path
	configured = true
}

// initDB opens the SQLite database and ensures schema exists.
// It is safe to call multiple times.
func initDB() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		return nil
	}
	if !configured || dbPath == "" {
		return fmt.Errorf("journal database not configured: call state.Configure() first")
	}

	var err error
	db, err = sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		package TEXT NOT NULL,
		manifest_url TEXT,
		status TEXT,
		primary_asset TEXT,
		files_total INTEGER,
		files_failed INTEGER,
		started_at INTEGER,
		finished_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS run_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		url TEXT,
		path TEXT,
		error TEXT,
		FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`

	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// CloseDB closes the database to release file handles on shutdown.
func CloseDB() {
	dbMu.Lock()
	defer dbMu.Unlock()
	if db != nil {
		db.Close()
		db = nil
	}
}

func getDB() (*sql.DB, error) {
	if db == nil {
		if err := initDB(); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// withTx wraps a unit of work in a transaction and handles rollback/commit.
func withTx(fn func(*sql.Tx) error) error {
	d, err := getDB()
	if err != nil {
		return err
	}

	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RunRecord is one journal row.
type RunRecord struct {
	ID           string
	Package      string
	ManifestURL  string
	Status       string
	PrimaryAsset string
	FilesTotal   int
	FilesFailed  int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// FileRecord is one per-file outcome row.
type FileRecord struct {
	RunID string
	URL   string
	Path  string
	Error string
}

// RecordRunStart inserts a new run in "running" state.
func RecordRunStart(runID, pkg string) error {
	return withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO runs (id, package, status, started_at) VALUES (?, ?, 'running', ?)`,
			runID, pkg, time.Now().Unix())
		return err
	})
}

// RecordRunResult finalizes a run row and stores per-file outcomes.
func RecordRunResult(run RunRecord, files []FileRecord) error {
	return withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`UPDATE runs SET manifest_url = ?, status = ?, primary_asset = ?,
			 files_total = ?, files_failed = ?, finished_at = ? WHERE id = ?`,
			run.ManifestURL, run.Status, run.PrimaryAsset,
			run.FilesTotal, run.FilesFailed, time.Now().Unix(), run.ID)
		if err != nil {
			return err
		}
		for _, f := range files {
			if _, err := tx.Exec(
				`INSERT INTO run_files (run_id, url, path, error) VALUES (?, ?, ?, ?)`,
				run.ID, f.URL, f.Path, f.Error); err != nil {
				return err
			}
		}
		return nil
	})
}

// History returns the most recent runs, newest first.
func History(limit int) ([]RunRecord, error) {
	d, err := getDB()
	if err != nil {
		return nil, err
	}

	rows, err := d.Query(
		`SELECT id, package, COALESCE(manifest_url, ''), COALESCE(status, ''),
		        COALESCE(primary_asset, ''), COALESCE(files_total, 0),
		        COALESCE(files_failed, 0), COALESCE(started_at, 0), COALESCE(finished_at, 0)
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Package, &r.ManifestURL, &r.Status,
			&r.PrimaryAsset, &r.FilesTotal, &r.FilesFailed, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(started, 0)
		r.FinishedAt = time.Unix(finished, 0)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	utils.Debug("Journal history query returned %d runs", len(records))
	return records, nil
}
