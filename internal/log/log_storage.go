// log_storage.go implements SQLite-based persistent audit logging.
//
// Separated from log.go to isolate database concerns. The main log.go provides
// the fluent API for building log entries, while this file handles persistence.
// Each process run gets a session id so the entries of one gateway lifetime
// can be pulled out together; the working directory is stored as a hash so
// entries from different checkouts can be told apart without recording paths.
//
// Design: Errors during logging are reported to stderr and otherwise ignored
// (best-effort). A tool call should succeed even if we can't record it.

package log

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"
)

// Logger writes audit log entries to a SQLite database.
type Logger struct {
	db      *sql.DB
	session string
	workdir string
}

func (l *Logger) log(e Entry) {
	var detail *string
	if len(e.Detail) > 0 {
		if b, err := json.Marshal(e.Detail); err == nil {
			s := string(b)
			detail = &s
		}
	}

	success := 0
	if e.Success {
		success = 1
	}

	_, err := l.db.Exec(`
		INSERT INTO log (start, end, duration_ms, session, workdir, source, author, action,
		                 connection_id, target, tool, success, error, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Start.Unix(), e.End.Unix(), e.End.Sub(e.Start).Milliseconds(),
		l.session, l.workdir, e.Source, nilIfEmpty(e.Author), e.Action,
		nilIfEmpty(e.Connection), nilIfEmpty(e.Target), nilIfEmpty(e.Tool),
		success, nilIfEmpty(e.Error), detail,
	)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "nvimcp: audit log write failed: %v\n", err)
	}
}

// Prune deletes entries that started more than olderThan ago and returns
// how many were removed. It is a no-op when the logger is not open.
func Prune(olderThan time.Duration) (int64, error) {
	mu.Lock()
	l := global
	mu.Unlock()
	if l == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan).Unix()
	res, err := l.db.Exec(`DELETE FROM log WHERE start < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit log: %w", err)
	}
	return res.RowsAffected()
}

// dbPathFunc is the function that returns the database path.
// Tests can override this to use a temp directory.
var dbPathFunc = defaultDBPath

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fall back to current directory if home cannot be determined.
		return filepath.Join(".nvimcp", "log", "nvimcp-log.db")
	}
	return filepath.Join(home, ".nvimcp", "log", "nvimcp-log.db")
}

func dbPath() string {
	return dbPathFunc()
}

// DBPath returns the path to the log database.
func DBPath() string {
	return dbPath()
}

// SetPath points the logger at p for subsequent Open calls. An empty path
// restores the default location.
func SetPath(p string) {
	mu.Lock()
	defer mu.Unlock()
	if p == "" {
		dbPathFunc = defaultDBPath
		return
	}
	dbPathFunc = func() string { return p }
}

// hash shortens a local path to a 16 hex char identifier.
func hash(s string) string {
	h, err := blake2b.New(8, nil)
	if err != nil {
		panic("blake2b.New failed: " + err.Error())
	}
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

// migrate creates the log table if it doesn't exist. Safe for concurrent access.
func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS log (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			start         INTEGER NOT NULL,
			end           INTEGER NOT NULL,
			duration_ms   INTEGER NOT NULL,
			session       TEXT NOT NULL,
			workdir       TEXT NOT NULL,
			source        TEXT NOT NULL,
			author        TEXT,
			action        TEXT NOT NULL,
			connection_id TEXT,
			target        TEXT,
			tool          TEXT,
			success       INTEGER NOT NULL,
			error         TEXT,
			detail        TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_log_start ON log(start);
		CREATE INDEX IF NOT EXISTS idx_log_session ON log(session);
		CREATE INDEX IF NOT EXISTS idx_log_connection ON log(connection_id);
	`)
	return err
}

// nilIfEmpty returns nil for empty strings, reducing NULL checks in queries.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
