// Package log provides the audit log for nvimcp operations.
// Entries are stored in ~/.nvimcp/log/nvimcp-log.db and record every
// connection change, tool call and resource read the gateway handles.
//
// # Fluent API
//
// Use the fluent builder API to construct and write log entries:
//
//	log.Event("mcp:connect", "connect").
//		Author("mcp").
//		Connection(id).
//		Target(target).
//		Write(err)
//
//	log.Event("mcp:exec_lua", "call").
//		Author("mcp").
//		Connection(id).
//		Detail("bytes", len(code)).
//		Write(err)
//
// The source parameter follows the format "mcp:{tool}" for MCP tools and
// resources, "gateway:{operation}" for gateway-internal events and
// "cli:{command}" for commands run from the terminal.
package log

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

var (
	global *Logger
	mu     sync.Mutex
)

// Entry represents a single log entry.
type Entry struct {
	Source     string // e.g., "mcp:connect", "gateway:connection_lost"
	Author     string // who performed the action
	Action     string // verb: connect, disconnect, call, read, etc.
	Connection string // connection id the operation addressed
	Target     string // editor address the connection points at
	Tool       string // tool name for tool calls

	// Timing
	Start time.Time // when Event() was called
	End   time.Time // when Write() was called

	Success bool           // whether operation succeeded
	Error   string         // error message if failed
	Detail  map[string]any // additional operation-specific data
}

// Builder constructs a log entry using a fluent API.
// Create with [Event], chain methods to set fields, then call [Builder.Write]
// to write the entry.
type Builder struct {
	entry Entry
}

// Event creates a new log entry builder for an operation.
func Event(source, action string) *Builder {
	return &Builder{
		entry: Entry{
			Source: source,
			Action: action,
			Start:  time.Now(),
		},
	}
}

// Author sets who performed the operation. MCP requests use "mcp".
func (b *Builder) Author(author string) *Builder {
	b.entry.Author = author
	return b
}

// Connection sets the connection id this operation affects.
func (b *Builder) Connection(id string) *Builder {
	b.entry.Connection = id
	return b
}

// Target sets the editor address.
func (b *Builder) Target(target string) *Builder {
	b.entry.Target = target
	return b
}

// Tool sets the tool name for a tool call.
func (b *Builder) Tool(name string) *Builder {
	b.entry.Tool = name
	return b
}

// Detail adds a key-value pair to the log entry's detail map.
//
// Use for operation-specific data that doesn't fit standard fields:
// buffer ids, result counts, resource URIs, etc.
// Can be called multiple times to add multiple details.
func (b *Builder) Detail(key string, value any) *Builder {
	if b.entry.Detail == nil {
		b.entry.Detail = make(map[string]any)
	}
	b.entry.Detail[key] = value
	return b
}

// Write writes the log entry to the database, deriving success/failure from err.
//
// If err is nil, the entry is logged as successful.
// If err is non-nil, the entry is logged as failed with the error message.
func (b *Builder) Write(err error) {
	b.entry.End = time.Now()
	b.entry.Success = err == nil
	if err != nil {
		b.entry.Error = err.Error()
	}
	Log(b.entry)
}

// Open initialises the global logger. Safe to call multiple times.
// Errors are returned but callers may choose to ignore them (best-effort logging).
func Open() error {
	mu.Lock()
	defer mu.Unlock()

	if global != nil {
		return nil
	}

	p := dbPath()
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return err
	}

	global = &Logger{db: db, session: ulid.Make().String()}
	if wd, err := os.Getwd(); err == nil {
		global.workdir = hash(wd)
	}
	return nil
}

// Session returns the id tagging entries from this process, or "" when the
// logger is not open.
func Session() string {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		return ""
	}
	return global.session
}

// Log writes an entry. Safe to call if logger not initialised (no-op).
func Log(e Entry) {
	mu.Lock()
	l := global
	mu.Unlock()

	if l == nil {
		return
	}
	l.log(e)
}

// Close closes the global logger.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		global.db.Close()
		global = nil
	}
}
