package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/novasql/novasql/internal/bufferpool"
	"github.com/novasql/novasql/internal/heap"
	"github.com/novasql/novasql/internal/record"
	"github.com/novasql/novasql/internal/storage"
	"github.com/novasql/novasql/internal/wal"
)

var (
	ErrDatabaseClosed = errors.New("novasql: database is closed")
	ErrInvalidPageID  = errors.New("novasql: invalid page ID")
)

type DatabaseOperation interface {
	CreateTable(name string, schema record.Schema) (*heap.Table, error)
	OpenTable(name string) (*heap.Table, error)
	Close() error
}

type TableMeta struct {
	Name      string        `json:"name"`
	Schema    record.Schema `json:"schema"`
	PageCount uint32        `json:"page_count"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Indexes   []IndexMeta   `json:"indexes,omitempty"`
}

// IndexMeta describes one index registered against a table. It lives here
// rather than in the root package so TableMeta can embed it directly
// without an import cycle; the root package re-exports it as IndexMeta.
type IndexMeta struct {
	Name      string    `json:"name"`
	Kind      IndexKind `json:"kind"`
	KeyColumn string    `json:"key_column"`
	FileBase  string    `json:"file_base"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var _ DatabaseOperation = (*Database)(nil)

type Database struct {
	DataDir string
	SM      *storage.StorageManager
	Pool    *bufferpool.GlobalPool
	Wal     *wal.Manager // nil until EnableWAL succeeds

	mu    sync.RWMutex
	using string // selected logical database, "" until a USE statement runs
	// Locking and transaction bookkeeping live one layer up, in
	// internal/sql/executor.Executor (one LockManager/txn.Manager per
	// session), not here.
}

// NewDatabase creates a new database handle without touching the filesystem.
// A single GlobalPool is shared by every table and index the database
// opens, matching the buffer pool's single-mutex, single-replacer
// invariant.
func NewDatabase(dataDir string) *Database {
	sm := storage.NewStorageManager()
	return &Database{
		DataDir: dataDir,
		SM:      sm,
		Pool:    bufferpool.NewGlobalPool(sm, bufferpool.DefaultCapacity),
	}
}

// EnableWAL opens (or creates) a write-ahead log under DataDir/wal, replays
// any page images it holds against the data files (redo recovery from a
// prior crash), and attaches it to the buffer pool so every future
// write-back is logged first. NewDatabase does not do this itself, since
// it promises not to touch the filesystem; callers that own a real on-disk
// DataDir call EnableWAL once, right after construction.
func (db *Database) EnableWAL() error {
	dir := filepath.Join(db.DataDir, "wal")
	m, err := wal.Open(dir)
	if err != nil {
		return fmt.Errorf("novasql: open wal: %w", err)
	}
	if err := m.Recover(storage.NewWALWriter(db.SM)); err != nil {
		_ = m.Close()
		return fmt.Errorf("novasql: wal recovery: %w", err)
	}
	db.Wal = m
	db.Pool.SetWAL(m)
	return nil
}

// databasesDir is the parent of every logical database's own directory.
func (db *Database) databasesDir() string {
	return filepath.Join(db.DataDir, "databases")
}

func (db *Database) databaseDir(name string) string {
	return filepath.Join(db.databasesDir(), name)
}

// CreateDatabase creates a new logical database directory. It does not
// select it; a subsequent USE statement is required.
func (db *Database) CreateDatabase(name string) error {
	if err := validateIdent(name); err != nil {
		return err
	}
	dir := db.databaseDir(name)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("novasql: database %q already exists", name)
	}
	return os.MkdirAll(filepath.Join(dir, "tables"), 0o755)
}

// DropDatabase removes a logical database's directory. If it is the
// currently selected database, the selection is cleared.
func (db *Database) DropDatabase(name string) (any, error) {
	if err := validateIdent(name); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(db.databaseDir(name)); err != nil {
		return nil, err
	}
	db.mu.Lock()
	if db.using == name {
		db.using = ""
	}
	db.mu.Unlock()
	return nil, nil
}

// SelectDatabase switches the database used for subsequent table
// operations (the SQL "USE <name>" statement).
func (db *Database) SelectDatabase(name string) (any, error) {
	if err := validateIdent(name); err != nil {
		return nil, err
	}
	if _, err := os.Stat(db.databaseDir(name)); err != nil {
		return nil, fmt.Errorf("novasql: database %q does not exist", name)
	}
	db.mu.Lock()
	db.using = name
	db.mu.Unlock()
	return nil, nil
}

func (db *Database) tableDir() string {
	db.mu.RLock()
	using := db.using
	db.mu.RUnlock()
	if using == "" {
		return filepath.Join(db.DataDir, "tables")
	}
	return filepath.Join(db.databaseDir(using), "tables")
}

// TableDir exposes the current table directory to callers outside this
// package (the statement executor needs it to build index filesets).
func (db *Database) TableDir() string {
	return db.tableDir()
}

// BufferPool exposes the database's single shared buffer pool.
func (db *Database) BufferPool() *bufferpool.GlobalPool {
	return db.Pool
}

// ListTables scans the current table directory's meta files.
func (db *Database) ListTables() ([]*TableMeta, error) {
	dir := db.tableDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*TableMeta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".meta.json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".meta.json")
		meta, err := db.readTableMeta(name)
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

// DropTable removes a table's heap/overflow files and its meta file.
func (db *Database) DropTable(name string) error {
	if err := validateIdent(name); err != nil {
		return err
	}
	fs := storage.LocalFileSet{Dir: db.tableDir(), Base: name}
	if err := storage.RemoveAllSegments(fs); err != nil {
		return err
	}
	overflowFS := storage.LocalFileSet{Dir: db.tableDir(), Base: name + "_ovf"}
	if err := storage.RemoveAllSegments(overflowFS); err != nil {
		return err
	}
	if err := os.Remove(db.tableMetaPath(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (db *Database) tableMetaPath(name string) string {
	return filepath.Join(db.tableDir(), name+".meta.json")
}

// helper: return FileSet for a given table name.
func (db *Database) tableFileSet(name string) storage.FileSet {
	return storage.LocalFileSet{
		Dir:  db.tableDir(),
		Base: name,
	}
}

// writeTableMeta overwrites the meta file for a given table.
func (db *Database) writeTableMeta(meta *TableMeta) error {
	path := db.tableMetaPath(meta.Name)

	if err := os.MkdirAll(db.tableDir(), 0o755); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// readTableMeta loads table metadata from JSON file.
func (db *Database) readTableMeta(name string) (*TableMeta, error) {
	path := db.tableMetaPath(name)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta TableMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (db *Database) CreateTable(name string, schema record.Schema) (*heap.Table, error) {
	fs := db.tableFileSet(name)
	bp := db.Pool.View(fs)

	meta := &TableMeta{
		Name:      name,
		Schema:    schema,
		PageCount: 0,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.writeTableMeta(meta); err != nil {
		return nil, err
	}

	// Overflow data for this table is stored in a separate fileset with a
	// deterministic naming convention: "<table>_ovf".
	overflowFS := storage.LocalFileSet{
		Dir:  db.tableDir(),
		Base: name + "_ovf",
	}
	ovf := storage.NewOverflowManager(db.SM, overflowFS)

	tbl := heap.NewTable(name, schema, db.SM, fs, bp, ovf, 0)
	return tbl, nil
}

func (db *Database) OpenTable(name string) (*heap.Table, error) {
	fs := db.tableFileSet(name)

	meta, err := db.readTableMeta(name)
	if err != nil {
		return nil, err
	}

	// Count pages on disk as the single source of truth.
	pageCount, err := db.SM.CountPages(fs)
	if err != nil {
		return nil, err
	}

	// Refresh meta PageCount snapshot.
	meta.PageCount = pageCount
	meta.UpdatedAt = time.Now()

	// Best-effort update; if this fails, we still can open the table.
	if err := db.writeTableMeta(meta); err != nil {
		slog.Info("open table:: error write table meta", "err", err)
	}

	bp := db.Pool.View(fs)

	// Rebuild the overflow manager for this table based on the same naming
	// convention used in CreateTable.
	overflowFS := storage.LocalFileSet{
		Dir:  db.tableDir(),
		Base: name + "_ovf",
	}
	ovf := storage.NewOverflowManager(db.SM, overflowFS)

	tbl := heap.NewTable(name, meta.Schema, db.SM, fs, bp, ovf, pageCount)
	return tbl, nil
}

func (db *Database) Close() error {
	flushErr := db.Pool.FlushAll()
	if db.Wal == nil {
		return flushErr
	}
	if err := db.Wal.Close(); err != nil && flushErr == nil {
		return err
	}
	return flushErr
}

// Not supported yet: we do not have a real ALTER TABLE that rewrites data.
// UpdateTableSchema only updates the meta file schema definition.
func (db *Database) UpdateTableSchema(name string, newSchema record.Schema) error {
	meta, err := db.readTableMeta(name)
	if err != nil {
		return err
	}

	meta.Schema = newSchema
	meta.UpdatedAt = time.Now()

	return db.writeTableMeta(meta)
}

// SyncTableMetaPageCount updates the table meta when only PageCount changes.
func (db *Database) SyncTableMetaPageCount(tbl *heap.Table) error {
	meta, err := db.readTableMeta(tbl.Name)
	if err != nil {
		return err
	}
	meta.PageCount = tbl.PageCount
	return db.writeTableMeta(meta)
}
