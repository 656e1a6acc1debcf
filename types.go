package novasql

import "github.com/novasql/novasql/internal/engine"

// Package novasql is the top-level facade for the NovaSQL engine. Database,
// TableMeta and IndexMeta are aliases of their internal/engine counterparts
// so callers get the real type (and its method set) under a stable import
// path, without the engine package importing back up into novasql.
type Database = engine.Database
type TableMeta = engine.TableMeta
type IndexMeta = engine.IndexMeta

type IndexKind = engine.IndexKind

const IndexKindBTree = engine.IndexKindBTree

var (
	ErrIndexNotFound  = engine.ErrIndexNotFound
	ErrIndexExists    = engine.ErrIndexExists
	ErrIndexBadColumn = engine.ErrIndexBadColumn
	ErrIndexBadKind   = engine.ErrIndexBadKind
	ErrIndexBadName   = engine.ErrIndexBadName
	ErrIndexBadTable  = engine.ErrIndexBadTable
	ErrIndexBadKeyCol = engine.ErrIndexBadKeyCol

	ErrDatabaseClosed = engine.ErrDatabaseClosed
	ErrInvalidPageID  = engine.ErrInvalidPageID
)

// NewDatabase opens (without touching disk yet) a database rooted at dataDir.
func NewDatabase(dataDir string) *Database {
	return engine.NewDatabase(dataDir)
}
