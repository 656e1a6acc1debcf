package engine

import (
	"errors"
	"time"
	"unicode"

	"github.com/novasql/novasql/internal/btree"
	"github.com/novasql/novasql/internal/storage"
)

// defaultIndexKeyWidth is the fixed key width used for indexes created
// through this registry. Encoding a SQL column value into a btree.Key of
// this width is the caller's responsibility; C4 itself is agnostic to
// what the bytes mean.
const defaultIndexKeyWidth = 8

type IndexKind string

const (
	IndexKindBTree IndexKind = "btree"
)

var (
	ErrIndexNotFound  = errors.New("novasql: index not found")
	ErrIndexExists    = errors.New("novasql: index already exists")
	ErrIndexBadColumn = errors.New("novasql: index key column not found")
	ErrIndexBadKind   = errors.New("novasql: unsupported index kind")
	ErrIndexBadName   = errors.New("novasql: invalid index name")
	ErrIndexBadTable  = errors.New("novasql: invalid table name")
	ErrIndexBadKeyCol = errors.New("novasql: invalid key column")
)

// validateIdent rejects identifiers that would not round-trip safely
// through a filesystem path (table/index file base names are derived
// from these strings directly).
func validateIdent(ident string) error {
	if ident == "" || len(ident) > 128 {
		return errors.New("novasql: identifier must be 1-128 characters")
	}
	for i, r := range ident {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
		case r == '_':
		default:
			return errors.New("novasql: identifier contains invalid character")
		}
		if i == 0 && unicode.IsDigit(r) {
			return errors.New("novasql: identifier must not start with a digit")
		}
	}
	return nil
}

func (db *Database) fmtIndexBase(table, index string) string {
	return table + "__idx_" + index
}

// ListIndexes returns registered indexes of a table.
func (db *Database) ListIndexes(table string) ([]IndexMeta, error) {
	if err := validateIdent(table); err != nil {
		return nil, ErrIndexBadTable
	}
	meta, err := db.readTableMeta(table)
	if err != nil {
		return nil, err
	}
	return meta.Indexes, nil
}

func (db *Database) findIndexMeta(meta *TableMeta, indexName string) (int, *IndexMeta) {
	for i := range meta.Indexes {
		if meta.Indexes[i].Name == indexName {
			return i, &meta.Indexes[i]
		}
	}
	return -1, nil
}

func (db *Database) hasColumn(meta *TableMeta, col string) bool {
	for i := range meta.Schema.Cols {
		if meta.Schema.Cols[i].Name == col {
			return true
		}
	}
	return false
}

func (db *Database) indexFileSet(table, index string) storage.LocalFileSet {
	return storage.LocalFileSet{
		Dir:  db.tableDir(),
		Base: db.fmtIndexBase(table, index),
	}
}

// CreateBTreeIndex registers an index and creates a new BTree handle.
// It does not backfill existing rows yet.
func (db *Database) CreateBTreeIndex(table, indexName, keyColumn string) (*btree.Tree, error) {
	if err := validateIdent(table); err != nil {
		return nil, ErrIndexBadTable
	}
	if err := validateIdent(indexName); err != nil {
		return nil, ErrIndexBadName
	}
	if err := validateIdent(keyColumn); err != nil {
		return nil, ErrIndexBadKeyCol
	}

	tmeta, err := db.readTableMeta(table)
	if err != nil {
		return nil, err
	}
	if !db.hasColumn(tmeta, keyColumn) {
		return nil, ErrIndexBadColumn
	}
	if _, im := db.findIndexMeta(tmeta, indexName); im != nil {
		return nil, ErrIndexExists
	}

	fs := db.indexFileSet(table, indexName)
	tree, err := btree.NewTree(db.Pool, fs, defaultIndexKeyWidth, btree.BytesComparator)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tmeta.Indexes = append(tmeta.Indexes, IndexMeta{
		Name:      indexName,
		Kind:      IndexKindBTree,
		KeyColumn: keyColumn,
		FileBase:  fs.Base,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err := db.writeTableMeta(tmeta); err != nil {
		return nil, err
	}

	return tree, nil
}

// OpenBTreeIndex opens an existing index by name (registry -> fileset -> OpenTree).
func (db *Database) OpenBTreeIndex(table, indexName string) (*btree.Tree, error) {
	if err := validateIdent(table); err != nil {
		return nil, ErrIndexBadTable
	}
	if err := validateIdent(indexName); err != nil {
		return nil, ErrIndexBadName
	}

	tmeta, err := db.readTableMeta(table)
	if err != nil {
		return nil, err
	}

	_, im := db.findIndexMeta(tmeta, indexName)
	if im == nil {
		return nil, ErrIndexNotFound
	}
	if im.Kind != IndexKindBTree {
		return nil, ErrIndexBadKind
	}

	fs := storage.LocalFileSet{Dir: db.tableDir(), Base: im.FileBase}
	return btree.OpenTree(db.Pool, fs, defaultIndexKeyWidth, btree.BytesComparator)
}

// DropIndex drops on-disk index files and removes the index from the registry.
func (db *Database) DropIndex(table, indexName string) error {
	if err := validateIdent(table); err != nil {
		return ErrIndexBadTable
	}
	if err := validateIdent(indexName); err != nil {
		return ErrIndexBadName
	}

	tmeta, err := db.readTableMeta(table)
	if err != nil {
		return err
	}

	pos, im := db.findIndexMeta(tmeta, indexName)
	if im == nil {
		return ErrIndexNotFound
	}
	if im.Kind != IndexKindBTree {
		return ErrIndexBadKind
	}

	fs := storage.LocalFileSet{Dir: db.tableDir(), Base: im.FileBase}
	if err := btree.DropIndex(fs); err != nil {
		return err
	}

	last := len(tmeta.Indexes) - 1
	tmeta.Indexes[pos] = tmeta.Indexes[last]
	tmeta.Indexes = tmeta.Indexes[:last]
	tmeta.UpdatedAt = time.Now()

	return db.writeTableMeta(tmeta)
}
