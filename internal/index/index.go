// Package index maintains in-memory B-tree indexes over primary key
// columns. The indexes are kept in step with every insert, update, and
// delete, but no query path consults them yet: they exist so an index
// scan can be added without touching the write paths.
package index

import (
	"github.com/google/btree"

	"github.com/pesadb/pesadb/internal/catalog"
	"github.com/pesadb/pesadb/internal/types"
)

const btreeDegree = 16

// entry is one key in a table's primary key index.
type entry struct {
	key types.Value
}

func lessEntries(a, b entry) bool {
	cmp, err := a.key.Compare(b.key)
	if err != nil {
		// mixed kinds cannot occur within one column; order by kind to
		// stay total anyway
		return a.key.Kind() < b.key.Kind()
	}
	return cmp < 0
}

// tableIndex tracks the primary key column of one table.
type tableIndex struct {
	column int
	tree   *btree.BTreeG[entry]
}

// Manager owns the per-table indexes. It is rebuilt from the heap on
// open and mutated alongside the heap afterwards.
type Manager struct {
	tables map[string]*tableIndex
}

// NewManager returns an empty index manager.
func NewManager() *Manager {
	return &Manager{tables: make(map[string]*tableIndex)}
}

// AddTable registers an index for the table's primary key column, if it
// has one.
func (m *Manager) AddTable(def *catalog.TableDef) {
	pk := def.PrimaryKeyIndex()
	if pk < 0 {
		return
	}
	m.tables[def.Name] = &tableIndex{
		column: pk,
		tree:   btree.NewG(btreeDegree, lessEntries),
	}
}

// Insert records a row's primary key.
func (m *Manager) Insert(table string, row []types.Value) {
	idx, ok := m.tables[table]
	if !ok {
		return
	}
	key := row[idx.column]
	if key.IsNull() {
		return
	}
	idx.tree.ReplaceOrInsert(entry{key: key})
}

// Delete removes a row's primary key.
func (m *Manager) Delete(table string, row []types.Value) {
	idx, ok := m.tables[table]
	if !ok {
		return
	}
	idx.tree.Delete(entry{key: row[idx.column]})
}

// Contains reports whether the table's index holds the key. Always false
// for tables without a primary key.
func (m *Manager) Contains(table string, key types.Value) bool {
	idx, ok := m.tables[table]
	if !ok || key.IsNull() {
		return false
	}
	return idx.tree.Has(entry{key: key})
}

// Len returns the number of keys indexed for the table.
func (m *Manager) Len(table string) int {
	idx, ok := m.tables[table]
	if !ok {
		return 0
	}
	return idx.tree.Len()
}
