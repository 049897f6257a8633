// Package engine ties the storage, catalog, planner, and executor
// together behind a single Open/Execute/Close surface. One Engine owns
// one database file.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/pesadb/pesadb/internal/catalog"
	"github.com/pesadb/pesadb/internal/index"
	"github.com/pesadb/pesadb/internal/sql/executor"
	"github.com/pesadb/pesadb/internal/sql/parser"
	"github.com/pesadb/pesadb/internal/sql/planner"
	"github.com/pesadb/pesadb/internal/storage"
)

// Result is the outcome of one executed statement.
type Result = executor.Result

// Engine is an embedded SQL database over a single file. Execute is safe
// for concurrent use; statements are serialized internally.
type Engine struct {
	mu      sync.Mutex
	fm      *storage.FileManager
	cat     *catalog.Catalog
	planner *planner.Planner
	ex      *executor.Executor
	closed  bool
}

// Open opens (or creates) the database at path, loads the catalog, and
// rebuilds the in-memory indexes from the heap.
func Open(path string) (*Engine, error) {
	fm, err := storage.OpenFile(path)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(fm)
	if err != nil {
		fm.Close()
		return nil, err
	}
	ex := executor.New(fm, cat, index.NewManager())
	if err := ex.RebuildIndexes(); err != nil {
		fm.Close()
		return nil, err
	}
	return &Engine{
		fm:      fm,
		cat:     cat,
		planner: planner.New(cat),
		ex:      ex,
	}, nil
}

// Execute parses, plans, and runs a single SQL statement.
func (e *Engine) Execute(sql string) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("engine is closed")
	}

	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	plan, err := e.planner.Plan(stmt)
	if err != nil {
		return nil, err
	}
	return e.ex.Execute(plan, time.Now())
}

// ForceJoinStrategy overrides join strategy selection for subsequent
// statements. There is no SQL hint syntax; this is the programmatic knob.
func (e *Engine) ForceJoinStrategy(s planner.JoinStrategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.planner.ForceStrategy(s)
}

// Tables returns the names of every table, in creation order.
func (e *Engine) Tables() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.cat.Tables()))
	for _, def := range e.cat.Tables() {
		names = append(names, def.Name)
	}
	return names
}

// Table returns the definition of the named table.
func (e *Engine) Table(name string) (*catalog.TableDef, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cat.Table(name)
}

// Path returns the database file path.
func (e *Engine) Path() string {
	return e.fm.Path()
}

// Close releases the database file and its lock.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.fm.Close()
}
