package executor

import (
	"github.com/pesadb/pesadb/internal/catalog"
	"github.com/pesadb/pesadb/internal/storage"
	"github.com/pesadb/pesadb/internal/types"
)

// rowIter is the volcano-style iterator every query operator implements.
// Next returns (nil, nil) once the stream is exhausted. Reset rewinds to
// the first row; the nested-loop join relies on it to re-scan its inner
// side.
type rowIter interface {
	Next() ([]types.Value, error)
	Reset() error
}

// tableScan walks a table's heap pages in catalog order, yielding live
// rows in page order and slot order within each page.
type tableScan struct {
	fm      *storage.FileManager
	table   *catalog.TableDef
	pageIdx int
	page    *storage.Page
	slot    int
}

func newTableScan(fm *storage.FileManager, table *catalog.TableDef) *tableScan {
	return &tableScan{fm: fm, table: table}
}

func (s *tableScan) Next() ([]types.Value, error) {
	for {
		if s.page == nil {
			if s.pageIdx >= len(s.table.PageIDs) {
				return nil, nil
			}
			page, err := s.fm.ReadPage(s.table.PageIDs[s.pageIdx])
			if err != nil {
				return nil, err
			}
			s.page = page
			s.slot = 0
		}
		if s.slot >= s.page.SlotCount() {
			s.page = nil
			s.pageIdx++
			continue
		}
		record := s.page.Record(s.slot)
		s.slot++
		if record == nil {
			continue // tombstone
		}
		return types.DecodeRow(record, len(s.table.Columns))
	}
}

func (s *tableScan) Reset() error {
	s.pageIdx = 0
	s.page = nil
	s.slot = 0
	return nil
}
