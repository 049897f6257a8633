package catalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pesadb/pesadb/internal/storage"
	"github.com/pesadb/pesadb/internal/types"
)

// CatalogPageID is the reserved page holding the serialized catalog.
const CatalogPageID = 0

// catalogMagic guards against reading a non-catalog page as the catalog.
const catalogMagic uint32 = 0x50455341 // "PESA"

// ForeignKey records a single-column reference to another table.
type ForeignKey struct {
	Table  string
	Column string
}

// Default describes a column's DEFAULT clause: either a literal value or
// the NOW() function evaluated at insert time.
type Default struct {
	Now   bool
	Value types.Value
}

// ColumnDef describes one column of a table.
type ColumnDef struct {
	Name       string
	Type       types.ColumnType
	NotNull    bool
	PrimaryKey bool
	Default    *Default
	Reference  *ForeignKey
}

// TableDef describes a table: its ordered columns and the ordered list of
// heap pages that hold its rows. Page order determines scan order.
type TableDef struct {
	Name    string
	Columns []ColumnDef
	PageIDs []uint32
}

// ColumnIndex returns the position of the named column, or -1.
func (t *TableDef) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// PrimaryKeyIndex returns the position of the primary key column, or -1
// when the table has none.
func (t *TableDef) PrimaryKeyIndex() int {
	for i, c := range t.Columns {
		if c.PrimaryKey {
			return i
		}
	}
	return -1
}

// OverflowError is returned when the serialized catalog no longer fits
// into its single reserved page.
type OverflowError struct {
	Size int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("catalog overflow: %d bytes exceed the reserved page", e.Size)
}

// Catalog holds every table definition and keeps page 0 of the database
// file in sync with the in-memory state. Persistence happens on every
// mutation, before the mutation is visible to callers.
type Catalog struct {
	fm     *storage.FileManager
	tables []*TableDef
	byName map[string]*TableDef
}

// Open loads the catalog from page 0, initializing an empty catalog when
// the file is new.
func Open(fm *storage.FileManager) (*Catalog, error) {
	c := &Catalog{fm: fm, byName: make(map[string]*TableDef)}
	if fm.PageCount() == 0 {
		if _, err := fm.AllocatePage(storage.PageTypeCatalog); err != nil {
			return nil, err
		}
		return c, c.persist()
	}
	page, err := fm.ReadPage(CatalogPageID)
	if err != nil {
		return nil, err
	}
	if page.Type() != storage.PageTypeCatalog || page.SlotCount() != 1 {
		return nil, &storage.CorruptPageError{PageID: CatalogPageID, Reason: "page 0 is not a catalog page"}
	}
	if err := c.decode(page.Record(0)); err != nil {
		return nil, err
	}
	return c, nil
}

// Table returns the named table definition.
func (c *Catalog) Table(name string) (*TableDef, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Tables returns all table definitions in creation order.
func (c *Catalog) Tables() []*TableDef {
	return c.tables
}

// CreateTable registers a new table and persists the catalog.
func (c *Catalog) CreateTable(def *TableDef) error {
	if _, ok := c.byName[def.Name]; ok {
		return fmt.Errorf("table %q already exists", def.Name)
	}
	c.tables = append(c.tables, def)
	c.byName[def.Name] = def
	if err := c.persist(); err != nil {
		c.tables = c.tables[:len(c.tables)-1]
		delete(c.byName, def.Name)
		return err
	}
	return nil
}

// AppendPage records a newly allocated heap page at the end of the
// table's page list and persists the catalog.
func (c *Catalog) AppendPage(table string, pageID uint32) error {
	def, ok := c.byName[table]
	if !ok {
		return fmt.Errorf("table %q does not exist", table)
	}
	def.PageIDs = append(def.PageIDs, pageID)
	if err := c.persist(); err != nil {
		def.PageIDs = def.PageIDs[:len(def.PageIDs)-1]
		return err
	}
	return nil
}

// persist rewrites page 0 with the current catalog state and syncs it to
// disk.
func (c *Catalog) persist() error {
	blob := c.encode()
	if len(blob) > storage.MaxRecordSize {
		return &OverflowError{Size: len(blob)}
	}
	page := storage.NewPage(CatalogPageID, storage.PageTypeCatalog)
	if _, err := page.InsertRecord(blob); err != nil {
		return &OverflowError{Size: len(blob)}
	}
	return c.fm.WritePage(page)
}

const (
	flagNotNull    = 1 << 0
	flagPrimaryKey = 1 << 1
	flagDefault    = 1 << 2
	flagDefaultNow = 1 << 3
	flagReference  = 1 << 4
)

func writeString(buf *bytes.Buffer, s string) {
	var n [2]byte
	binary.LittleEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Catalog) encode() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, catalogMagic)
	binary.Write(buf, binary.LittleEndian, uint16(len(c.tables)))
	for _, t := range c.tables {
		writeString(buf, t.Name)
		binary.Write(buf, binary.LittleEndian, uint16(len(t.Columns)))
		for _, col := range t.Columns {
			writeString(buf, col.Name)
			buf.WriteByte(byte(col.Type))
			var flags byte
			if col.NotNull {
				flags |= flagNotNull
			}
			if col.PrimaryKey {
				flags |= flagPrimaryKey
			}
			if col.Default != nil {
				flags |= flagDefault
				if col.Default.Now {
					flags |= flagDefaultNow
				}
			}
			if col.Reference != nil {
				flags |= flagReference
			}
			buf.WriteByte(flags)
			if col.Default != nil && !col.Default.Now {
				buf.Write(col.Default.Value.Encode(nil))
			}
			if col.Reference != nil {
				writeString(buf, col.Reference.Table)
				writeString(buf, col.Reference.Column)
			}
		}
		binary.Write(buf, binary.LittleEndian, uint16(len(t.PageIDs)))
		for _, id := range t.PageIDs {
			binary.Write(buf, binary.LittleEndian, id)
		}
	}
	return buf.Bytes()
}

func (c *Catalog) decode(blob []byte) error {
	corrupt := func(reason string) error {
		return &storage.CorruptPageError{PageID: CatalogPageID, Reason: reason}
	}
	r := bytes.NewReader(blob)
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil || magic != catalogMagic {
		return corrupt("bad catalog magic")
	}
	var tableCount uint16
	if err := binary.Read(r, binary.LittleEndian, &tableCount); err != nil {
		return corrupt("truncated table count")
	}
	for ti := 0; ti < int(tableCount); ti++ {
		name, err := readString(r)
		if err != nil {
			return corrupt("truncated table name")
		}
		def := &TableDef{Name: name}
		var colCount uint16
		if err := binary.Read(r, binary.LittleEndian, &colCount); err != nil {
			return corrupt("truncated column count")
		}
		for ci := 0; ci < int(colCount); ci++ {
			col := ColumnDef{}
			if col.Name, err = readString(r); err != nil {
				return corrupt("truncated column name")
			}
			typ, err := r.ReadByte()
			if err != nil {
				return corrupt("truncated column type")
			}
			col.Type = types.ColumnType(typ)
			flags, err := r.ReadByte()
			if err != nil {
				return corrupt("truncated column flags")
			}
			col.NotNull = flags&flagNotNull != 0
			col.PrimaryKey = flags&flagPrimaryKey != 0
			if flags&flagDefault != 0 {
				d := &Default{Now: flags&flagDefaultNow != 0}
				if !d.Now {
					rest := make([]byte, r.Len())
					r.Read(rest)
					v, n, err := types.DecodeValue(rest)
					if err != nil {
						return corrupt("truncated default value")
					}
					d.Value = v
					r = bytes.NewReader(rest[n:])
				}
				col.Default = d
			}
			if flags&flagReference != 0 {
				fk := &ForeignKey{}
				if fk.Table, err = readString(r); err != nil {
					return corrupt("truncated reference table")
				}
				if fk.Column, err = readString(r); err != nil {
					return corrupt("truncated reference column")
				}
				col.Reference = fk
			}
			def.Columns = append(def.Columns, col)
		}
		var pageCount uint16
		if err := binary.Read(r, binary.LittleEndian, &pageCount); err != nil {
			return corrupt("truncated page list")
		}
		for pi := 0; pi < int(pageCount); pi++ {
			var id uint32
			if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
				return corrupt("truncated page id")
			}
			def.PageIDs = append(def.PageIDs, id)
		}
		c.tables = append(c.tables, def)
		c.byName[def.Name] = def
	}
	return nil
}
