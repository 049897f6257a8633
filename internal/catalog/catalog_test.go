package catalog

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesadb/pesadb/internal/storage"
	"github.com/pesadb/pesadb/internal/types"
)

func openTestCatalog(t *testing.T) (*Catalog, *storage.FileManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	fm, err := storage.OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { fm.Close() })
	c, err := Open(fm)
	require.NoError(t, err)
	return c, fm, path
}

func merchantsDef() *TableDef {
	return &TableDef{
		Name: "merchants",
		Columns: []ColumnDef{
			{Name: "id", Type: types.TypeInteger, PrimaryKey: true},
			{Name: "name", Type: types.TypeText, NotNull: true},
			{Name: "active", Type: types.TypeBoolean, Default: &Default{Value: types.NewBoolean(true)}},
			{Name: "created_at", Type: types.TypeTimestamp, Default: &Default{Now: true}},
		},
	}
}

func TestOpenInitializesReservedPage(t *testing.T) {
	_, fm, _ := openTestCatalog(t)
	assert.Equal(t, uint32(1), fm.PageCount(), "page 0 is allocated for the catalog")

	page, err := fm.ReadPage(CatalogPageID)
	require.NoError(t, err)
	assert.Equal(t, storage.PageTypeCatalog, page.Type())
}

func TestCreateAndLookupTable(t *testing.T) {
	c, _, _ := openTestCatalog(t)
	require.NoError(t, c.CreateTable(merchantsDef()))

	def, ok := c.Table("merchants")
	require.True(t, ok)
	assert.Equal(t, 1, def.ColumnIndex("name"))
	assert.Equal(t, -1, def.ColumnIndex("missing"))
	assert.Equal(t, 0, def.PrimaryKeyIndex())

	_, ok = c.Table("unknown")
	assert.False(t, ok)
}

func TestCreateDuplicateTable(t *testing.T) {
	c, _, _ := openTestCatalog(t)
	require.NoError(t, c.CreateTable(merchantsDef()))
	err := c.CreateTable(merchantsDef())
	assert.ErrorContains(t, err, "already exists")
}

func TestCatalogSurvivesReopen(t *testing.T) {
	c, fm, path := openTestCatalog(t)

	def := merchantsDef()
	require.NoError(t, c.CreateTable(def))
	require.NoError(t, c.CreateTable(&TableDef{
		Name: "transactions",
		Columns: []ColumnDef{
			{Name: "id", Type: types.TypeInteger, PrimaryKey: true},
			{Name: "merchant_id", Type: types.TypeInteger, NotNull: true,
				Reference: &ForeignKey{Table: "merchants", Column: "id"}},
			{Name: "amount", Type: types.TypeInteger},
		},
	}))

	heap, err := fm.AllocatePage(storage.PageTypeHeap)
	require.NoError(t, err)
	require.NoError(t, c.AppendPage("merchants", heap.ID()))
	require.NoError(t, fm.Close())

	fm, err = storage.OpenFile(path)
	require.NoError(t, err)
	defer fm.Close()
	c, err = Open(fm)
	require.NoError(t, err)

	got, ok := c.Table("merchants")
	require.True(t, ok)
	assert.Equal(t, []uint32{heap.ID()}, got.PageIDs)
	require.Len(t, got.Columns, 4)
	assert.True(t, got.Columns[0].PrimaryKey)
	assert.True(t, got.Columns[1].NotNull)
	require.NotNil(t, got.Columns[2].Default)
	assert.True(t, got.Columns[2].Default.Value.Equal(types.NewBoolean(true)))
	require.NotNil(t, got.Columns[3].Default)
	assert.True(t, got.Columns[3].Default.Now)

	tx, ok := c.Table("transactions")
	require.True(t, ok)
	require.NotNil(t, tx.Columns[1].Reference)
	assert.Equal(t, "merchants", tx.Columns[1].Reference.Table)
	assert.Equal(t, "id", tx.Columns[1].Reference.Column)

	names := make([]string, 0, 2)
	for _, td := range c.Tables() {
		names = append(names, td.Name)
	}
	assert.Equal(t, []string{"merchants", "transactions"}, names, "creation order is preserved")
}

func TestAppendPageToUnknownTable(t *testing.T) {
	c, _, _ := openTestCatalog(t)
	err := c.AppendPage("ghost", 1)
	assert.ErrorContains(t, err, "does not exist")
}

func TestCatalogOverflow(t *testing.T) {
	c, _, _ := openTestCatalog(t)
	var err error
	for i := 0; err == nil && i < 200; i++ {
		err = c.CreateTable(&TableDef{
			Name: strings.Repeat("x", 50) + string(rune('a'+i%26)) + string(rune('a'+i/26)),
			Columns: []ColumnDef{
				{Name: strings.Repeat("c", 40), Type: types.TypeInteger},
			},
		})
	}
	var overflow *OverflowError
	require.ErrorAs(t, err, &overflow, "catalog must eventually overflow its single page")
}

func TestOpenRejectsNonCatalogPageZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	fm, err := storage.OpenFile(path)
	require.NoError(t, err)
	_, err = fm.AllocatePage(storage.PageTypeHeap)
	require.NoError(t, err)
	defer fm.Close()

	_, err = Open(fm)
	var corrupt *storage.CorruptPageError
	assert.ErrorAs(t, err, &corrupt)
}

func TestFailedCreateLeavesCatalogUnchanged(t *testing.T) {
	c, _, _ := openTestCatalog(t)
	huge := &TableDef{Name: "huge"}
	for i := 0; i < 300; i++ {
		huge.Columns = append(huge.Columns, ColumnDef{
			Name: strings.Repeat("column", 5) + string(rune('a'+i%26)),
			Type: types.TypeText,
		})
	}
	err := c.CreateTable(huge)
	require.Error(t, err)

	_, ok := c.Table("huge")
	assert.False(t, ok, "failed create must not leave the table registered")
}
