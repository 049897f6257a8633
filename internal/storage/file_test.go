package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestFile(t *testing.T) *FileManager {
	t.Helper()
	fm, err := OpenFile(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { fm.Close() })
	return fm
}

func TestOpenCreatesEmptyFile(t *testing.T) {
	fm := openTestFile(t)
	assert.Equal(t, uint32(0), fm.PageCount())
}

func TestAllocateReadWriteRoundTrip(t *testing.T) {
	fm := openTestFile(t)

	page, err := fm.AllocatePage(PageTypeHeap)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), page.ID())
	assert.Equal(t, uint32(1), fm.PageCount())

	_, err = page.InsertRecord([]byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, fm.WritePage(page))

	got, err := fm.ReadPage(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got.Record(0))
}

func TestAllocateAssignsSequentialIDs(t *testing.T) {
	fm := openTestFile(t)
	for i := 0; i < 4; i++ {
		page, err := fm.AllocatePage(PageTypeHeap)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), page.ID())
	}
	assert.Equal(t, uint32(4), fm.PageCount())
}

func TestReadPastEndOfFile(t *testing.T) {
	fm := openTestFile(t)
	_, err := fm.AllocatePage(PageTypeHeap)
	require.NoError(t, err)

	_, err = fm.ReadPage(1)
	var invalid *InvalidPageIDError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, uint32(1), invalid.PageID)
	assert.Equal(t, uint32(1), invalid.PageCount)
}

func TestWritePastEndOfFile(t *testing.T) {
	fm := openTestFile(t)
	err := fm.WritePage(NewPage(5, PageTypeHeap))
	var invalid *InvalidPageIDError
	assert.ErrorAs(t, err, &invalid)
}

func TestPagesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	fm, err := OpenFile(path)
	require.NoError(t, err)
	page, err := fm.AllocatePage(PageTypeHeap)
	require.NoError(t, err)
	_, err = page.InsertRecord([]byte("durable"))
	require.NoError(t, err)
	require.NoError(t, fm.WritePage(page))
	require.NoError(t, fm.Close())

	fm, err = OpenFile(path)
	require.NoError(t, err)
	defer fm.Close()

	assert.Equal(t, uint32(1), fm.PageCount())
	got, err := fm.ReadPage(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), got.Record(0))
}

func TestReadPageServedFromCache(t *testing.T) {
	fm := openTestFile(t)
	page, err := fm.AllocatePage(PageTypeHeap)
	require.NoError(t, err)
	require.NoError(t, fm.WritePage(page))

	first, err := fm.ReadPage(0)
	require.NoError(t, err)
	assert.Same(t, page, first)

	second, err := fm.ReadPage(0)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestCacheRepopulatedAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	fm, err := OpenFile(path)
	require.NoError(t, err)
	page, err := fm.AllocatePage(PageTypeHeap)
	require.NoError(t, err)
	_, err = page.InsertRecord([]byte("cached"))
	require.NoError(t, err)
	require.NoError(t, fm.WritePage(page))
	require.NoError(t, fm.Close())

	fm, err = OpenFile(path)
	require.NoError(t, err)
	defer fm.Close()

	first, err := fm.ReadPage(0)
	require.NoError(t, err)
	assert.NotSame(t, page, first)
	assert.Equal(t, []byte("cached"), first.Record(0))

	second, err := fm.ReadPage(0)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, os.WriteFile(path, make([]byte, PageSize+100), 0o644))

	_, err := OpenFile(path)
	var corrupt *CorruptPageError
	assert.ErrorAs(t, err, &corrupt)
}

func TestSecondOpenIsLockedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	fm, err := OpenFile(path)
	require.NoError(t, err)
	defer fm.Close()

	_, err = OpenFile(path)
	assert.ErrorIs(t, err, ErrDatabaseLocked)
}

func TestLockReleasedOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	fm, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, fm.Close())

	fm, err = OpenFile(path)
	require.NoError(t, err)
	fm.Close()
}
