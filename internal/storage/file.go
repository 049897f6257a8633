package storage

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// FileManager owns the single database file and translates page ids into
// file offsets. It takes an exclusive advisory lock on open so that only
// one process can mutate the database at a time.
//
// Decoded pages are kept in an in-memory cache so repeated scans of the
// same page do not hit disk. Writes go through to the file immediately
// (write-through), so the cache never holds a page the file does not.
type FileManager struct {
	file      *os.File
	path      string
	pageCount uint32

	mu    sync.Mutex
	cache map[uint32]*Page
}

// OpenFile opens (or creates) the database file at path and acquires the
// process-exclusive lock. Returns ErrDatabaseLocked when another process
// already holds it.
func OpenFile(path string) (*FileManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open database file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat database file: %w", err)
	}
	if info.Size()%PageSize != 0 {
		f.Close()
		return nil, &CorruptPageError{Reason: fmt.Sprintf("file size %d is not a multiple of the page size", info.Size())}
	}
	return &FileManager{
		file:      f,
		path:      path,
		pageCount: uint32(info.Size() / PageSize),
		cache:     make(map[uint32]*Page),
	}, nil
}

// PageCount returns the number of pages currently in the file.
func (fm *FileManager) PageCount() uint32 {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.pageCount
}

// Path returns the database file path.
func (fm *FileManager) Path() string { return fm.path }

// AllocatePage extends the file by one page of the given type and returns
// the fresh empty page.
func (fm *FileManager) AllocatePage(pageType PageType) (*Page, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	page := NewPage(fm.pageCount, pageType)
	if err := fm.writeAt(page); err != nil {
		return nil, err
	}
	fm.pageCount++
	fm.cache[page.ID()] = page
	return page, nil
}

// ReadPage returns the page with the given id, from cache when present,
// decoded from disk otherwise. Ids at or past the end of the file yield
// an InvalidPageIDError.
func (fm *FileManager) ReadPage(id uint32) (*Page, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if page, ok := fm.cache[id]; ok {
		return page, nil
	}
	if id >= fm.pageCount {
		return nil, &InvalidPageIDError{PageID: id, PageCount: fm.pageCount}
	}
	raw := make([]byte, PageSize)
	n, err := fm.file.ReadAt(raw, int64(id)*PageSize)
	if err != nil && err != io.EOF {
		return nil, &IOError{Op: "read", PageID: id, Err: err}
	}
	if n != PageSize {
		return nil, &CorruptPageError{PageID: id, Reason: fmt.Sprintf("short read: %d of %d bytes", n, PageSize)}
	}
	page, err := DecodePage(raw)
	if err != nil {
		return nil, err
	}
	fm.cache[id] = page
	return page, nil
}

// WritePage writes the page back to its slot in the file, syncs, and
// caches it.
func (fm *FileManager) WritePage(page *Page) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if page.ID() >= fm.pageCount {
		return &InvalidPageIDError{PageID: page.ID(), PageCount: fm.pageCount}
	}
	if err := fm.writeAt(page); err != nil {
		return err
	}
	fm.cache[page.ID()] = page
	return nil
}

// writeAt flushes one page to disk. On failure the page is evicted so
// the cache never diverges from the file.
func (fm *FileManager) writeAt(page *Page) error {
	if _, err := fm.file.WriteAt(page.Encode(), int64(page.ID())*PageSize); err != nil {
		delete(fm.cache, page.ID())
		return &IOError{Op: "write", PageID: page.ID(), Err: err}
	}
	if err := fm.file.Sync(); err != nil {
		delete(fm.cache, page.ID())
		return &IOError{Op: "sync", PageID: page.ID(), Err: err}
	}
	return nil
}

// Close releases the file lock and closes the file.
func (fm *FileManager) Close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.file == nil {
		return nil
	}
	unlockFile(fm.file)
	err := fm.file.Close()
	fm.file = nil
	fm.cache = nil
	return err
}