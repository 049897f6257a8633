package storage

import (
	"encoding/binary"
)

const (
	// PageSize is the fixed size of every page in the database file.
	PageSize = 4096

	// PageHeaderSize is the number of bytes occupied by the page header:
	// page id (4) + page type (1) + lsn (4) + free-space offset (2) +
	// slot count (2).
	PageHeaderSize = 13

	// SlotSize is the size of one slot directory entry: record offset (2)
	// + record length (2).
	SlotSize = 4

	// MaxRecordSize is the largest record payload that fits into an
	// otherwise empty page alongside its slot directory entry.
	MaxRecordSize = PageSize - PageHeaderSize - SlotSize
)

// PageType distinguishes the catalog page from ordinary heap pages.
type PageType uint8

const (
	PageTypeFree PageType = iota
	PageTypeCatalog
	PageTypeHeap
)

// slot is one entry in the page's slot directory. A length of zero marks
// a tombstone; its offset is meaningless.
type slot struct {
	offset uint16
	length uint16
}

func (s slot) tombstoned() bool { return s.length == 0 }

// Page is the in-memory form of one slotted page. The header and slot
// directory live at the front of the buffer; record payloads are packed
// at the back, growing downward toward the directory. Records keep their
// slot index for their lifetime so row positions stay stable across
// inserts and tombstoning.
type Page struct {
	id       uint32
	pageType PageType
	lsn      uint32 // reserved for write-ahead logging, always 0 for now
	free     uint16 // offset of the first byte past the free gap
	slots    []slot
	buf      [PageSize]byte
}

// NewPage returns an empty page of the given type.
func NewPage(id uint32, pageType PageType) *Page {
	return &Page{
		id:       id,
		pageType: pageType,
		free:     PageSize,
	}
}

// ID returns the page's position in the database file.
func (p *Page) ID() uint32 { return p.id }

// Type returns the page's type tag.
func (p *Page) Type() PageType { return p.pageType }

// SlotCount returns the number of slot directory entries, including
// tombstones.
func (p *Page) SlotCount() int { return len(p.slots) }

// dirEnd returns the offset of the first byte past the slot directory.
func (p *Page) dirEnd() int { return PageHeaderSize + len(p.slots)*SlotSize }

// FreeSpace returns the number of bytes in the gap between the slot
// directory and the packed records.
func (p *Page) FreeSpace() int { return int(p.free) - p.dirEnd() }

// HasSpaceFor reports whether a record of n bytes fits into this page,
// accounting for the new slot directory entry it may need.
func (p *Page) HasSpaceFor(n int) bool {
	need := n
	if !p.hasTombstone() {
		need += SlotSize
	}
	return p.FreeSpace() >= need
}

func (p *Page) hasTombstone() bool {
	for _, s := range p.slots {
		if s.tombstoned() {
			return true
		}
	}
	return false
}

// InsertRecord places a record payload into the page and returns its slot
// index. Tombstoned slots are reused before the directory grows. Returns
// ErrPageFull when the payload does not fit.
func (p *Page) InsertRecord(record []byte) (int, error) {
	if len(record) > MaxRecordSize {
		return 0, ErrPageFull
	}
	idx := -1
	for i, s := range p.slots {
		if s.tombstoned() {
			idx = i
			break
		}
	}
	need := len(record)
	if idx < 0 {
		need += SlotSize
	}
	if p.FreeSpace() < need {
		return 0, ErrPageFull
	}
	off := int(p.free) - len(record)
	copy(p.buf[off:], record)
	p.free = uint16(off)
	entry := slot{offset: uint16(off), length: uint16(len(record))}
	if idx < 0 {
		p.slots = append(p.slots, entry)
		idx = len(p.slots) - 1
	} else {
		p.slots[idx] = entry
	}
	return idx, nil
}

// Record returns the payload stored in the given slot, or nil if the slot
// is tombstoned. The returned slice aliases the page buffer; callers that
// hold onto it across mutations must copy it first.
func (p *Page) Record(i int) []byte {
	s := p.slots[i]
	if s.tombstoned() {
		return nil
	}
	return p.buf[s.offset : int(s.offset)+int(s.length)]
}

// Tombstone marks a slot as deleted. The payload bytes stay in place
// until the next Compact.
func (p *Page) Tombstone(i int) {
	p.slots[i] = slot{}
}

// Compact rewrites the page, dropping every slot for which remove returns
// true along with all existing tombstones. Surviving records keep their
// relative order and are repacked from the end of the page; the slot
// directory is rebuilt densely. Returns the number of records removed,
// not counting pre-existing tombstones.
func (p *Page) Compact(remove func(slotIdx int, record []byte) bool) int {
	type survivor struct {
		record []byte
	}
	var kept []survivor
	removed := 0
	for i, s := range p.slots {
		if s.tombstoned() {
			continue
		}
		rec := p.buf[s.offset : int(s.offset)+int(s.length)]
		if remove != nil && remove(i, rec) {
			removed++
			continue
		}
		cp := make([]byte, len(rec))
		copy(cp, rec)
		kept = append(kept, survivor{record: cp})
	}
	p.buf = [PageSize]byte{}
	p.slots = p.slots[:0]
	p.free = PageSize
	for _, sv := range kept {
		off := int(p.free) - len(sv.record)
		copy(p.buf[off:], sv.record)
		p.free = uint16(off)
		p.slots = append(p.slots, slot{offset: uint16(off), length: uint16(len(sv.record))})
	}
	return removed
}

// Encode serializes the page into its fixed 4096-byte on-disk form.
func (p *Page) Encode() []byte {
	out := make([]byte, PageSize)
	copy(out, p.buf[:])
	binary.LittleEndian.PutUint32(out[0:4], p.id)
	out[4] = byte(p.pageType)
	binary.LittleEndian.PutUint32(out[5:9], p.lsn)
	binary.LittleEndian.PutUint16(out[9:11], p.free)
	binary.LittleEndian.PutUint16(out[11:13], uint16(len(p.slots)))
	for i, s := range p.slots {
		base := PageHeaderSize + i*SlotSize
		binary.LittleEndian.PutUint16(out[base:base+2], s.offset)
		binary.LittleEndian.PutUint16(out[base+2:base+4], s.length)
	}
	return out
}

// DecodePage parses and validates a raw 4096-byte buffer. It returns a
// CorruptPageError when the header or slot directory is inconsistent:
// a free-space offset inside the slot directory or past the page end, or
// a live slot whose payload falls outside the record area.
func DecodePage(raw []byte) (*Page, error) {
	if len(raw) != PageSize {
		return nil, &CorruptPageError{Reason: "short page buffer"}
	}
	p := &Page{
		id:       binary.LittleEndian.Uint32(raw[0:4]),
		pageType: PageType(raw[4]),
		lsn:      binary.LittleEndian.Uint32(raw[5:9]),
		free:     binary.LittleEndian.Uint16(raw[9:11]),
	}
	slotCount := int(binary.LittleEndian.Uint16(raw[11:13]))
	dirEnd := PageHeaderSize + slotCount*SlotSize
	if dirEnd > PageSize {
		return nil, &CorruptPageError{PageID: p.id, Reason: "slot directory overflows page"}
	}
	if int(p.free) < dirEnd || int(p.free) > PageSize {
		return nil, &CorruptPageError{PageID: p.id, Reason: "free-space offset out of bounds"}
	}
	for i := 0; i < slotCount; i++ {
		base := PageHeaderSize + i*SlotSize
		s := slot{
			offset: binary.LittleEndian.Uint16(raw[base : base+2]),
			length: binary.LittleEndian.Uint16(raw[base+2 : base+4]),
		}
		if !s.tombstoned() {
			if int(s.offset) < int(p.free) || int(s.offset)+int(s.length) > PageSize {
				return nil, &CorruptPageError{PageID: p.id, Reason: "slot payload out of bounds"}
			}
		}
		p.slots = append(p.slots, s)
	}
	copy(p.buf[:], raw)
	return p, nil
}
