package types

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"
)

// TimestampLayout is the textual form of timestamp values, both for
// parsing literals and for display.
const TimestampLayout = "2006-01-02 15:04:05"

// ColumnType enumerates the storable column types. NULL is a value state,
// not a column type.
type ColumnType uint8

const (
	TypeInteger ColumnType = iota + 1
	TypeText
	TypeBoolean
	TypeTimestamp
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeText:
		return "TEXT"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return fmt.Sprintf("ColumnType(%d)", uint8(t))
	}
}

// Kind tags a Value with its runtime type.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindText
	KindBoolean
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInteger:
		return "INTEGER"
	case KindText:
		return "TEXT"
	case KindBoolean:
		return "BOOLEAN"
	case KindTimestamp:
		return "TIMESTAMP"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ColumnKind maps a column type to the value kind its cells carry.
func (t ColumnType) Kind() Kind {
	switch t {
	case TypeInteger:
		return KindInteger
	case TypeText:
		return KindText
	case TypeBoolean:
		return KindBoolean
	case TypeTimestamp:
		return KindTimestamp
	default:
		return KindNull
	}
}

// Value is one cell of a row: a closed tagged union over the supported
// scalar types. Integers and timestamps share the int64 field; timestamps
// hold Unix seconds.
type Value struct {
	kind Kind
	i    int64
	s    string
	b    bool
}

// Null returns the NULL value.
func Null() Value { return Value{kind: KindNull} }

// NewInteger returns an INTEGER value.
func NewInteger(v int64) Value { return Value{kind: KindInteger, i: v} }

// NewText returns a TEXT value.
func NewText(v string) Value { return Value{kind: KindText, s: v} }

// NewBoolean returns a BOOLEAN value.
func NewBoolean(v bool) Value { return Value{kind: KindBoolean, b: v} }

// NewTimestamp returns a TIMESTAMP value holding Unix seconds.
func NewTimestamp(unixSeconds int64) Value {
	return Value{kind: KindTimestamp, i: unixSeconds}
}

// TimestampFromTime returns a TIMESTAMP value truncated to whole seconds.
func TimestampFromTime(t time.Time) Value {
	return NewTimestamp(t.Unix())
}

// ParseTimestamp parses a "YYYY-MM-DD HH:MM:SS" literal in UTC.
func ParseTimestamp(s string) (Value, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return Null(), fmt.Errorf("invalid timestamp %q: expected format %s", s, TimestampLayout)
	}
	return NewTimestamp(t.Unix()), nil
}

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) Int() int64    { return v.i }
func (v Value) Text() string  { return v.s }
func (v Value) Bool() bool    { return v.b }
func (v Value) Unix() int64   { return v.i }

// Time returns the timestamp as a UTC time.Time.
func (v Value) Time() time.Time { return time.Unix(v.i, 0).UTC() }

// String renders the value for display. NULL renders as "NULL" and
// timestamps use TimestampLayout.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindText:
		return v.s
	case KindBoolean:
		if v.b {
			return "true"
		}
		return "false"
	case KindTimestamp:
		return v.Time().Format(TimestampLayout)
	default:
		return fmt.Sprintf("Value(%d)", uint8(v.kind))
	}
}

// Equal reports whether two values have the same kind and payload. NULL
// never equals anything, including NULL; SQL three-valued logic is the
// caller's concern and handled in expression evaluation.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind || v.kind == KindNull {
		return false
	}
	switch v.kind {
	case KindInteger, KindTimestamp:
		return v.i == other.i
	case KindText:
		return v.s == other.s
	case KindBoolean:
		return v.b == other.b
	}
	return false
}

// Compare orders two values of the same kind: -1, 0, or 1. Comparing
// mismatched kinds or NULL is an error.
func (v Value) Compare(other Value) (int, error) {
	if v.kind == KindNull || other.kind == KindNull {
		return 0, fmt.Errorf("cannot compare NULL values")
	}
	if v.kind != other.kind {
		return 0, fmt.Errorf("cannot compare %s with %s", v.kind, other.kind)
	}
	switch v.kind {
	case KindInteger, KindTimestamp:
		switch {
		case v.i < other.i:
			return -1, nil
		case v.i > other.i:
			return 1, nil
		}
		return 0, nil
	case KindText:
		switch {
		case v.s < other.s:
			return -1, nil
		case v.s > other.s:
			return 1, nil
		}
		return 0, nil
	case KindBoolean:
		switch {
		case !v.b && other.b:
			return -1, nil
		case v.b && !other.b:
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot compare %s values", v.kind)
}

// Encode appends the value's self-describing byte form to dst: a kind
// byte, then the payload. Integers and timestamps are 8 bytes
// little-endian, text is a 2-byte length prefix plus UTF-8 bytes,
// booleans are a single byte, NULL has no payload.
func (v Value) Encode(dst []byte) []byte {
	dst = append(dst, byte(v.kind))
	switch v.kind {
	case KindInteger, KindTimestamp:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v.i))
		dst = append(dst, buf[:]...)
	case KindText:
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(len(v.s)))
		dst = append(dst, buf[:]...)
		dst = append(dst, v.s...)
	case KindBoolean:
		if v.b {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	}
	return dst
}

// EncodedSize returns the number of bytes Encode will append.
func (v Value) EncodedSize() int {
	switch v.kind {
	case KindInteger, KindTimestamp:
		return 1 + 8
	case KindText:
		return 1 + 2 + len(v.s)
	case KindBoolean:
		return 1 + 1
	default:
		return 1
	}
}

// DecodeValue reads one value from buf and returns it with the number of
// bytes consumed.
func DecodeValue(buf []byte) (Value, int, error) {
	if len(buf) == 0 {
		return Null(), 0, fmt.Errorf("truncated value: empty buffer")
	}
	kind := Kind(buf[0])
	rest := buf[1:]
	switch kind {
	case KindNull:
		return Null(), 1, nil
	case KindInteger, KindTimestamp:
		if len(rest) < 8 {
			return Null(), 0, fmt.Errorf("truncated %s value", kind)
		}
		v := int64(binary.LittleEndian.Uint64(rest[:8]))
		return Value{kind: kind, i: v}, 9, nil
	case KindText:
		if len(rest) < 2 {
			return Null(), 0, fmt.Errorf("truncated TEXT length")
		}
		n := int(binary.LittleEndian.Uint16(rest[:2]))
		if len(rest) < 2+n {
			return Null(), 0, fmt.Errorf("truncated TEXT value: want %d bytes, have %d", n, len(rest)-2)
		}
		return NewText(string(rest[2 : 2+n])), 3 + n, nil
	case KindBoolean:
		if len(rest) < 1 {
			return Null(), 0, fmt.Errorf("truncated BOOLEAN value")
		}
		return NewBoolean(rest[0] != 0), 2, nil
	default:
		return Null(), 0, fmt.Errorf("unknown value kind byte %d", buf[0])
	}
}

// EncodeRow serializes a row as the concatenation of its values.
func EncodeRow(row []Value) []byte {
	size := 0
	for _, v := range row {
		size += v.EncodedSize()
	}
	out := make([]byte, 0, size)
	for _, v := range row {
		out = v.Encode(out)
	}
	return out
}

// DecodeRow parses exactly columns values from buf and rejects trailing
// bytes.
func DecodeRow(buf []byte, columns int) ([]Value, error) {
	row := make([]Value, 0, columns)
	for i := 0; i < columns; i++ {
		v, n, err := DecodeValue(buf)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		row = append(row, v)
		buf = buf[n:]
	}
	if len(buf) != 0 {
		return nil, fmt.Errorf("row has %d trailing bytes after %d columns", len(buf), columns)
	}
	return row, nil
}
