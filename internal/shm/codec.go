package shm

import (
	"encoding/binary"
	"time"
)

// cursor is a small fixed-width binary writer/reader over a byte slice.
// The packed on-disk layout is kept deliberately separate from any Go
// struct layout (Design Note 1): every field is written and read at an
// explicit, named offset so a FieldLock can be constructed against it.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor { return &cursor{buf: buf} }

func (c *cursor) offset() int64 { return int64(c.pos) }

func (c *cursor) putUint8(v uint8) {
	c.buf[c.pos] = v
	c.pos++
}

func (c *cursor) getUint8() uint8 {
	v := c.buf[c.pos]
	c.pos++
	return v
}

func (c *cursor) putBool(v bool) {
	if v {
		c.putUint8(1)
	} else {
		c.putUint8(0)
	}
}

func (c *cursor) getBool() bool { return c.getUint8() != 0 }

func (c *cursor) putUint32(v uint32) {
	binary.LittleEndian.PutUint32(c.buf[c.pos:], v)
	c.pos += 4
}

func (c *cursor) getUint32() uint32 {
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v
}

func (c *cursor) putInt32(v int32) { c.putUint32(uint32(v)) }
func (c *cursor) getInt32() int32  { return int32(c.getUint32()) }

func (c *cursor) putInt64(v int64) {
	binary.LittleEndian.PutUint64(c.buf[c.pos:], uint64(v))
	c.pos += 8
}

func (c *cursor) getInt64() int64 {
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return int64(v)
}

func (c *cursor) putTime(t time.Time) { c.putInt64(t.Unix()) }
func (c *cursor) getTime() time.Time {
	sec := c.getInt64()
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// putString writes s left-aligned into a fixed-width field of n bytes,
// NUL-padded/truncated to fit.
func (c *cursor) putString(s string, n int) {
	field := c.buf[c.pos : c.pos+n]
	for i := range field {
		field[i] = 0
	}
	copy(field, s)
	c.pos += n
}

func (c *cursor) getString(n int) string {
	field := c.buf[c.pos : c.pos+n]
	c.pos += n
	end := len(field)
	for i, b := range field {
		if b == 0 {
			end = i
			break
		}
	}
	return string(field[:end])
}

func (c *cursor) skip(n int) { c.pos += n }
