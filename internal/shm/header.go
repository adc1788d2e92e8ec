// Package shm implements the versioned, memory-mapped shared status
// areas (FSA, FRA, AfdStatus) of spec section 3/4.1: an 8-byte header
// prefix, ID-file indirection, fcntl-style byte-range field locking,
// and STALE-sentinel detach/re-attach.
package shm

import "encoding/binary"

// HeaderSize is the fixed prefix every memory-mapped area begins with:
// a 32-bit size-or-stale field, a schema-edit counter byte, a
// feature-flag byte, a reserved byte, and a one-byte schema version.
const HeaderSize = 8

// StaleSentinel is written into the size field to tell current readers
// the mapping has been superseded; see spec section 3 "Lifecycles".
const StaleSentinel uint32 = 0xFFFFFFFF

// Header is the in-memory representation of the 8-byte on-disk prefix.
type Header struct {
	SizeOrStale  uint32
	EditCounter  byte
	FeatureFlags byte
	Reserved     byte
	Version      byte
}

// IsStale reports whether the header's size field carries the STALE
// sentinel.
func (h Header) IsStale() bool { return h.SizeOrStale == StaleSentinel }

// Encode writes h into the first HeaderSize bytes of buf.
func (h Header) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.SizeOrStale)
	buf[4] = h.EditCounter
	buf[5] = h.FeatureFlags
	buf[6] = h.Reserved
	buf[7] = h.Version
}

// DecodeHeader reads a Header from the first HeaderSize bytes of buf.
func DecodeHeader(buf []byte) Header {
	return Header{
		SizeOrStale:  binary.LittleEndian.Uint32(buf[0:4]),
		EditCounter:  buf[4],
		FeatureFlags: buf[5],
		Reserved:     buf[6],
		Version:      buf[7],
	}
}

// readSizeOrStale re-reads only the first four bytes, for check_stale's
// cheap polling contract (callers must call this before any
// long-running loop iteration that touches the area).
func readSizeOrStale(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[0:4])
}

// MarkStale overwrites the size field of buf with the STALE sentinel.
func MarkStale(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], StaleSentinel)
}
