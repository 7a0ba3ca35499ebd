// Package wire frames cached values and mutation snapshots as bytes.
//
// Two frame kinds exist. A single frame carries one encoded value together
// with the generation it was committed at. A bulk frame carries a set of
// (key, generation, value) items and is used to freeze the snapshot a
// mutation rolls back to.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version    byte = 1
	kindSingle byte = 1
	kindBulk   byte = 2

	singleHeader = 4 + 1 + 1 + 8 + 4
	bulkHeader   = 4 + 1 + 1 + 4
)

var (
	ErrCorrupt    = errors.New("querycache: corrupt frame")
	ErrInvalidKey = errors.New("querycache: invalid key length in bulk frame")
	magic4        = [...]byte{'Q', 'R', 'Y', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodeSingle frames a value.
//
//	magic(4) | ver(1) | kind(1=single) | gen(u64 be) | vlen(u32 be) | payload(vlen)
func EncodeSingle(gen uint64, payload []byte) []byte {
	b := make([]byte, singleHeader, singleHeader+len(payload))
	copy(b, magic4[:])
	b[4] = version
	b[5] = kindSingle
	binary.BigEndian.PutUint64(b[6:14], gen)
	binary.BigEndian.PutUint32(b[14:18], uint32(len(payload)))
	return append(b, payload...)
}

// DecodeSingle returns the generation and a payload slice aliasing b.
// The frame must span b exactly.
func DecodeSingle(b []byte) (gen uint64, payload []byte, err error) {
	if len(b) < singleHeader || !hasMagic(b) || b[4] != version || b[5] != kindSingle {
		return 0, nil, ErrCorrupt
	}
	gen = binary.BigEndian.Uint64(b[6:14])
	vlen := int(binary.BigEndian.Uint32(b[14:18]))
	if vlen != len(b)-singleHeader {
		return 0, nil, ErrCorrupt
	}
	return gen, b[singleHeader:], nil
}

// BulkItem is one entry of a bulk frame.
type BulkItem struct {
	Key     string
	Gen     uint64
	Payload []byte
}

// EncodeBulk frames items in order. Duplicate keys are kept.
//
//	magic(4) | ver(1) | kind(1=bulk) | n(u32 be)
//	keyLen(u16 be) | key(keyLen) | gen(u64 be) | vlen(u32 be) | payload(vlen) * n
func EncodeBulk(items []BulkItem) ([]byte, error) {
	total := bulkHeader
	for _, it := range items {
		if l := len(it.Key); l == 0 || l > 0xFFFF {
			return nil, ErrInvalidKey
		}
		total += 2 + len(it.Key) + 8 + 4 + len(it.Payload)
	}

	b := make([]byte, bulkHeader, total)
	copy(b, magic4[:])
	b[4] = version
	b[5] = kindBulk
	binary.BigEndian.PutUint32(b[6:10], uint32(len(items)))

	for _, it := range items {
		b = binary.BigEndian.AppendUint16(b, uint16(len(it.Key)))
		b = append(b, it.Key...)
		b = binary.BigEndian.AppendUint64(b, it.Gen)
		b = binary.BigEndian.AppendUint32(b, uint32(len(it.Payload)))
		b = append(b, it.Payload...)
	}
	return b, nil
}

// DecodeBulk parses a bulk frame. Payloads alias b.
func DecodeBulk(b []byte) ([]BulkItem, error) {
	if len(b) < bulkHeader || !hasMagic(b) || b[4] != version || b[5] != kindBulk {
		return nil, ErrCorrupt
	}

	n := int(binary.BigEndian.Uint32(b[6:10]))
	off := bulkHeader

	// each item needs at least 2+1+8+4 bytes; reject absurd counts before allocating
	if n > (len(b)-off)/15 {
		return nil, ErrCorrupt
	}

	items := make([]BulkItem, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return nil, ErrCorrupt
		}
		klen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if klen == 0 || klen > len(b)-off {
			return nil, ErrCorrupt
		}
		key := string(b[off : off+klen])
		off += klen

		if off+12 > len(b) {
			return nil, ErrCorrupt
		}
		gen := binary.BigEndian.Uint64(b[off : off+8])
		off += 8
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen > len(b)-off {
			return nil, ErrCorrupt
		}

		items = append(items, BulkItem{Key: key, Gen: gen, Payload: b[off : off+vlen]})
		off += vlen
	}

	if off != len(b) {
		return nil, ErrCorrupt
	}
	return items, nil
}
