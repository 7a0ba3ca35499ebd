package querycache

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

var keyEnc = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Key is a hierarchical cache key: an ordered list of parts. Parts are
// compared by their canonical encoding, so structurally equal parameter maps
// or structs produce equal keys regardless of field order, and 1, int64(1)
// and uint8(1) are the same part.
//
// Key A is a prefix of key B when A's parts equal B's first len(A) parts.
// Invalidate and CancelInFlight act on every key a prefix matches.
type Key struct {
	parts []any
	enc   []string // hex of each canonical part
}

// NewKey builds a key. It panics if a part cannot be encoded (functions,
// channels and the like); key parts are meant to be plain data.
func NewKey(parts ...any) Key {
	return Key{}.Append(parts...)
}

// Append returns a new key with parts added after k's parts.
func (k Key) Append(parts ...any) Key {
	out := Key{
		parts: make([]any, 0, len(k.parts)+len(parts)),
		enc:   make([]string, 0, len(k.enc)+len(parts)),
	}
	out.parts = append(out.parts, k.parts...)
	out.enc = append(out.enc, k.enc...)
	for _, p := range parts {
		b, err := keyEnc.Marshal(p)
		if err != nil {
			panic(fmt.Sprintf("querycache: key part %T is not encodable: %v", p, err))
		}
		out.parts = append(out.parts, p)
		out.enc = append(out.enc, hex.EncodeToString(b))
	}
	return out
}

func (k Key) Len() int { return len(k.parts) }

// Part returns the i-th part as given to NewKey.
func (k Key) Part(i int) any { return k.parts[i] }

// Parent drops the last part. The parent of the empty key is itself.
func (k Key) Parent() Key {
	if len(k.parts) == 0 {
		return k
	}
	return Key{parts: k.parts[:len(k.parts)-1], enc: k.enc[:len(k.enc)-1]}
}

func (k Key) Equal(o Key) bool {
	if len(k.enc) != len(o.enc) {
		return false
	}
	for i := range k.enc {
		if k.enc[i] != o.enc[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p matches k. The empty key matches every key.
func (k Key) HasPrefix(p Key) bool {
	if len(p.enc) > len(k.enc) {
		return false
	}
	for i := range p.enc {
		if k.enc[i] != p.enc[i] {
			return false
		}
	}
	return true
}

// ID is the canonical string form of k; equal keys have equal IDs.
func (k Key) ID() string { return strings.Join(k.enc, "/") }

// String renders parts for humans, e.g. "books/list/map[limit:20]".
func (k Key) String() string {
	parts := make([]string, len(k.parts))
	for i, p := range k.parts {
		if s, ok := p.(string); ok {
			parts[i] = s
		} else {
			parts[i] = fmt.Sprint(p)
		}
	}
	return strings.Join(parts, "/")
}
