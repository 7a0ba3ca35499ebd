// Package codec turns cached values into bytes and back.
//
// A store keeps every value encoded, so the codec decides what "the same
// value" means on rollback: a snapshot is restored byte for byte.
package codec

import (
	"fmt"
	"strings"
)

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Kind names a built-in codec family.
type Kind string

const (
	KindJSON    Kind = "json"
	KindMsgpack Kind = "msgpack"
	KindCBOR    Kind = "cbor"
)

// ParseKind accepts the names used in configuration. Empty means JSON.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", KindJSON:
		return KindJSON, nil
	case KindMsgpack, KindCBOR:
		return k, nil
	default:
		return "", fmt.Errorf("codec: unknown kind %q", s)
	}
}

// For returns the codec of kind k for V. Unknown kinds fall back to JSON.
func For[V any](k Kind) Codec[V] {
	switch k {
	case KindMsgpack:
		return Msgpack[V]{}
	case KindCBOR:
		return CBOR[V]{enc: detEnc, dec: defaultDec}
	default:
		return JSON[V]{}
	}
}
