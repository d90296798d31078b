// Package keys names the Redis keys of the catalog store.
package keys

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Item is the hash holding one item's body, logical timestamp, fingerprint and cells.
func Item(collection, id string) string {
	return "item:" + escapeCollection(collection) + ":" + strings.TrimSpace(id)
}

// Members is the set of item ids in a collection.
func Members(collection string) string {
	return "items:" + escapeCollection(collection)
}

// CellPrefix prefixes the per-cell item id sets; the cell id is appended.
func CellPrefix(collection string) string {
	return "cell:" + escapeCollection(collection) + ":"
}

func Cell(collection, cell string) string {
	return CellPrefix(collection) + strings.ToLower(strings.TrimSpace(cell))
}

func Collection(id string) string {
	return "collection:" + escapeCollection(id)
}

// Fingerprint is the fixed-width hex xxhash of a payload; fixed width keeps string
// comparison consistent with numeric order.
func Fingerprint(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

// LogicalTS renders unix nanoseconds zero-padded so timestamps compare as strings.
func LogicalTS(nanos int64) string {
	if nanos < 0 {
		nanos = 0
	}
	return fmt.Sprintf("%020d", nanos)
}

// escapeCollection keeps ASCII letters, digits, '_' and '.' and writes every
// other byte as '-' plus two hex digits, so distinct ids never share a key and
// the result never contains ':'.
func escapeCollection(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isKeySafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('-')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

const hexDigits = "0123456789abcdef"

func isKeySafe(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_' || c == '.'
}
