// Package xid mints prefixed opaque identifiers for API objects, such as
// "pi_64f0c2..." or "sale_64f0c3...". Ids sort roughly by creation time.
package xid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// New returns a fresh id: the prefix, an underscore, then a hex-encoded
// big-endian unix timestamp followed by eight random bytes.
func New(prefix string) string {
	var raw [12]byte
	binary.BigEndian.PutUint32(raw[:4], uint32(time.Now().Unix()))
	if _, err := rand.Read(raw[4:]); err != nil {
		binary.BigEndian.PutUint64(raw[4:], uint64(time.Now().UnixNano()))
	}
	return prefix + "_" + hex.EncodeToString(raw[:])
}
