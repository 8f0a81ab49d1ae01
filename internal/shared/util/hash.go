package util

import (
	"crypto/sha256"
	"encoding/binary"
)

// LockKey maps an identifier onto a stable signed 64-bit key for pg advisory locks.
func LockKey(s string) int64 {
	sum := sha256.Sum256([]byte(s))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
