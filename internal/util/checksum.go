package util

import (
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// ContentChecksum hashes the given blobs in order. Each blob is length-prefixed
// so that moving bytes between neighbouring blobs changes the digest.
func ContentChecksum(blobs ...[]byte) string {
	digest := xxhash.New()
	var size [8]byte
	for _, blob := range blobs {
		n := uint64(len(blob))
		for i := range size {
			size[i] = byte(n >> (8 * i))
		}
		_, _ = digest.Write(size[:])
		_, _ = digest.Write(blob)
	}
	return hex.EncodeToString(digest.Sum(nil))
}
