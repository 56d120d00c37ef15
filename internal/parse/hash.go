package parse

import (
	"encoding/hex"

	"github.com/zeebo/xxh3"
)

// HashBytes returns the hex xxh3 digest of b.
func HashBytes(b []byte) string {
	h := xxh3.New()
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}
