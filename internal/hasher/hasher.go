package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Hash returns the hex sha256 of the parts. Parts are length prefixed so that
// shifting bytes between neighbours changes the hash.
func Hash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
