package cache

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Key joins parts into a colon-delimited cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// HashKey produces a short stable digest for keys too long or too dynamic to
// store verbatim.
func HashKey(key string) string {
	h := fnv.New64a()
	h.Write([]byte(key))
	return strconv.FormatUint(h.Sum64(), 16)
}
