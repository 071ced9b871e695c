package cache

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// same blake3.Sum256 entry point sashko-guz-mage's disk cache uses for
// its content-addressed keys (internal/cache/disk_cache.go's getHash).

// SourceStat is the freshness signal a cache lookup is keyed against: the
// source's modification time (unix seconds) and byte size. For an
// in-archive entry the caller supplies the archive's own mtime/size, not
// the entry's, so that updating the archive invalidates everything it
// contains (spec §4.2).
type SourceStat struct {
	ModTime int64
	Size    int64
}

// fingerprint derives the deterministic cache key from everything that
// influences the stored bytes: the source identifier, the requested
// thumbnail size, and the source's freshness stat.
func fingerprint(identifier string, targetSize int, stat SourceStat) string {
	key := fmt.Sprintf("%s\x00%d\x00%d\x00%d", identifier, targetSize, stat.ModTime, stat.Size)
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
