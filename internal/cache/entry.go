// Package cache implements C2: the two-tier thumbnail cache. Tier 1 is an
// in-memory LRU of decoded thumbnails; tier 2 is an embedded on-disk store
// of compressed blobs with sidecar metadata. Lookups fall through from
// tier 1 to tier 2 and promote on hit; puts write through both tiers and
// may trigger count/size-bounded eviction.
package cache

import (
	"time"

	"github.com/dustin/go-humanize"

	"nive/internal/decode"
)

// entry is the in-memory (tier-1) cached value: the decoded thumbnail
// plus the original dimensions returned on a hit. sizeBytes and
// lastAccess are recorded here, but Stats() and eviction read tier 2.
type entry struct {
	thumbnail    *decode.DecodedImage
	originalW    int
	originalH    int
	sizeBytes    int64
	lastAccess   time.Time
}

// Stats summarizes the store's current occupancy (spec §4.2's stats()).
type Stats struct {
	Tier1Entries int
	Tier2Entries int
	TotalBytes   int64
	Hits         int64
	Misses       int64
}

func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// String renders human-readable occupancy, matching sashko-guz-mage's
// formatBytes-style logging but via the ecosystem humanize package.
func (s Stats) String() string {
	return humanize.Comma(int64(s.Tier1Entries)) + " hot, " +
		humanize.Comma(int64(s.Tier2Entries)) + " stored (" + humanize.Bytes(uint64(s.TotalBytes)) + ")"
}
