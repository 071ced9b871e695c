package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"

	"nive/internal/decode"
	"nive/internal/logging"
	"nive/internal/verrors"
)

var log = logging.Component("cache")

// Config mirrors spec §6's CacheStore::open enumerated options.
type Config struct {
	DatabasePath      string
	MemoryCacheSize   int
	MaxEntries        int
	MaxSizeBytes      int64
	CompressionLevel  int // 0..19; 0 disables compression
	RetentionEnabled  bool
	RetentionDays     int
}

// Store is the C2 two-tier cache: an in-memory LRU (tier 1) backed by an
// embedded on-disk store (tier 2). Multiple readers are permitted
// concurrently; puts take an exclusive lock (spec §4.2's concurrency
// rule).
type Store struct {
	cfg Config

	mu     sync.RWMutex
	tier1  *lru.Cache[string, *entry]
	tier2  *tier2

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	statsMu sync.Mutex
	hits    int64
	misses  int64

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// Open constructs a Store per spec §6's CacheStore::open(config).
func Open(cfg Config) (*Store, error) {
	if cfg.MemoryCacheSize <= 0 {
		cfg.MemoryCacheSize = 256
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.CompressionLevel < 0 || cfg.CompressionLevel > 19 {
		return nil, verrors.New(verrors.InternalError, "compression_level must be in [0, 19]")
	}

	t1, err := lru.New[string, *entry](cfg.MemoryCacheSize)
	if err != nil {
		return nil, verrors.Wrap(verrors.InternalError, "tier1 lru", err)
	}

	t2, err := openTier2(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:       cfg,
		tier1:     t1,
		tier2:     t2,
		stopSweep: make(chan struct{}),
	}

	if cfg.CompressionLevel > 0 {
		level := zstd.EncoderLevelFromZstd(cfg.CompressionLevel)
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if err != nil {
			t2.close()
			return nil, verrors.Wrap(verrors.InternalError, "zstd encoder", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			t2.close()
			return nil, verrors.Wrap(verrors.InternalError, "zstd decoder", err)
		}
		s.encoder = enc
		s.decoder = dec
	}

	if cfg.RetentionEnabled {
		go s.retentionSweeper()
	}

	return s, nil
}

// GetThumbnail implements spec §4.2's get_thumbnail.
func (s *Store) GetThumbnail(identifier string, targetSize int, stat SourceStat) (*decode.DecodedImage, int, int, bool) {
	key := fingerprint(identifier, targetSize, stat)

	if e, ok := s.tier1.Get(key); ok {
		s.recordHit()
		e.lastAccess = time.Now()
		return e.thumbnail, e.originalW, e.originalH, true
	}

	s.mu.RLock()
	row, ok, err := s.tier2.get(key)
	s.mu.RUnlock()
	if err != nil {
		log.Warnf("tier2 get %s: %v", key, err)
		s.recordMiss()
		return nil, 0, 0, false
	}
	if !ok {
		s.recordMiss()
		return nil, 0, 0, false
	}

	img, err := s.decodeBlob(row)
	if err != nil {
		log.Warnf("decode cached blob %s: %v", key, err)
		s.recordMiss()
		return nil, 0, 0, false
	}

	now := time.Now()
	s.tier1.Add(key, &entry{
		thumbnail:  img,
		originalW:  row.originalW,
		originalH:  row.originalH,
		sizeBytes:  row.sizeBytes,
		lastAccess: now,
	})
	s.mu.Lock()
	s.tier2.touch(key, now.Unix())
	s.mu.Unlock()

	s.recordHit()
	return img, row.originalW, row.originalH, true
}

// PutThumbnail implements spec §4.2's put_thumbnail, writing through both
// tiers and triggering eviction if either bound is exceeded.
func (s *Store) PutThumbnail(identifier string, targetSize int, stat SourceStat, thumb *decode.DecodedImage, originalW, originalH int) error {
	key := fingerprint(identifier, targetSize, stat)
	blob, compressed := s.encodeBlob(thumb)

	row := tier2Row{
		key:         key,
		blob:        blob,
		width:       thumb.Width,
		height:      thumb.Height,
		pixelFormat: int(thumb.Format),
		originalW:   originalW,
		originalH:   originalH,
		compressed:  compressed,
		sizeBytes:   int64(len(blob)),
		lastAccess:  time.Now().Unix(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok, _ := s.tier2.get(key); ok && existing != nil {
		// identical fingerprint: no-op except bumping last_access.
		s.tier2.touch(key, row.lastAccess)
		s.tier1.Add(key, &entry{
			thumbnail:  thumb,
			originalW:  originalW,
			originalH:  originalH,
			sizeBytes:  existing.sizeBytes,
			lastAccess: time.Now(),
		})
		return nil
	}

	if err := s.tier2.put(row); err != nil {
		return err
	}
	s.tier1.Add(key, &entry{
		thumbnail:  thumb,
		originalW:  originalW,
		originalH:  originalH,
		sizeBytes:  row.sizeBytes,
		lastAccess: time.Now(),
	})

	s.evictIfNeededLocked()
	return nil
}

// evictIfNeededLocked removes least-recently-accessed entries from tier 2
// (and their tier-1 counterparts, if present) until both max_entries and
// max_size_bytes hold. Caller must hold s.mu.
func (s *Store) evictIfNeededLocked() {
	for {
		count, total, err := s.tier2.countAndSize()
		if err != nil {
			log.Warnf("evict: count/size: %v", err)
			return
		}
		overCount := s.cfg.MaxEntries > 0 && count > s.cfg.MaxEntries
		overSize := s.cfg.MaxSizeBytes > 0 && total > s.cfg.MaxSizeBytes
		if !overCount && !overSize {
			return
		}
		batch := count - s.cfg.MaxEntries
		if batch < 1 {
			batch = 1
		}
		_, keys, err := s.tier2.evictLRU(batch)
		if err != nil {
			log.Warnf("evict: %v", err)
			return
		}
		if len(keys) == 0 {
			return
		}
		for _, k := range keys {
			s.tier1.Remove(k)
		}
	}
}

// retentionSweeper periodically removes entries older than
// retention_days (spec §4.2's optional retention), grounded on
// sashko-guz-mage/internal/cache/disk_cache.go's cleanupExpired adaptive
// backoff.
func (s *Store) retentionSweeper() {
	const baseInterval = 1 * time.Hour
	const maxInterval = 12 * time.Hour
	interval := baseInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-s.stopSweep:
			return
		case <-timer.C:
		}

		cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays).Unix()
		s.mu.Lock()
		deleted, err := s.sweepLocked(cutoff)
		s.mu.Unlock()
		if err != nil {
			log.Warnf("retention sweep: %v", err)
		} else if deleted > 0 {
			log.Infof("retention sweep removed %d entries", deleted)
			interval = baseInterval
		} else {
			interval += baseInterval
			if interval > maxInterval {
				interval = maxInterval
			}
		}
		timer.Reset(interval)
	}
}

// sweepLocked performs one retention pass. Caller must hold s.mu.
// Entries inserted concurrently are protected from the in-flight sweep
// by construction: deleteOlderThan only ever selects rows that were
// already stale as of the query, and s.mu being held during the sweep
// serializes it against PutThumbnail.
func (s *Store) sweepLocked(cutoff int64) (int, error) {
	deleted, err := s.tier2.deleteOlderThan(cutoff, nil)
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Stats returns current occupancy (spec §4.2's stats()).
func (s *Store) Stats() Stats {
	s.mu.RLock()
	count, total, _ := s.tier2.countAndSize()
	s.mu.RUnlock()

	s.statsMu.Lock()
	hits, misses := s.hits, s.misses
	s.statsMu.Unlock()

	return Stats{
		Tier1Entries: s.tier1.Len(),
		Tier2Entries: count,
		TotalBytes:   total,
		Hits:         hits,
		Misses:       misses,
	}
}

// Clear empties both tiers.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tier1.Purge()
	return s.tier2.clear()
}

// Vacuum compacts the on-disk store.
func (s *Store) Vacuum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tier2.vacuum()
}

// Close stops the retention sweeper (if running) and closes tier 2.
func (s *Store) Close() error {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
	return s.tier2.close()
}

func (s *Store) recordHit() {
	s.statsMu.Lock()
	s.hits++
	s.statsMu.Unlock()
}

func (s *Store) recordMiss() {
	s.statsMu.Lock()
	s.misses++
	s.statsMu.Unlock()
}
