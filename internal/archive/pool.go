package archive

import (
	"container/list"
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"nive/internal/logging"
	"nive/internal/verrors"
)

var log = logging.Component("archive")

const defaultShardCount = 16

// ManagerConfig tunes the pool's bounds.
type ManagerConfig struct {
	MaxCachedArchives int
	MaxConcurrentOpen int
	TempDir           string
	PasswordCallback  PasswordCallback
}

type poolEntry struct {
	path    string
	reader  *Reader
	element *list.Element
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*poolEntry
	lru     *list.List
	maxOpen int
	group   singleflight.Group
}

// Manager is the ArchiveManager described in spec §4.3/§9: a sharded,
// size-bounded LRU of opened archive readers, with bounded concurrent
// opens and request deduplication, grounded on the sharded ZipPartCache
// pattern (shard-per-hash, container/list LRU, golang.org/x/sync
// semaphore + singleflight) and generalized from zip-only to the zip/rar
// Reader abstraction plus the password retry loop and temp-file
// extraction spec.md requires.
type Manager struct {
	shards    []shard
	numShards uint64
	openSem   *semaphore.Weighted
	tempDir   string
	passwordCB PasswordCallback

	tempMu    sync.Mutex
	tempFiles map[string]struct{}
}

// NewManager constructs a pool with the given bounds.
func NewManager(cfg ManagerConfig) *Manager {
	maxOpen := cfg.MaxCachedArchives
	if maxOpen <= 0 {
		maxOpen = 32
	}
	maxConcurrent := cfg.MaxConcurrentOpen
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	numShards := uint64(defaultShardCount)
	perShard := maxOpen / int(numShards)
	if perShard < 1 {
		perShard = 1
	}
	shards := make([]shard, numShards)
	for i := range shards {
		shards[i] = shard{
			entries: make(map[string]*poolEntry),
			lru:     list.New(),
			maxOpen: perShard,
		}
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "nive")
	}
	return &Manager{
		shards:     shards,
		numShards:  numShards,
		openSem:    semaphore.NewWeighted(int64(maxConcurrent)),
		tempDir:    tempDir,
		passwordCB: cfg.PasswordCallback,
		tempFiles:  make(map[string]struct{}),
	}
}

func (m *Manager) shardFor(path string) *shard {
	h := xxhash.Sum64String(path)
	return &m.shards[h%m.numShards]
}

// Acquire returns an opened Reader for archivePath, opening (and, for
// encrypted archives, running the password retry loop up to 3 attempts)
// on first access, and reusing the cached reader on a hit. Concurrent
// callers for the same uncached path are deduplicated via singleflight.
func (m *Manager) Acquire(ctx context.Context, archivePath string) (*Reader, error) {
	sh := m.shardFor(archivePath)

	sh.mu.Lock()
	if entry, ok := sh.entries[archivePath]; ok {
		sh.lru.MoveToFront(entry.element)
		sh.mu.Unlock()
		return entry.reader, nil
	}
	sh.mu.Unlock()

	val, err, _ := sh.group.Do(archivePath, func() (interface{}, error) {
		sh.mu.Lock()
		if entry, ok := sh.entries[archivePath]; ok {
			sh.lru.MoveToFront(entry.element)
			sh.mu.Unlock()
			return entry.reader, nil
		}
		sh.mu.Unlock()

		if err := m.openSem.Acquire(ctx, 1); err != nil {
			return nil, verrors.Wrap(verrors.Cancelled, "acquire archive slot", err)
		}
		defer m.openSem.Release(1)

		r := newReader(archivePath)
		if err := m.openWithPasswordRetry(r); err != nil {
			return nil, err
		}

		sh.mu.Lock()
		defer sh.mu.Unlock()
		if existing, ok := sh.entries[archivePath]; ok {
			sh.lru.MoveToFront(existing.element)
			r.Close()
			return existing.reader, nil
		}
		if len(sh.entries) >= sh.maxOpen {
			m.evictLocked(sh)
		}
		entry := &poolEntry{path: archivePath, reader: r}
		entry.element = sh.lru.PushFront(archivePath)
		sh.entries[archivePath] = entry
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*Reader), nil
}

// openWithPasswordRetry tries opening without a password first, then asks
// the configured PasswordCallback up to 3 times on PasswordRequired or
// WrongPassword (spec §4.3).
func (m *Manager) openWithPasswordRetry(r *Reader) error {
	err := r.open("", false)
	if err == nil {
		return nil
	}
	kind := verrors.KindOf(err)
	if kind != verrors.PasswordRequired && kind != verrors.WrongPassword {
		return err
	}
	if m.passwordCB == nil {
		return err
	}
	for attempt := 1; attempt <= 3; attempt++ {
		password, ok := m.passwordCB(attempt)
		if !ok {
			return verrors.New(verrors.PasswordRequired, r.path)
		}
		err = r.open(password, true)
		if err == nil {
			return nil
		}
		kind = verrors.KindOf(err)
		if kind != verrors.PasswordRequired && kind != verrors.WrongPassword {
			return err
		}
	}
	return verrors.New(verrors.WrongPassword, r.path)
}

// evictLocked closes and removes the least-recently-used reader in the
// shard. Caller must hold sh.mu.
func (m *Manager) evictLocked(sh *shard) {
	elem := sh.lru.Back()
	if elem == nil {
		return
	}
	sh.lru.Remove(elem)
	path, _ := elem.Value.(string)
	entry, ok := sh.entries[path]
	if !ok {
		return
	}
	if err := entry.reader.Close(); err != nil {
		log.Warnf("evict %s: %v", path, err)
	}
	delete(sh.entries, path)
}

// Release closes and drops an archive reader ahead of its natural LRU
// eviction, e.g. when the caller knows the archive changed on disk.
func (m *Manager) Release(archivePath string) {
	sh := m.shardFor(archivePath)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	entry, ok := sh.entries[archivePath]
	if !ok {
		return
	}
	sh.lru.Remove(entry.element)
	delete(sh.entries, archivePath)
	if err := entry.reader.Close(); err != nil {
		log.Warnf("release %s: %v", archivePath, err)
	}
}

// ListEntries opens (or reuses) archivePath and returns its contents.
func (m *Manager) ListEntries(ctx context.Context, archivePath string) ([]ArchiveEntry, ArchiveInfo, error) {
	r, err := m.Acquire(ctx, archivePath)
	if err != nil {
		return nil, ArchiveInfo{}, err
	}
	return r.ListEntries()
}

// ExtractToMemory returns the raw bytes of a single entry.
func (m *Manager) ExtractToMemory(ctx context.Context, archivePath, internalPath string) ([]byte, error) {
	r, err := m.Acquire(ctx, archivePath)
	if err != nil {
		return nil, err
	}
	return r.ExtractToMemory(internalPath)
}

// ExtractToFile streams a single entry to destPath, reporting progress.
func (m *Manager) ExtractToFile(ctx context.Context, archivePath, internalPath, destPath string, progress ProgressCallback) error {
	r, err := m.Acquire(ctx, archivePath)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return verrors.Wrap(verrors.IoError, destPath, err)
	}
	defer f.Close()
	return r.ExtractToWriter(internalPath, f, progress)
}

// ExtractToTemp extracts an entry into a managed, collision-checked
// temp file under the pool's temp directory and tracks it for later
// CleanupTempFiles. The caller owns deleting the file once done;
// CleanupTempFiles (also run by Close) removes any this process still
// tracks.
func (m *Manager) ExtractToTemp(ctx context.Context, archivePath, internalPath string) (string, error) {
	r, err := m.Acquire(ctx, archivePath)
	if err != nil {
		return "", err
	}
	f, path, err := newTempFile(m.tempDir, filepath.Base(internalPath))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := r.ExtractToWriter(internalPath, f, nil); err != nil {
		os.Remove(path)
		return "", err
	}
	m.tempMu.Lock()
	m.tempFiles[path] = struct{}{}
	m.tempMu.Unlock()
	return path, nil
}

// CleanupTempFiles removes every temp file this pool has created that is
// still tracked (i.e. not already removed by its consumer).
func (m *Manager) CleanupTempFiles() {
	m.tempMu.Lock()
	paths := make([]string, 0, len(m.tempFiles))
	for p := range m.tempFiles {
		paths = append(paths, p)
	}
	m.tempFiles = make(map[string]struct{})
	m.tempMu.Unlock()
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warnf("cleanup temp file %s: %v", p, err)
		}
	}
}

// Close releases every cached reader across all shards.
func (m *Manager) Close() error {
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		for path, entry := range sh.entries {
			if err := entry.reader.Close(); err != nil {
				log.Warnf("close %s: %v", path, err)
			}
		}
		sh.entries = make(map[string]*poolEntry)
		sh.lru = list.New()
		sh.mu.Unlock()
	}
	m.CleanupTempFiles()
	return nil
}
