package thumbnail

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"nive/internal/cache"
	"nive/internal/decode"
	"nive/internal/logging"
	"nive/internal/queue"
)

var log = logging.Component("thumbnail")

// CacheStore is the subset of *cache.Store the generator depends on,
// narrowed to an interface so tests can substitute a fake.
type CacheStore interface {
	GetThumbnail(identifier string, targetSize int, stat cache.SourceStat) (*decode.DecodedImage, int, int, bool)
	PutThumbnail(identifier string, targetSize int, stat cache.SourceStat, thumb *decode.DecodedImage, originalW, originalH int) error
}

// Config mirrors spec §4.5's generator configuration.
type Config struct {
	WorkerCount          int
	DefaultThumbnailSize int
	MaxQueueSize         int
}

// Generator is the C5 thumbnail worker pool: it drains a C4 queue,
// consults an optional C2 cache, decodes and downsamples via
// internal/decode, and delivers results through per-request callbacks.
type Generator struct {
	cfg      Config
	queue    *queue.Queue
	decoders *decode.Registry
	cache    CacheStore

	nextID  atomic.Uint64
	running atomic.Bool

	stats struct {
		totalRequests atomic.Int64
		completed     atomic.Int64
		failed        atomic.Int64
		cancelled     atomic.Int64
		processingMs  atomic.Int64
	}

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New constructs a stopped Generator. Call Start to spawn workers.
func New(cfg Config, decoders *decode.Registry) *Generator {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.DefaultThumbnailSize <= 0 {
		cfg.DefaultThumbnailSize = 256
	}
	if decoders == nil {
		decoders = decode.NewRegistry()
	}
	return &Generator{
		cfg:      cfg,
		queue:    queue.New(),
		decoders: decoders,
	}
}

// SetCache installs (or clears, with nil) the cache backing GetThumbnail
// lookups and PutThumbnail writes.
func (g *Generator) SetCache(c CacheStore) {
	g.cache = c
}

// IsRunning reports whether workers are currently spawned.
func (g *Generator) IsRunning() bool {
	return g.running.Load()
}

// Start spawns worker_count workers. Idempotent: a second call while
// already running is a no-op (spec §4.5 lifecycle step 1).
func (g *Generator) Start() {
	if !g.running.CompareAndSwap(false, true) {
		return
	}
	g.queue.Restart()
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	grp, _ := errgroup.WithContext(ctx)
	g.group = grp
	for i := 0; i < g.cfg.WorkerCount; i++ {
		grp.Go(func() error {
			g.workerLoop()
			return nil
		})
	}
}

// Stop clears the run flag, stops the queue (waking all workers), and
// joins them. Idempotent.
func (g *Generator) Stop() {
	if !g.running.CompareAndSwap(true, false) {
		return
	}
	g.queue.Stop()
	if g.group != nil {
		g.group.Wait()
	}
	if g.cancel != nil {
		g.cancel()
	}
}

// Request enqueues a thumbnail request and returns its ID (spec §4.5's
// request()/request_from_memory(), unified since Source already
// disambiguates File vs Memory).
func (g *Generator) Request(source Source, targetSize int, priority Priority, callback func(Result)) uint64 {
	if targetSize <= 0 {
		targetSize = g.cfg.DefaultThumbnailSize
	}
	id := g.nextID.Add(1)
	g.stats.totalRequests.Add(1)
	req := Request{ID: id, Source: source, TargetSize: targetSize, Priority: priority, Callback: callback}
	g.queue.Push(queue.Item{
		ID:        id,
		Priority:  queue.Priority(priority),
		CreatedAt: monotonicCounter(),
		Payload:   req,
	})
	return id
}

// monotonicCounter substitutes for wall-clock CreatedAt ordering with a
// simple per-process counter, avoiding a time.Now() call on every
// request while preserving FIFO tie-break semantics (insertion order is
// still totally ordered).
var createdAtCounter atomic.Int64

func monotonicCounter() int64 {
	return createdAtCounter.Add(1)
}

// Cancel delegates to the queue and credits the cancelled stat.
func (g *Generator) Cancel(id uint64) bool {
	ok := g.queue.Cancel(id)
	if ok {
		g.stats.cancelled.Add(1)
	}
	return ok
}

// CancelByPath cancels every pending request whose source identifies
// path.
func (g *Generator) CancelByPath(path string) int {
	count := g.queue.CancelByPath(func(payload any) bool {
		req, ok := payload.(Request)
		return ok && req.Source.Path == path
	})
	g.stats.cancelled.Add(int64(count))
	return count
}

// CancelAll drains the queue, crediting every drained request as
// cancelled.
func (g *Generator) CancelAll() int {
	count := g.queue.CancelAll()
	g.stats.cancelled.Add(int64(count))
	return count
}

// UpdatePriority delegates to the queue.
func (g *Generator) UpdatePriority(id uint64, priority Priority) bool {
	return g.queue.UpdatePriority(id, queue.Priority(priority))
}

// PendingCount reports the number of requests still queued.
func (g *Generator) PendingCount() int {
	return g.queue.Len()
}

// Stats returns a snapshot of the generator's counters.
func (g *Generator) Stats() Stats {
	return Stats{
		TotalRequests:         g.stats.totalRequests.Load(),
		Completed:             g.stats.completed.Load(),
		Failed:                g.stats.failed.Load(),
		Cancelled:             g.stats.cancelled.Load(),
		TotalProcessingTimeMs: g.stats.processingMs.Load(),
	}
}

// workerLoop is one worker thread's main loop (spec §4.5).
func (g *Generator) workerLoop() {
	for {
		item, ok := g.queue.Pop()
		if !ok {
			return
		}
		if g.queue.IsCancelled(item.ID) {
			g.queue.ClearCancelled(item.ID)
			continue
		}
		req, ok := item.Payload.(Request)
		if !ok {
			continue
		}
		g.process(req)
	}
}

func (g *Generator) process(req Request) {
	start := time.Now()

	stat, hasStat := statFor(req.Source)

	if req.Source.Kind == SourceFile && g.cache != nil && hasStat {
		if thumb, ow, oh, hit := g.cache.GetThumbnail(req.Source.Path, req.TargetSize, stat); hit {
			g.deliver(req, Result{Path: req.Source.Path, Thumbnail: thumb, OriginalWidth: ow, OriginalHeight: oh})
			g.stats.completed.Add(1)
			g.stats.processingMs.Add(time.Since(start).Milliseconds())
			return
		}
	}

	var decoded *decode.DecodedImage
	var origW, origH int
	var err error
	if req.Source.Kind == SourceMemory {
		decoded, origW, origH, err = g.decoders.DecodeBytes(req.Source.Bytes, "")
	} else {
		decoded, origW, origH, err = g.decoders.DecodeFile(req.Source.Path)
	}
	if err != nil {
		g.stats.failed.Add(1)
		g.deliver(req, Result{Path: req.Source.Path, Err: err})
		return
	}

	thumb := decode.Downsample(decoded, req.TargetSize)

	if req.Source.Kind == SourceFile && g.cache != nil && hasStat {
		if err := g.cache.PutThumbnail(req.Source.Path, req.TargetSize, stat, thumb, origW, origH); err != nil {
			log.Warnf("cache write for %s: %v", req.Source.Path, err)
		}
	}

	g.stats.completed.Add(1)
	g.stats.processingMs.Add(time.Since(start).Milliseconds())
	g.deliver(req, Result{Path: req.Source.Path, Thumbnail: thumb, OriginalWidth: origW, OriginalHeight: origH})
}

// deliver invokes the callback only if the queue has not been stopped
// since pop, swallowing any panic from the callback (spec §4.5's
// delivery contract: at-most-once, never propagate callback failures).
func (g *Generator) deliver(req Request, result Result) {
	if g.queue.Stopped() {
		return
	}
	if req.Callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("callback for request %d panicked: %v", req.ID, r)
		}
	}()
	req.Callback(result)
}

// statFor returns the freshness stat to key the cache on. File sources
// stat the filesystem directly; Memory sources (archive entries) have
// no stat here, so they are neither looked up in nor written to the
// cache.
func statFor(source Source) (cache.SourceStat, bool) {
	if source.Kind != SourceFile {
		return cache.SourceStat{}, false
	}
	info, err := os.Stat(source.Path)
	if err != nil {
		return cache.SourceStat{}, false
	}
	return cache.SourceStat{ModTime: info.ModTime().Unix(), Size: info.Size()}, true
}
