package thumbnail

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"nive/internal/cache"
	"nive/internal/decode"
)

func writeTestPNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: byte(x), G: byte(y), B: 0, A: 255})
		}
	}
	path := filepath.Join(dir, "test.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g := New(Config{WorkerCount: 2, DefaultThumbnailSize: 64}, decode.NewRegistry())
	g.Start()
	t.Cleanup(g.Stop)
	return g
}

func TestRequestFileDecodesAndDownsamples(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, 400, 200)
	g := newTestGenerator(t)

	var wg sync.WaitGroup
	wg.Add(1)
	var result Result
	g.Request(FileSource(path), 100, PriorityNormal, func(r Result) {
		result = r
		wg.Done()
	})

	waitOrTimeout(t, &wg)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Thumbnail == nil {
		t.Fatal("expected a thumbnail")
	}
	if result.OriginalWidth != 400 || result.OriginalHeight != 200 {
		t.Errorf("original dims = %dx%d, want 400x200", result.OriginalWidth, result.OriginalHeight)
	}
	if result.Thumbnail.Width != 100 || result.Thumbnail.Height != 50 {
		t.Errorf("thumbnail dims = %dx%d, want 100x50", result.Thumbnail.Width, result.Thumbnail.Height)
	}
}

func TestRequestMemoryDecodesFromBytes(t *testing.T) {
	data := pngBytes(t, 64, 64)
	g := newTestGenerator(t)

	var wg sync.WaitGroup
	wg.Add(1)
	var result Result
	g.Request(Source{Kind: SourceMemory, Path: "archive.zip|img.png", Bytes: data}, 32, PriorityNormal, func(r Result) {
		result = r
		wg.Done()
	})

	waitOrTimeout(t, &wg)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Thumbnail.Width != 32 || result.Thumbnail.Height != 32 {
		t.Errorf("thumbnail dims = %dx%d, want 32x32", result.Thumbnail.Width, result.Thumbnail.Height)
	}
}

func TestRequestNeverUpscales(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, 50, 50)
	g := newTestGenerator(t)

	var wg sync.WaitGroup
	wg.Add(1)
	var result Result
	g.Request(FileSource(path), 256, PriorityNormal, func(r Result) {
		result = r
		wg.Done()
	})

	waitOrTimeout(t, &wg)
	if result.Thumbnail.Width != 50 || result.Thumbnail.Height != 50 {
		t.Errorf("thumbnail dims = %dx%d, want unchanged 50x50", result.Thumbnail.Width, result.Thumbnail.Height)
	}
}

func TestCancelBeforeProcessingDeliversNothing(t *testing.T) {
	g := New(Config{WorkerCount: 0, DefaultThumbnailSize: 64}, decode.NewRegistry())
	// No workers started: request sits in the queue uncontested.
	called := false
	id := g.Request(FileSource("/nonexistent.png"), 64, PriorityNormal, func(r Result) {
		called = true
	})
	if !g.Cancel(id) {
		t.Fatal("expected Cancel to return true for a fresh id")
	}
	time.Sleep(20 * time.Millisecond)
	if called {
		t.Error("expected callback never invoked for a cancelled, unstarted request")
	}
}

func TestRequestDecodeErrorReportsErr(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(path, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := newTestGenerator(t)

	var wg sync.WaitGroup
	wg.Add(1)
	var result Result
	g.Request(FileSource(path), 64, PriorityNormal, func(r Result) {
		result = r
		wg.Done()
	})
	waitOrTimeout(t, &wg)

	if result.Err == nil {
		t.Fatal("expected decode error")
	}
	if result.Thumbnail != nil {
		t.Error("expected no thumbnail on error")
	}
}

type fakeCache struct {
	mu    sync.Mutex
	puts  int
	store map[string]*decode.DecodedImage
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string]*decode.DecodedImage)}
}

func (f *fakeCache) GetThumbnail(identifier string, targetSize int, stat cache.SourceStat) (*decode.DecodedImage, int, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.store[identifier]
	return img, 0, 0, ok
}

func (f *fakeCache) PutThumbnail(identifier string, targetSize int, stat cache.SourceStat, thumb *decode.DecodedImage, originalW, originalH int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.store[identifier] = thumb
	return nil
}

func TestCacheHitSkipsDecode(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, 100, 100)
	fc := newFakeCache()
	g := newTestGenerator(t)
	g.SetCache(fc)

	var wg sync.WaitGroup
	wg.Add(1)
	g.Request(FileSource(path), 50, PriorityNormal, func(r Result) { wg.Done() })
	waitOrTimeout(t, &wg)

	if fc.puts != 1 {
		t.Fatalf("expected 1 cache write, got %d", fc.puts)
	}

	wg.Add(1)
	var second Result
	g.Request(FileSource(path), 50, PriorityNormal, func(r Result) {
		second = r
		wg.Done()
	})
	waitOrTimeout(t, &wg)

	if second.Err != nil {
		t.Fatalf("unexpected error on cache hit path: %v", second.Err)
	}
	if fc.puts != 1 {
		t.Errorf("expected no additional cache write on hit, puts = %d", fc.puts)
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}
