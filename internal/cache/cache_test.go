package cache

import (
	"path/filepath"
	"testing"

	"nive/internal/decode"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(t.TempDir(), "cache.db")
	}
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleImage(w, h int) *decode.DecodedImage {
	stride := (w*4 + 3) &^ 3
	return &decode.DecodedImage{
		Width:  w,
		Height: h,
		Format: decode.FormatRGBA32,
		Stride: stride,
		Pixels: make([]byte, stride*h),
	}
}

func TestPutThenGetRoundTrip(t *testing.T) {
	s := newTestStore(t, Config{CompressionLevel: 0})
	img := sampleImage(4, 4)
	for i := range img.Pixels {
		img.Pixels[i] = byte(i)
	}
	stat := SourceStat{ModTime: 100, Size: 1024}

	if err := s.PutThumbnail("/a/b.png", 256, stat, img, 800, 600); err != nil {
		t.Fatalf("PutThumbnail: %v", err)
	}

	got, ow, oh, ok := s.GetThumbnail("/a/b.png", 256, stat)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if ow != 800 || oh != 600 {
		t.Errorf("original dims = %dx%d, want 800x600", ow, oh)
	}
	if len(got.Pixels) != len(img.Pixels) {
		t.Fatalf("pixel length mismatch: got %d want %d", len(got.Pixels), len(img.Pixels))
	}
	for i := range got.Pixels {
		if got.Pixels[i] != img.Pixels[i] {
			t.Fatalf("pixel %d mismatch: got %d want %d", i, got.Pixels[i], img.Pixels[i])
		}
	}
}

func TestPutThenGetRoundTripCompressed(t *testing.T) {
	s := newTestStore(t, Config{CompressionLevel: 6})
	img := sampleImage(8, 8)
	for i := range img.Pixels {
		img.Pixels[i] = byte(i * 3)
	}
	stat := SourceStat{ModTime: 5, Size: 99}

	if err := s.PutThumbnail("id", 128, stat, img, 100, 100); err != nil {
		t.Fatal(err)
	}
	got, _, _, ok := s.GetThumbnail("id", 128, stat)
	if !ok {
		t.Fatal("expected hit")
	}
	for i := range got.Pixels {
		if got.Pixels[i] != img.Pixels[i] {
			t.Fatalf("pixel %d mismatch after compression round trip", i)
		}
	}
}

func TestGetMissReturnsFalse(t *testing.T) {
	s := newTestStore(t, Config{})
	_, _, _, ok := s.GetThumbnail("nope", 64, SourceStat{})
	if ok {
		t.Error("expected miss on empty cache")
	}
}

func TestDistinctSourceStatYieldsDistinctEntries(t *testing.T) {
	s := newTestStore(t, Config{})
	img := sampleImage(2, 2)

	s.PutThumbnail("id", 64, SourceStat{ModTime: 1, Size: 10}, img, 2, 2)
	s.PutThumbnail("id", 64, SourceStat{ModTime: 2, Size: 10}, img, 2, 2)

	stats := s.Stats()
	if stats.Tier2Entries != 2 {
		t.Errorf("Tier2Entries = %d, want 2 (different mtimes should not collide)", stats.Tier2Entries)
	}
}

func TestEvictionRespectsMaxEntries(t *testing.T) {
	s := newTestStore(t, Config{MaxEntries: 2, MemoryCacheSize: 2})
	img := sampleImage(2, 2)

	for i := 0; i < 5; i++ {
		stat := SourceStat{ModTime: int64(i), Size: 10}
		if err := s.PutThumbnail("id", 64, stat, img, 2, 2); err != nil {
			t.Fatal(err)
		}
	}

	stats := s.Stats()
	if stats.Tier2Entries > 2 {
		t.Errorf("Tier2Entries = %d, want <= 2 after eviction", stats.Tier2Entries)
	}
}

func TestPutDuplicateFingerprintIsNoop(t *testing.T) {
	s := newTestStore(t, Config{})
	img := sampleImage(2, 2)
	stat := SourceStat{ModTime: 1, Size: 1}

	if err := s.PutThumbnail("id", 64, stat, img, 2, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.PutThumbnail("id", 64, stat, img, 2, 2); err != nil {
		t.Fatal(err)
	}
	stats := s.Stats()
	if stats.Tier2Entries != 1 {
		t.Errorf("Tier2Entries = %d, want 1", stats.Tier2Entries)
	}
}

func TestClearEmptiesBothTiers(t *testing.T) {
	s := newTestStore(t, Config{})
	img := sampleImage(2, 2)
	s.PutThumbnail("id", 64, SourceStat{ModTime: 1, Size: 1}, img, 2, 2)

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	stats := s.Stats()
	if stats.Tier1Entries != 0 || stats.Tier2Entries != 0 {
		t.Errorf("expected empty store after Clear, got %+v", stats)
	}
}
