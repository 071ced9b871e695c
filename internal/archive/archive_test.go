package archive

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTestZip(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "test.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	for name, content := range files {
		zf, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := zf.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"a.zip": FormatZip,
		"a.cbz": FormatZip,
		"a.rar": FormatRar,
		"a.cbr": FormatRar,
		"a.txt": FormatUnknown,
	}
	for name, want := range cases {
		if got := DetectFormat(name); got != want {
			t.Errorf("DetectFormat(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestManagerListAndExtract(t *testing.T) {
	dir := t.TempDir()
	path := writeTestZip(t, dir, map[string]string{
		"page001.png": "fake-png-bytes",
		"page002.png": "fake-png-bytes-2",
	})

	mgr := NewManager(ManagerConfig{TempDir: filepath.Join(dir, "tmp")})
	defer mgr.Close()

	entries, info, err := mgr.ListEntries(context.Background(), path)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if info.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", info.FileCount)
	}

	data, err := mgr.ExtractToMemory(context.Background(), path, "page001.png")
	if err != nil {
		t.Fatalf("ExtractToMemory: %v", err)
	}
	if string(data) != "fake-png-bytes" {
		t.Errorf("extracted %q, want %q", data, "fake-png-bytes")
	}
}

func TestManagerAcquireReusesReader(t *testing.T) {
	dir := t.TempDir()
	path := writeTestZip(t, dir, map[string]string{"a.png": "x"})

	mgr := NewManager(ManagerConfig{TempDir: filepath.Join(dir, "tmp")})
	defer mgr.Close()

	r1, err := mgr.Acquire(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := mgr.Acquire(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if r1 != r2 {
		t.Error("expected cached reader to be reused")
	}
}

func TestManagerExtractToTempTracksAndCleans(t *testing.T) {
	dir := t.TempDir()
	path := writeTestZip(t, dir, map[string]string{"a.png": "contents"})
	tempDir := filepath.Join(dir, "tmp")

	mgr := NewManager(ManagerConfig{TempDir: tempDir})
	defer mgr.Close()

	tmpPath, err := mgr.ExtractToTemp(context.Background(), path, "a.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(tmpPath); err != nil {
		t.Fatalf("temp file missing: %v", err)
	}
	mgr.CleanupTempFiles()
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Error("expected temp file to be removed after cleanup")
	}
}

func TestManagerExtractToMemoryNotFound(t *testing.T) {
	dir := t.TempDir()
	path := writeTestZip(t, dir, map[string]string{"a.png": "x"})
	mgr := NewManager(ManagerConfig{TempDir: filepath.Join(dir, "tmp")})
	defer mgr.Close()

	_, err := mgr.ExtractToMemory(context.Background(), path, "missing.png")
	if err == nil {
		t.Fatal("expected error for missing entry")
	}
}
