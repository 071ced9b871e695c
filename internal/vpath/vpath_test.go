package vpath

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		`C:/a/x.png`,
		`arc.zip|inside/pic.jpg`,
		`/home/user/archive.cbz|chapter01\page001.jpg`,
		``,
	}
	for _, s := range cases {
		v := Parse(s)
		if got := Parse(v.String()); !got.Equal(v) {
			t.Errorf("round-trip failed for %q: got %+v, want %+v", s, got, v)
		}
	}
}

func TestParseNoSeparator(t *testing.T) {
	v := Parse("C:/a/x.png")
	if v.IsInArchive() {
		t.Fatal("expected plain path")
	}
	if v.ArchivePath() != "C:/a/x.png" || v.InternalPath() != "" {
		t.Fatalf("unexpected parse: %+v", v)
	}
}

func TestParseNormalizesInternalSeparators(t *testing.T) {
	v := Parse(`arc.zip|/inside\sub\pic.jpg`)
	if v.InternalPath() != "inside/sub/pic.jpg" {
		t.Fatalf("got internal path %q", v.InternalPath())
	}
}

func TestFilenameAndExtension(t *testing.T) {
	v := Parse("arc.zip|inside/pic.JPG")
	if v.Filename() != "pic.JPG" {
		t.Fatalf("filename = %q", v.Filename())
	}
	if v.Extension() != "jpg" {
		t.Fatalf("extension = %q", v.Extension())
	}
}

func TestJoinInArchive(t *testing.T) {
	v := New("arc.zip", "inside")
	joined := v.Join("pic.jpg")
	if joined.String() != "arc.zip|inside/pic.jpg" {
		t.Fatalf("joined = %q", joined.String())
	}
}

func TestJoinPlainFilesystem(t *testing.T) {
	v := New("/home/user", "")
	joined := v.Join("folder")
	if joined.String() != "/home/user/folder" {
		t.Fatalf("joined = %q", joined.String())
	}
}

func TestParentInArchive(t *testing.T) {
	v := Parse("arc.zip|a/b/c.jpg")
	p := v.Parent()
	if p.String() != "arc.zip|a/b" {
		t.Fatalf("parent = %q", p.String())
	}
}

func TestOrdering(t *testing.T) {
	a := Parse("a.zip|1.jpg")
	b := Parse("b.zip|0.jpg")
	if !a.Less(b) {
		t.Fatal("expected a < b by archive path")
	}
}

func TestEmptyPath(t *testing.T) {
	v := Parse("")
	if !v.IsEmpty() {
		t.Fatal("expected empty path")
	}
}
