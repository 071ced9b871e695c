// Package thumbnail implements C5: the worker-pool thumbnail generator.
// It drains the C4 priority queue, consults the C2 cache, decodes and
// downsamples via internal/decode, and delivers results through a
// per-request callback with an at-most-once guarantee.
package thumbnail

import (
	"nive/internal/decode"
	"nive/internal/vpath"
)

// Priority mirrors queue.Priority so callers of this package don't need
// to import internal/queue directly.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityImmediate
)

// SourceKind tags a ThumbnailSource's tagged-union variant (spec §3).
type SourceKind int

const (
	SourceFile SourceKind = iota
	SourceMemory
)

// Source is the tagged union File(path) | Memory(virtual_path, bytes).
// When Memory, Path serves as identifier only.
type Source struct {
	Kind  SourceKind
	Path  string
	Bytes []byte
}

// FileSource constructs a File-variant source.
func FileSource(path string) Source {
	return Source{Kind: SourceFile, Path: path}
}

// MemorySource constructs a Memory-variant source. vp is used only as an
// identifier (for result correlation and CancelByPath matching); data is
// decoded directly without touching the filesystem. Memory sources are
// not cached.
func MemorySource(vp vpath.VirtualPath, data []byte) Source {
	return Source{Kind: SourceMemory, Path: vp.String(), Bytes: data}
}

// Request is the ThumbnailRequest of spec §3, minus the queue-internal
// CreatedAt bookkeeping (owned by internal/queue.Item).
type Request struct {
	ID         uint64
	Source     Source
	TargetSize int
	Priority   Priority
	Callback   func(Result)
}

// Result is the ThumbnailResult of spec §3. Exactly one of Thumbnail or
// Err is set.
type Result struct {
	Path            string
	Thumbnail       *decode.DecodedImage
	Err             error
	OriginalWidth   int
	OriginalHeight  int
}

// Stats is a snapshot of the generator's atomic counters.
type Stats struct {
	TotalRequests        int64
	Completed            int64
	Failed               int64
	Cancelled            int64
	TotalProcessingTimeMs int64
}
