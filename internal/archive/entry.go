// Package archive implements C3: the archive reader pool. It exposes
// per-entry listing and extraction (to memory, to a file, or to a managed
// temp file) over zip (.zip/.cbz) and rar (.rar/.cbr) archives, behind a
// keyed, size-bounded pool of opened readers.
package archive

import (
	"path"
	"strings"
	"time"
)

// ArchiveEntry describes one entry inside an archive (spec §3).
type ArchiveEntry struct {
	Path             string // always '/' separated
	Name             string
	IsDirectory      bool
	IsEncrypted      bool
	CompressedSize   int64
	UncompressedSize int64
	ModifiedTime     time.Time
	CRC32            uint32
	Attributes       uint32
}

// IsImage reports whether the entry's extension looks like a supported
// image format. Used by read-only browsing callers to filter ArchiveInfo.
func (e ArchiveEntry) IsImage() bool {
	ext := strings.ToLower(path.Ext(e.Name))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp", ".avif":
		return true
	default:
		return false
	}
}

// Format identifies the archive container format.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatRar
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatRar:
		return "rar"
	default:
		return "unknown"
	}
}

// DetectFormat classifies an archive path by extension.
func DetectFormat(archivePath string) Format {
	switch strings.ToLower(path.Ext(archivePath)) {
	case ".zip", ".cbz":
		return FormatZip
	case ".rar", ".cbr":
		return FormatRar
	default:
		return FormatUnknown
	}
}

// IsArchive reports whether archivePath names a supported archive
// container.
func IsArchive(archivePath string) bool {
	return DetectFormat(archivePath) != FormatUnknown
}

// ArchiveInfo is the aggregate description of an opened archive (spec §3).
// Invariant: FileCount + DirectoryCount == len(Entries).
type ArchiveInfo struct {
	SourcePath     string
	Format         Format
	IsEncrypted    bool
	IsSolid        bool
	IsMultiVolume  bool
	FileCount      int
	DirectoryCount int
	TotalCompressed   int64
	TotalUncompressed int64
	Entries        []ArchiveEntry
}

func buildInfo(sourcePath string, format Format, entries []ArchiveEntry, encrypted, solid, multiVolume bool) ArchiveInfo {
	info := ArchiveInfo{
		SourcePath:    sourcePath,
		Format:        format,
		IsEncrypted:   encrypted,
		IsSolid:       solid,
		IsMultiVolume: multiVolume,
		Entries:       entries,
	}
	for _, e := range entries {
		if e.IsDirectory {
			info.DirectoryCount++
		} else {
			info.FileCount++
		}
		info.TotalCompressed += e.CompressedSize
		info.TotalUncompressed += e.UncompressedSize
	}
	return info
}

// normalizeEntryPath replaces backslashes with '/' so entry lookup can
// compare paths uniformly regardless of how the archive tool encoded them.
func normalizeEntryPath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
