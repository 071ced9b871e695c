// Package vpath implements VirtualPath (C1): a uniform identifier for "a
// file that may live inside an archive".
package vpath

import (
	"path"
	"strings"
)

// Separator delimits the archive path from the internal path in the
// serialized wire form. It never occurs in legal filesystem paths on the
// target platforms.
const Separator = "|"

// VirtualPath is a pair (archive path, internal path) where internal path
// may be empty. A VirtualPath with an empty archive path is the empty path.
type VirtualPath struct {
	archivePath  string
	internalPath string
}

// Parse splits s on the first Separator. An absent separator yields
// (s, ""). Leading slashes are stripped from the internal part and all
// backslashes are normalized to forward slashes.
func Parse(s string) VirtualPath {
	archivePath, internalPath, found := strings.Cut(s, Separator)
	if !found {
		return VirtualPath{archivePath: archivePath}
	}
	internalPath = normalize(internalPath)
	return VirtualPath{archivePath: archivePath, internalPath: internalPath}
}

// New constructs a VirtualPath directly from its two components, applying
// the same normalization Parse does to the internal path.
func New(archivePath, internalPath string) VirtualPath {
	return VirtualPath{archivePath: archivePath, internalPath: normalize(internalPath)}
}

func normalize(internal string) string {
	internal = strings.ReplaceAll(internal, "\\", "/")
	internal = strings.TrimLeft(internal, "/")
	return internal
}

// String serializes v back to its wire form. Parse(v.String()) == v.
func (v VirtualPath) String() string {
	if v.internalPath == "" {
		return v.archivePath
	}
	return v.archivePath + Separator + v.internalPath
}

func (v VirtualPath) ArchivePath() string  { return v.archivePath }
func (v VirtualPath) InternalPath() string { return v.internalPath }

func (v VirtualPath) IsInArchive() bool { return v.internalPath != "" }

func (v VirtualPath) IsEmpty() bool { return v.archivePath == "" }

// Filename returns the base name of whichever path component is active.
func (v VirtualPath) Filename() string {
	if v.IsInArchive() {
		return path.Base(v.internalPath)
	}
	return path.Base(filepathToSlash(v.archivePath))
}

// Extension returns the lowercase extension (without the dot) of the
// filename, or "" if there is none.
func (v VirtualPath) Extension() string {
	name := v.Filename()
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// Parent returns the VirtualPath one level up. For an in-archive path this
// strips the last internal path segment; for a plain path it strips the
// last filesystem segment.
func (v VirtualPath) Parent() VirtualPath {
	if v.IsInArchive() {
		dir := path.Dir(v.internalPath)
		if dir == "." {
			dir = ""
		}
		return VirtualPath{archivePath: v.archivePath, internalPath: dir}
	}
	dir := path.Dir(filepathToSlash(v.archivePath))
	return VirtualPath{archivePath: dir}
}

// Join appends child to v. If v is in-archive, child is appended to the
// internal path with a '/' separator; otherwise it is joined onto the
// filesystem path.
func (v VirtualPath) Join(child string) VirtualPath {
	child = normalize(child)
	if v.archivePath == "" {
		return VirtualPath{archivePath: child}
	}
	if v.IsInArchive() {
		internal := v.internalPath
		if internal == "" {
			internal = child
		} else {
			internal = strings.TrimRight(internal, "/") + "/" + child
		}
		return VirtualPath{archivePath: v.archivePath, internalPath: internal}
	}
	return VirtualPath{archivePath: strings.TrimRight(filepathToSlash(v.archivePath), "/") + "/" + child}
}

// Equal reports lexical equality on the normalized pair.
func (v VirtualPath) Equal(other VirtualPath) bool {
	return v.archivePath == other.archivePath && v.internalPath == other.internalPath
}

// Less implements the lexicographic ordering: archive path first, then
// internal path.
func (v VirtualPath) Less(other VirtualPath) bool {
	if v.archivePath != other.archivePath {
		return v.archivePath < other.archivePath
	}
	return v.internalPath < other.internalPath
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
