package archive

import (
	"sync"

	"nive/internal/verrors"
)

// readerState is a reader's Closed -> Open[(has_password)] -> Closed state
// machine (spec §4.3).
type readerState int

const (
	stateClosed readerState = iota
	stateOpen
)

// PasswordCallback is invoked up to 3 times on PasswordRequired/WrongPassword
// during Open. A false ok (user cancel) surfaces as PasswordRequired.
type PasswordCallback func(attempt int) (password string, ok bool)

// ProgressCallback reports extraction progress; a false return aborts the
// extraction with Cancelled.
type ProgressCallback func(current, total int64) (cont bool)

// reader is the backend contract a single archive format implements.
// Exactly one of zipReader/rarReader backs it at a time.
type reader interface {
	open(path string, password string) error
	close() error
	listEntries() ([]ArchiveEntry, ArchiveInfo, error)
	extractToMemory(internalPath string) ([]byte, error)
	extractToWriter(internalPath string, w writerAt, progress ProgressCallback) error
}

// writerAt is satisfied by *os.File; kept narrow so reader implementations
// don't need to import os directly in their interface surface.
type writerAt interface {
	Write(p []byte) (int, error)
}

// Reader is the public, stateful handle returned by the pool for a single
// archive path. It wraps a backend reader with the open/closed state
// machine and a mutex (operations on a closed reader fail with
// InternalError).
type Reader struct {
	mu         sync.Mutex
	path       string
	state      readerState
	hasPassword bool
	backend    reader
	info       ArchiveInfo
}

func newReader(path string) *Reader {
	return &Reader{path: path, state: stateClosed}
}

// IsOpen reports whether the reader currently holds an open backend.
func (r *Reader) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateOpen
}

func (r *Reader) open(password string, hasPassword bool) error {
	format := DetectFormat(r.path)
	var backend reader
	switch format {
	case FormatZip:
		backend = &zipReader{}
	case FormatRar:
		backend = &rarReader{}
	default:
		return verrors.New(verrors.UnsupportedFormat, r.path)
	}
	if err := backend.open(r.path, password); err != nil {
		return err
	}
	r.mu.Lock()
	r.backend = backend
	r.state = stateOpen
	r.hasPassword = hasPassword
	_, info, _ := backend.listEntries()
	r.info = info
	r.mu.Unlock()
	return nil
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateClosed {
		return nil
	}
	err := r.backend.close()
	r.state = stateClosed
	r.backend = nil
	return err
}

// ListEntries returns all entries in the archive.
func (r *Reader) ListEntries() ([]ArchiveEntry, ArchiveInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateOpen {
		return nil, ArchiveInfo{}, verrors.New(verrors.InternalError, "reader is closed: "+r.path)
	}
	return r.backend.listEntries()
}

// ExtractToMemory returns the entry's bytes.
func (r *Reader) ExtractToMemory(internalPath string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateOpen {
		return nil, verrors.New(verrors.InternalError, "reader is closed: "+r.path)
	}
	return r.backend.extractToMemory(normalizeEntryPath(internalPath))
}

// ExtractToWriter streams the entry to w, invoking progress as bytes are
// written. A false return from progress aborts with Cancelled.
func (r *Reader) ExtractToWriter(internalPath string, w writerAt, progress ProgressCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateOpen {
		return verrors.New(verrors.InternalError, "reader is closed: "+r.path)
	}
	return r.backend.extractToWriter(normalizeEntryPath(internalPath), w, progress)
}
