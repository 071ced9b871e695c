package archive

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"nive/internal/verrors"
)

// newTempFile creates a uniquely-named file under dir for an extracted
// entry's bytes, named after the entry so the extension survives for
// format-sniffing decoders downstream. Collisions are vanishingly unlikely
// with a uuid suffix, but we still check O_EXCL and retry rather than
// trust chance (spec §9, "Open Question: temp file naming").
func newTempFile(dir, entryName string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", verrors.Wrap(verrors.IoError, dir, err)
	}
	ext := filepath.Ext(entryName)
	for attempt := 0; attempt < 5; attempt++ {
		name := "nive-" + uuid.NewString() + ext
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, path, nil
		}
		if !os.IsExist(err) {
			return nil, "", verrors.Wrap(verrors.IoError, path, err)
		}
	}
	return nil, "", verrors.New(verrors.IoError, "could not allocate a unique temp file name")
}
