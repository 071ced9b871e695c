package cache

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"nive/internal/verrors"
)

// tier2 is the on-disk embedded store, grounded on
// justyntemme-razor/internal/store/db.go's sqlite-open/WAL/pragma
// sequence, generalized from razor's favorites/settings tables to a
// single blob-with-metadata cache table.
type tier2 struct {
	db *sql.DB
}

type tier2Row struct {
	key          string
	blob         []byte
	width        int
	height       int
	pixelFormat  int
	originalW    int
	originalH    int
	compressed   bool
	sizeBytes    int64
	lastAccess   int64
}

func openTier2(dbPath string) (*tier2, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, verrors.Wrap(verrors.IoError, dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, verrors.Wrap(verrors.IoError, dbPath, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, verrors.Wrap(verrors.IoError, pragma, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS thumbnails (
		key TEXT PRIMARY KEY,
		blob BLOB NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		pixel_format INTEGER NOT NULL,
		original_width INTEGER NOT NULL,
		original_height INTEGER NOT NULL,
		compressed INTEGER NOT NULL,
		size_bytes INTEGER NOT NULL,
		last_access INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_thumbnails_last_access ON thumbnails(last_access);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, verrors.Wrap(verrors.IoError, "schema", err)
	}

	return &tier2{db: db}, nil
}

func (t *tier2) get(key string) (*tier2Row, bool, error) {
	row := t.db.QueryRow(`SELECT key, blob, width, height, pixel_format, original_width,
		original_height, compressed, size_bytes, last_access FROM thumbnails WHERE key = ?`, key)
	var r tier2Row
	var compressed int
	err := row.Scan(&r.key, &r.blob, &r.width, &r.height, &r.pixelFormat, &r.originalW,
		&r.originalH, &compressed, &r.sizeBytes, &r.lastAccess)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, verrors.Wrap(verrors.IoError, "get "+key, err)
	}
	r.compressed = compressed != 0
	return &r, true, nil
}

func (t *tier2) put(r tier2Row) error {
	compressed := 0
	if r.compressed {
		compressed = 1
	}
	_, err := t.db.Exec(`INSERT INTO thumbnails (key, blob, width, height, pixel_format,
		original_width, original_height, compressed, size_bytes, last_access)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET blob=excluded.blob, width=excluded.width,
		height=excluded.height, pixel_format=excluded.pixel_format,
		original_width=excluded.original_width, original_height=excluded.original_height,
		compressed=excluded.compressed, size_bytes=excluded.size_bytes,
		last_access=excluded.last_access`,
		r.key, r.blob, r.width, r.height, r.pixelFormat, r.originalW, r.originalH,
		compressed, r.sizeBytes, r.lastAccess)
	if err != nil {
		return verrors.Wrap(verrors.IoError, "put "+r.key, err)
	}
	return nil
}

func (t *tier2) touch(key string, lastAccess int64) error {
	_, err := t.db.Exec(`UPDATE thumbnails SET last_access = ? WHERE key = ?`, lastAccess, key)
	if err != nil {
		return verrors.Wrap(verrors.IoError, "touch "+key, err)
	}
	return nil
}

func (t *tier2) delete(key string) error {
	_, err := t.db.Exec(`DELETE FROM thumbnails WHERE key = ?`, key)
	if err != nil {
		return verrors.Wrap(verrors.IoError, "delete "+key, err)
	}
	return nil
}

// deleteOlderThan removes every row whose last_access predates cutoff,
// unless its key is in the protect set (entries written during the
// sweep itself — spec §4.2's "entries created during a sweep are
// retained unconditionally").
func (t *tier2) deleteOlderThan(cutoff int64, protect map[string]struct{}) (int, error) {
	rows, err := t.db.Query(`SELECT key FROM thumbnails WHERE last_access < ?`, cutoff)
	if err != nil {
		return 0, verrors.Wrap(verrors.IoError, "sweep scan", err)
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err == nil {
			keys = append(keys, k)
		}
	}
	rows.Close()

	deleted := 0
	for _, k := range keys {
		if _, ok := protect[k]; ok {
			continue
		}
		if err := t.delete(k); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

// evictLRU removes the n least-recently-accessed rows and returns the
// bytes freed.
func (t *tier2) evictLRU(n int) (int64, []string, error) {
	rows, err := t.db.Query(`SELECT key, size_bytes FROM thumbnails ORDER BY last_access ASC LIMIT ?`, n)
	if err != nil {
		return 0, nil, verrors.Wrap(verrors.IoError, "evict scan", err)
	}
	var keys []string
	var freed int64
	for rows.Next() {
		var k string
		var sz int64
		if err := rows.Scan(&k, &sz); err == nil {
			keys = append(keys, k)
			freed += sz
		}
	}
	rows.Close()
	for _, k := range keys {
		t.delete(k)
	}
	return freed, keys, nil
}

func (t *tier2) countAndSize() (int, int64, error) {
	row := t.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM thumbnails`)
	var count int
	var total int64
	if err := row.Scan(&count, &total); err != nil {
		return 0, 0, verrors.Wrap(verrors.IoError, "count", err)
	}
	return count, total, nil
}

func (t *tier2) clear() error {
	_, err := t.db.Exec(`DELETE FROM thumbnails`)
	if err != nil {
		return verrors.Wrap(verrors.IoError, "clear", err)
	}
	return nil
}

func (t *tier2) vacuum() error {
	_, err := t.db.Exec(`VACUUM`)
	if err != nil {
		return verrors.Wrap(verrors.IoError, "vacuum", err)
	}
	return nil
}

func (t *tier2) close() error {
	return t.db.Close()
}

func nowUnix() int64 { return time.Now().Unix() }
