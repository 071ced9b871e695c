// Command niveserve wires the cache, archive, decode, queue, and
// thumbnail packages into a standalone HTTP server, grounded on the
// teacher's internal/fileloader/imageserver.go standalone server
// (net.Listen + http.Serve, query-param request parsing, streamed
// responses) and generalized from its raw-file passthrough to a
// synchronous thumbnail pipeline request.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"nive/internal/archive"
	"nive/internal/cache"
	"nive/internal/config"
	"nive/internal/decode"
	"nive/internal/logging"
	"nive/internal/thumbnail"
	"nive/internal/vpath"
)

var log = logging.Component("niveserve")

func main() {
	logging.InitFromEnv()

	cacheCfg := config.LoadCache()
	archiveCfg := config.LoadArchive()
	genCfg := config.LoadGenerator()

	store, err := cache.Open(cache.Config{
		DatabasePath:     cacheCfg.DatabasePath,
		MemoryCacheSize:  cacheCfg.MemoryCacheSize,
		MaxEntries:       cacheCfg.MaxEntries,
		MaxSizeBytes:     cacheCfg.MaxSizeBytes,
		CompressionLevel: cacheCfg.CompressionLevel,
		RetentionEnabled: cacheCfg.RetentionEnabled,
		RetentionDays:    cacheCfg.RetentionDays,
	})
	if err != nil {
		log.Errorf("open cache: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	archiveMgr := archive.NewManager(archive.ManagerConfig{
		MaxCachedArchives: archiveCfg.MaxCachedArchives,
		MaxConcurrentOpen: archiveCfg.MaxConcurrentOpen,
		TempDir:           archiveCfg.TempDir,
	})
	defer archiveMgr.Close()

	gen := thumbnail.New(thumbnail.Config{
		WorkerCount:          genCfg.WorkerCount,
		DefaultThumbnailSize: genCfg.DefaultThumbnailSize,
		MaxQueueSize:         genCfg.MaxQueueSize,
	}, decode.NewRegistry())
	gen.SetCache(store)
	gen.Start()
	defer gen.Stop()

	srv := &server{gen: gen, archives: archiveMgr, store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("/thumbnail", srv.handleThumbnail)
	mux.HandleFunc("/stats", srv.handleStats)

	addr := "127.0.0.1:8787"
	log.Infof("listening on http://%s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("serve: %v", err)
		os.Exit(1)
	}
}

type server struct {
	gen      *thumbnail.Generator
	archives *archive.Manager
	store    *cache.Store
}

// handleThumbnail serves /thumbnail?path=...&size=... for plain files
// and /thumbnail?archive=...&entry=...&size=... for archive entries,
// synchronously waiting for the generator's callback and streaming the
// resulting thumbnail as a raw pixel payload (width/height/format header
// followed by pixel bytes) since there is no UI shell to hand the
// DecodedImage to.
func (s *server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	targetSize := 256
	if raw := r.URL.Query().Get("size"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			targetSize = parsed
		}
	}

	var source thumbnail.Source
	if archivePath := r.URL.Query().Get("archive"); archivePath != "" {
		entry := r.URL.Query().Get("entry")
		if entry == "" {
			http.Error(w, "missing entry parameter", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		data, err := s.archives.ExtractToMemory(ctx, archivePath, entry)
		if err != nil {
			log.Warnf("extract %s from %s: %v", entry, archivePath, err)
			http.Error(w, "extraction failed", http.StatusNotFound)
			return
		}
		vp := vpath.New(archivePath, entry)
		source = thumbnail.MemorySource(vp, data)
	} else {
		path := r.URL.Query().Get("path")
		if path == "" {
			http.Error(w, "missing path parameter", http.StatusBadRequest)
			return
		}
		source = thumbnail.FileSource(path)
	}

	result := s.requestSync(source, targetSize)

	if result.Err != nil {
		log.Warnf("thumbnail request failed: %v", result.Err)
		http.Error(w, "thumbnail generation failed", http.StatusInternalServerError)
		return
	}

	writeThumbnailResponse(w, result)
}

// requestSync wraps the generator's asynchronous callback-based API in
// a blocking call; suitable for a request/response HTTP handler where
// there is no UI event loop to hand the result to.
func (s *server) requestSync(source thumbnail.Source, targetSize int) thumbnail.Result {
	var wg sync.WaitGroup
	wg.Add(1)
	var result thumbnail.Result
	s.gen.Request(source, targetSize, thumbnail.PriorityImmediate, func(r thumbnail.Result) {
		result = r
		wg.Done()
	})
	wg.Wait()
	return result
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	genStats := s.gen.Stats()
	cacheStats := s.store.Stats()
	fmt.Fprintf(w, "requests=%d completed=%d failed=%d cancelled=%d processing_ms=%d\ncache: %s (hit rate %.2f%%)\n",
		genStats.TotalRequests, genStats.Completed, genStats.Failed, genStats.Cancelled,
		genStats.TotalProcessingTimeMs, cacheStats.String(), cacheStats.HitRate()*100)
}

// writeThumbnailResponse streams a minimal self-describing payload:
// width, height, pixel format (as uint32 each, little-endian), followed
// by the raw pixel bytes. A real UI shell would instead hand the
// decode.DecodedImage across its own in-process queue.
func writeThumbnailResponse(w http.ResponseWriter, result thumbnail.Result) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Original-Width", strconv.Itoa(result.OriginalWidth))
	w.Header().Set("X-Original-Height", strconv.Itoa(result.OriginalHeight))

	header := make([]byte, 12)
	binary.LittleEndian.PutUint32(header[0:4], uint32(result.Thumbnail.Width))
	binary.LittleEndian.PutUint32(header[4:8], uint32(result.Thumbnail.Height))
	binary.LittleEndian.PutUint32(header[8:12], uint32(result.Thumbnail.Format))
	w.Write(header)
	w.Write(result.Thumbnail.Pixels)
}
