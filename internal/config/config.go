// Package config loads the enumerated configuration options of spec §6
// from the environment, in the style of the mage image-resize service's
// internal/config package.
package config

import (
	"os"
	"strconv"
)

// CacheConfig mirrors CacheStore::open's enumerated options.
type CacheConfig struct {
	DatabasePath      string
	MemoryCacheSize   int
	MaxEntries        int
	MaxSizeBytes      int64
	CompressionLevel  int
	RetentionEnabled  bool
	RetentionDays     int
}

// ArchiveConfig mirrors ArchiveManager::new's options.
type ArchiveConfig struct {
	MaxCachedArchives int
	TempDir           string
	MaxConcurrentOpen int
}

// GeneratorConfig mirrors ThumbnailGenerator::new's options.
type GeneratorConfig struct {
	WorkerCount           int
	DefaultThumbnailSize  int
	MaxQueueSize          int
}

func LoadCache() CacheConfig {
	return CacheConfig{
		DatabasePath:     getEnv("NIVE_CACHE_DB", defaultCachePath()),
		MemoryCacheSize:  getEnvInt("NIVE_CACHE_MEMORY_ITEMS", 256),
		MaxEntries:       getEnvInt("NIVE_CACHE_MAX_ENTRIES", 10000),
		MaxSizeBytes:     getEnvInt64("NIVE_CACHE_MAX_BYTES", 512*1024*1024),
		CompressionLevel: getEnvInt("NIVE_CACHE_COMPRESSION", 6),
		RetentionEnabled: getEnvBool("NIVE_CACHE_RETENTION_ENABLED", false),
		RetentionDays:    getEnvInt("NIVE_CACHE_RETENTION_DAYS", 30),
	}
}

func LoadArchive() ArchiveConfig {
	return ArchiveConfig{
		MaxCachedArchives: getEnvInt("NIVE_ARCHIVE_MAX_CACHED", 8),
		TempDir:           getEnv("NIVE_ARCHIVE_TEMP_DIR", defaultTempDir()),
		MaxConcurrentOpen: getEnvInt("NIVE_ARCHIVE_MAX_CONCURRENT_OPEN", 4),
	}
}

func LoadGenerator() GeneratorConfig {
	return GeneratorConfig{
		WorkerCount:          getEnvInt("NIVE_WORKER_COUNT", 4),
		DefaultThumbnailSize: getEnvInt("NIVE_DEFAULT_THUMBNAIL_SIZE", 256),
		MaxQueueSize:         getEnvInt("NIVE_MAX_QUEUE_SIZE", 0),
	}
}

func defaultCachePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return homeDir + string(os.PathSeparator) + ".nive" + string(os.PathSeparator) + "thumbnails.db"
}

func defaultTempDir() string {
	return os.TempDir() + string(os.PathSeparator) + "nive"
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}
