package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"distritree/pkg/config"
)

// Open builds the archive selected by cfg. More than one shard yields a
// ShardedArchive over one backend instance per shard.
func Open(cfg config.StorageConfig) (Archive, error) {
	if cfg.Backend == config.BackendNone {
		return Discard{}, nil
	}
	if cfg.Shards <= 1 {
		return openOne(cfg.Backend, cfg.Path)
	}

	shards := make([]Archive, 0, cfg.Shards)
	for i := 0; i < cfg.Shards; i++ {
		a, err := openOne(cfg.Backend, shardPath(cfg.Path, i))
		if err != nil {
			for _, opened := range shards {
				opened.Close()
			}
			return nil, errors.Wrapf(err, "open shard %d", i)
		}
		shards = append(shards, a)
	}
	return NewShardedArchive(shards...)
}

// shardPath turns data/records.db into data/records_<i>.db. An empty path
// stays empty so every shard is in memory.
func shardPath(path string, i int) string {
	if path == "" {
		return ""
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), i, ext)
}

func openOne(backend, path string) (Archive, error) {
	if path != "" {
		dir := path
		if backend != config.BackendLevelDB {
			dir = filepath.Dir(path)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "create data dir %s", dir)
		}
	}

	switch backend {
	case config.BackendSQLite:
		return NewSQLiteArchive(path)
	case config.BackendLevelDB:
		return NewLevelDBArchive(path)
	case config.BackendWAL:
		return OpenWAL(path)
	default:
		return nil, errors.Newf("unknown storage backend %q", backend)
	}
}
