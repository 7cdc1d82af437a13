package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"distritree/pkg/common"
	"distritree/pkg/config"
)

func memShards(t *testing.T, n int) (*ShardedArchive, []Archive) {
	t.Helper()
	shards := make([]Archive, 0, n)
	for i := 0; i < n; i++ {
		a, err := NewSQLiteArchive("")
		require.NoError(t, err)
		shards = append(shards, a)
	}
	s, err := NewShardedArchive(shards...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, shards
}

func TestShardForRoutesByKeyModulo(t *testing.T) {
	s, _ := memShards(t, 3)
	cases := map[common.KeyType]int{0: 0, 1: 1, 2: 2, 3: 0, 17: 2, -1: 2, -3: 0, -4: 2}
	for k, want := range cases {
		require.Equal(t, want, s.ShardFor(k), "key %d", k)
		require.Equal(t, want, ShardOf(s, k), "key %d", k)
	}
	require.Zero(t, ShardOf(Discard{}, 17))
}

func TestShardedArchivePlacesRecordsOnOwningShard(t *testing.T) {
	s, shards := memShards(t, 3)

	require.NoError(t, s.Write(NewRecord(4, common.ValueType("v4"), 1)))
	var batch []Record
	for _, k := range []common.KeyType{10, 20, 5, 6, 12, 30, 7, 17} {
		batch = append(batch, NewRecord(k, common.ValueType(fmt.Sprintf("v%d", k)), 1))
	}
	require.NoError(t, s.BatchWrite(batch))

	for i, shard := range shards {
		records, err := shard.LoadAll()
		require.NoError(t, err)
		for _, rec := range records {
			require.Equal(t, i, s.ShardFor(rec.Key), "key %d on shard %d", rec.Key, i)
		}
	}

	counts, err := s.CountPerShard()
	require.NoError(t, err)
	// 4,10,7 -> 1; 20,5,17 -> 2; 6,12,30 -> 0
	require.Equal(t, []int{3, 3, 3}, counts)

	n, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, 9, n)
}

func TestShardedArchiveMergesInWriteOrder(t *testing.T) {
	s, _ := memShards(t, 3)

	// Identical timestamps must still come back in the order they were written.
	ts := time.Now().UTC()
	var want []Record
	for i := 0; i < 30; i++ {
		rec := NewRecord(common.KeyType(30-i), common.ValueType(fmt.Sprintf("v%d", i)), 1)
		rec.Timestamp = ts
		want = append(want, rec)
	}
	require.NoError(t, s.BatchWrite(want[:10]))
	for _, rec := range want[10:20] {
		require.NoError(t, s.Write(rec))
	}
	require.NoError(t, s.BatchWrite(want[20:]))

	got, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].RecordID, got[i].RecordID, "position %d", i)
		require.Equal(t, s.ShardFor(got[i].Key), got[i].Shard)
		if i > 0 {
			require.True(t, got[i].Timestamp.After(got[i-1].Timestamp))
		}
	}

	require.NoError(t, s.Truncate())
	n, err := s.Count()
	require.NoError(t, err)
	require.Zero(t, n)

	got, err = s.LoadAll()
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestNewShardedArchiveNeedsShards(t *testing.T) {
	_, err := NewShardedArchive()
	require.Error(t, err)
}

func TestOpenShardsGetTheirOwnFiles(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{config.BackendSQLite, config.BackendLevelDB, config.BackendWAL} {
		t.Run(backend, func(t *testing.T) {
			path := filepath.Join(dir, backend, "records.db")
			a, err := Open(config.StorageConfig{Backend: backend, Path: path, Shards: 3})
			require.NoError(t, err)
			s, ok := a.(*ShardedArchive)
			require.True(t, ok)
			require.Equal(t, 3, s.Shards())

			for k := common.KeyType(0); k < 6; k++ {
				require.NoError(t, s.Write(NewRecord(k, common.ValueType("x"), 1)))
			}
			require.NoError(t, s.Close())

			for i := 0; i < 3; i++ {
				if backend == config.BackendLevelDB {
					require.DirExists(t, shardPath(path, i), "shard %d", i)
				} else {
					require.FileExists(t, shardPath(path, i), "shard %d", i)
				}
			}
		})
	}
}

func TestShardPath(t *testing.T) {
	require.Equal(t, "data/records_2.db", shardPath("data/records.db", 2))
	require.Equal(t, "data/ldb_0", shardPath("data/ldb", 0))
	require.Equal(t, "", shardPath("", 1))
}
