package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"distritree/pkg/common"
	"distritree/pkg/config"
)

func archives(t *testing.T) map[string]Archive {
	t.Helper()
	dir := t.TempDir()

	memSQL, err := NewSQLiteArchive("")
	require.NoError(t, err)
	fileSQL, err := NewSQLiteArchive(filepath.Join(dir, "records.db"))
	require.NoError(t, err)
	memLDB, err := NewLevelDBArchive("")
	require.NoError(t, err)
	wal, err := OpenWAL(filepath.Join(dir, "records.wal"))
	require.NoError(t, err)

	all := map[string]Archive{
		"sqlite-memory":  memSQL,
		"sqlite-file":    fileSQL,
		"leveldb-memory": memLDB,
		"wal":            wal,
	}
	t.Cleanup(func() {
		for _, a := range all {
			a.Close()
		}
	})
	return all
}

func TestArchiveRoundTripPreservesOrder(t *testing.T) {
	for name, a := range archives(t) {
		t.Run(name, func(t *testing.T) {
			var want []Record
			for i := 0; i < 25; i++ {
				k := common.KeyType(100 - i)
				want = append(want, NewRecord(k, common.ValueType(fmt.Sprintf("v%d", k)), common.NodeID(i%3+1)))
			}
			require.NoError(t, a.Write(want[0]))
			require.NoError(t, a.BatchWrite(want[1:]))
			require.NoError(t, a.BatchWrite(nil))

			got, err := a.LoadAll()
			require.NoError(t, err)
			require.Len(t, got, len(want))
			for i := range want {
				require.Equal(t, want[i].RecordID, got[i].RecordID)
				require.Equal(t, want[i].Key, got[i].Key)
				require.Equal(t, want[i].NodeID, got[i].NodeID)
				require.Equal(t, string(want[i].Value), string(got[i].Value))
				require.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
			}

			n, err := a.Count()
			require.NoError(t, err)
			require.Equal(t, 25, n)

			require.NoError(t, a.Truncate())
			n, err = a.Count()
			require.NoError(t, err)
			require.Zero(t, n)

			rec := NewRecord(1, common.ValueType("again"), 1)
			require.NoError(t, a.Write(rec))
			got, err = a.LoadAll()
			require.NoError(t, err)
			require.Len(t, got, 1)
			require.Equal(t, rec.RecordID, got[0].RecordID)
		})
	}
}

func TestLevelDBArchiveResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ldb")
	a, err := NewLevelDBArchive(path)
	require.NoError(t, err)
	first := NewRecord(1, common.ValueType("a"), 1)
	require.NoError(t, a.Write(first))
	require.NoError(t, a.Close())

	a, err = NewLevelDBArchive(path)
	require.NoError(t, err)
	defer a.Close()
	second := NewRecord(2, common.ValueType("b"), 1)
	require.NoError(t, a.Write(second))

	got, err := a.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, first.RecordID, got[0].RecordID)
	require.Equal(t, second.RecordID, got[1].RecordID)
}

func TestNewRecordIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		r := NewRecord(1, common.ValueType("x"), 1)
		require.False(t, seen[r.RecordID])
		seen[r.RecordID] = true
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		cfg  config.StorageConfig
		want any
	}{
		{config.StorageConfig{Backend: config.BackendSQLite}, &SQLiteArchive{}},
		{config.StorageConfig{Backend: config.BackendSQLite, Path: filepath.Join(dir, "a", "x.db")}, &SQLiteArchive{}},
		{config.StorageConfig{Backend: config.BackendLevelDB, Path: filepath.Join(dir, "ldb")}, &LevelDBArchive{}},
		{config.StorageConfig{Backend: config.BackendWAL, Path: filepath.Join(dir, "b", "x.wal")}, &WALArchive{}},
		{config.StorageConfig{Backend: config.BackendNone}, Discard{}},
	}
	for _, c := range cases {
		a, err := Open(c.cfg)
		require.NoError(t, err, "%+v", c.cfg)
		require.IsType(t, c.want, a)
		require.NoError(t, a.Close())
	}

	_, err := Open(config.StorageConfig{Backend: "mongo"})
	require.Error(t, err)
}
