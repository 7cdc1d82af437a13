package storage

import (
	"encoding/binary"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Keys are "r" + big-endian sequence so iteration yields write order.
var recordPrefix = []byte("r")

// LevelDBArchive keeps records in a LevelDB database.
type LevelDBArchive struct {
	db  *leveldb.DB
	mu  sync.Mutex // guards seq
	seq uint64
}

// NewLevelDBArchive opens or creates a database at path. If path is empty,
// uses in-memory storage.
func NewLevelDBArchive(path string) (*LevelDBArchive, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb at %q", path)
	}

	a := &LevelDBArchive{db: db}
	iter := db.NewIterator(util.BytesPrefix(recordPrefix), nil)
	if iter.Last() {
		a.seq = binary.BigEndian.Uint64(iter.Key()[len(recordPrefix):])
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "find last sequence")
	}
	return a, nil
}

func (a *LevelDBArchive) key(seq uint64) []byte {
	k := make([]byte, len(recordPrefix)+8)
	copy(k, recordPrefix)
	binary.BigEndian.PutUint64(k[len(recordPrefix):], seq)
	return k
}

func (a *LevelDBArchive) Write(rec Record) error {
	return a.BatchWrite([]Record{rec})
}

func (a *LevelDBArchive) BatchWrite(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	batch := new(leveldb.Batch)
	seq := a.seq
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrapf(err, "encode record %s", rec.RecordID)
		}
		seq++
		batch.Put(a.key(seq), data)
	}
	if err := a.db.Write(batch, nil); err != nil {
		return errors.Wrap(err, "write batch")
	}
	a.seq = seq
	return nil
}

func (a *LevelDBArchive) LoadAll() ([]Record, error) {
	iter := a.db.NewIterator(util.BytesPrefix(recordPrefix), nil)
	defer iter.Release()

	records := []Record{}
	for iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, errors.Wrapf(err, "decode record at %x", iter.Key())
		}
		records = append(records, rec)
	}
	return records, errors.Wrap(iter.Error(), "iterate records")
}

func (a *LevelDBArchive) Count() (int, error) {
	iter := a.db.NewIterator(util.BytesPrefix(recordPrefix), nil)
	defer iter.Release()
	n := 0
	for iter.Next() {
		n++
	}
	return n, errors.Wrap(iter.Error(), "count records")
}

func (a *LevelDBArchive) Truncate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	iter := a.db.NewIterator(util.BytesPrefix(recordPrefix), nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "scan for truncate")
	}
	if err := a.db.Write(batch, nil); err != nil {
		return errors.Wrap(err, "truncate")
	}
	a.seq = 0
	return nil
}

func (a *LevelDBArchive) Close() error {
	return a.db.Close()
}
