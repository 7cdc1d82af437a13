package storage

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"distritree/pkg/common"
)

// [CRC32 4B] [Timestamp 8B] [Key 8B] [NodeID 8B] [RecordID 16B] [ValSize 4B] [Value NB]

const (
	HeaderSize = 4 + 8 + 8 + 8 + 16 + 4 // 48 Bytes
)

var ErrCorruptLog = errors.New("wal: corrupt record")

// WALArchive appends records to a single checksummed log file.
type WALArchive struct {
	file *os.File
	mu   sync.Mutex
	buf  *bufio.Writer
}

func OpenWAL(path string) (*WALArchive, error) {
	if path == "" {
		return nil, errors.New("wal archive needs a file path")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open wal %s", path)
	}

	return &WALArchive{
		file: f,
		buf:  bufio.NewWriter(f),
	}, nil
}

func encodeRecord(rec Record) ([]byte, error) {
	id, err := uuid.Parse(rec.RecordID)
	if err != nil {
		return nil, errors.Wrapf(err, "record id %q", rec.RecordID)
	}

	out := make([]byte, HeaderSize+len(rec.Value))
	binary.LittleEndian.PutUint64(out[4:12], uint64(rec.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint64(out[12:20], uint64(rec.Key))
	binary.LittleEndian.PutUint64(out[20:28], uint64(rec.NodeID))
	copy(out[28:44], id[:])
	binary.LittleEndian.PutUint32(out[44:48], uint32(len(rec.Value)))
	copy(out[HeaderSize:], rec.Value)

	binary.LittleEndian.PutUint32(out[0:4], crc32.ChecksumIEEE(out[4:]))
	return out, nil
}

func (w *WALArchive) Write(rec Record) error {
	return w.BatchWrite([]Record{rec})
}

func (w *WALArchive) BatchWrite(records []Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, rec := range records {
		data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		if _, err := w.buf.Write(data); err != nil {
			return errors.Wrap(err, "append wal")
		}
	}
	return errors.Wrap(w.buf.Flush(), "flush wal")
}

func (w *WALArchive) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *WALArchive) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Flush()
	return w.file.Close()
}

func (w *WALArchive) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return err
	}
	path := w.file.Name()
	if err := w.file.Close(); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrapf(err, "reopen wal %s", path)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	return w.file.Sync()
}

func (w *WALArchive) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return 0, err
	}
	st, err := w.file.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func (w *WALArchive) LoadAll() ([]Record, error) {
	it, err := w.NewIterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	records := []Record{}
	for {
		rec, err := it.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

func (w *WALArchive) Count() (int, error) {
	records, err := w.LoadAll()
	return len(records), err
}

type WALIterator struct {
	reader *bufio.Reader
	file   *os.File
}

func (w *WALArchive) NewIterator() (*WALIterator, error) {
	w.mu.Lock()
	err := w.buf.Flush()
	name := w.file.Name()
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return &WALIterator{
		file:   f,
		reader: bufio.NewReader(f),
	}, nil
}

// Next returns io.EOF at a clean end of log.
func (it *WALIterator) Next() (Record, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(it.reader, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Record{}, errors.Wrap(ErrCorruptLog, "short header")
		}
		return Record{}, err
	}

	storedCRC := binary.LittleEndian.Uint32(header[0:4])
	valSize := binary.LittleEndian.Uint32(header[44:48])

	value := make([]byte, valSize)
	if _, err := io.ReadFull(it.reader, value); err != nil {
		return Record{}, errors.Wrap(ErrCorruptLog, "short value")
	}

	checksum := crc32.NewIEEE()
	checksum.Write(header[4:])
	checksum.Write(value)
	if checksum.Sum32() != storedCRC {
		return Record{}, errors.Wrap(ErrCorruptLog, "crc mismatch")
	}

	var id uuid.UUID
	copy(id[:], header[28:44])
	return Record{
		RecordID:  id.String(),
		Timestamp: time.Unix(0, int64(binary.LittleEndian.Uint64(header[4:12]))).UTC(),
		Key:       common.KeyType(binary.LittleEndian.Uint64(header[12:20])),
		NodeID:    common.NodeID(binary.LittleEndian.Uint64(header[20:28])),
		Value:     value,
	}, nil
}

func (it *WALIterator) Close() {
	it.file.Close()
}
