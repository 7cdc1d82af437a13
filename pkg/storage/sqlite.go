package storage

import (
	"database/sql"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"distritree/pkg/common"
)

const insertRecordSQL = "INSERT OR REPLACE INTO records (record_id, key, value, node_id, ts) VALUES (?, ?, ?, ?, ?)"

type SQLiteArchive struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteArchive opens the archive at path. An empty path keeps the
// database in memory for the lifetime of the process.
func NewSQLiteArchive(path string) (*SQLiteArchive, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %q", dsn)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	query := `
	CREATE TABLE IF NOT EXISTS records (
		seq       INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id TEXT NOT NULL UNIQUE,
		key       INTEGER NOT NULL,
		value     BLOB,
		node_id   INTEGER NOT NULL,
		ts        INTEGER NOT NULL
	);`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init records table")
	}

	if path != "" {
		if _, err := db.Exec(`
			PRAGMA journal_mode = WAL;
			PRAGMA synchronous = NORMAL;
		`); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "set pragma")
		}
	}

	return &SQLiteArchive{db: db}, nil
}

func (s *SQLiteArchive) Write(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(insertRecordSQL, rec.RecordID, int64(rec.Key), []byte(rec.Value), int64(rec.NodeID), rec.Timestamp.UnixNano())
	return errors.Wrap(err, "write record")
}

func (s *SQLiteArchive) BatchWrite(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin batch")
	}

	stmt, err := tx.Prepare(insertRecordSQL)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare batch")
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.RecordID, int64(rec.Key), []byte(rec.Value), int64(rec.NodeID), rec.Timestamp.UnixNano()); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "write record %s", rec.RecordID)
		}
	}

	return errors.Wrap(tx.Commit(), "commit batch")
}

func (s *SQLiteArchive) LoadAll() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT record_id, key, value, node_id, ts FROM records ORDER BY seq ASC")
	if err != nil {
		return nil, errors.Wrap(err, "query records")
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			id      string
			k, node int64
			v       []byte
			ts      int64
		)
		if err := rows.Scan(&id, &k, &v, &node, &ts); err != nil {
			return nil, errors.Wrap(err, "scan record")
		}
		records = append(records, Record{
			RecordID:  id,
			Key:       common.KeyType(k),
			Value:     v,
			NodeID:    common.NodeID(node),
			Timestamp: time.Unix(0, ts).UTC(),
		})
	}
	return records, errors.Wrap(rows.Err(), "iterate records")
}

func (s *SQLiteArchive) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&n)
	return n, errors.Wrap(err, "count records")
}

func (s *SQLiteArchive) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM records")
	return errors.Wrap(err, "truncate records")
}

func (s *SQLiteArchive) Close() error {
	return s.db.Close()
}
