package storage

import (
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"distritree/pkg/common"
)

// Router is implemented by archives that spread records over several shards.
type Router interface {
	ShardFor(key common.KeyType) int
}

// ShardOf returns the shard a holds key on, or 0 for a single archive.
func ShardOf(a Archive, key common.KeyType) int {
	if r, ok := a.(Router); ok {
		return r.ShardFor(key)
	}
	return 0
}

// ShardedArchive places every record on one of its shards by key modulo the
// shard count. It stamps records with strictly increasing timestamps so
// LoadAll can merge the shards back into write order.
type ShardedArchive struct {
	shards []Archive

	mu   sync.Mutex
	last time.Time
}

func NewShardedArchive(shards ...Archive) (*ShardedArchive, error) {
	if len(shards) == 0 {
		return nil, errors.New("sharded archive needs at least one shard")
	}
	return &ShardedArchive{shards: shards}, nil
}

// Shards returns the number of shards.
func (s *ShardedArchive) Shards() int { return len(s.shards) }

func (s *ShardedArchive) ShardFor(key common.KeyType) int {
	n := common.KeyType(len(s.shards))
	return int((key%n + n) % n)
}

// stamp must be called with s.mu held.
func (s *ShardedArchive) stamp(rec *Record) {
	if !rec.Timestamp.After(s.last) {
		rec.Timestamp = s.last.Add(time.Nanosecond)
	}
	s.last = rec.Timestamp
	rec.Shard = s.ShardFor(rec.Key)
}

func (s *ShardedArchive) Write(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&rec)
	return errors.Wrapf(s.shards[rec.Shard].Write(rec), "shard %d", rec.Shard)
}

func (s *ShardedArchive) BatchWrite(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make([][]Record, len(s.shards))
	for _, rec := range records {
		s.stamp(&rec)
		groups[rec.Shard] = append(groups[rec.Shard], rec)
	}
	for i, g := range groups {
		if len(g) == 0 {
			continue
		}
		if err := s.shards[i].BatchWrite(g); err != nil {
			return errors.Wrapf(err, "shard %d", i)
		}
	}
	return nil
}

// LoadAll visits every shard in turn and merges their records by timestamp.
func (s *ShardedArchive) LoadAll() ([]Record, error) {
	var all []Record
	for i, shard := range s.shards {
		records, err := shard.LoadAll()
		if err != nil {
			return nil, errors.Wrapf(err, "shard %d", i)
		}
		for _, rec := range records {
			rec.Shard = i
			all = append(all, rec)
		}
	}
	slices.SortStableFunc(all, func(a, b Record) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if all == nil {
		all = []Record{}
	}
	return all, nil
}

func (s *ShardedArchive) Count() (int, error) {
	total := 0
	for i, shard := range s.shards {
		n, err := shard.Count()
		if err != nil {
			return 0, errors.Wrapf(err, "shard %d", i)
		}
		total += n
	}
	return total, nil
}

// CountPerShard reports how many records each shard holds.
func (s *ShardedArchive) CountPerShard() ([]int, error) {
	counts := make([]int, len(s.shards))
	for i, shard := range s.shards {
		n, err := shard.Count()
		if err != nil {
			return nil, errors.Wrapf(err, "shard %d", i)
		}
		counts[i] = n
	}
	return counts, nil
}

func (s *ShardedArchive) Truncate() error {
	var err error
	for i, shard := range s.shards {
		if e := shard.Truncate(); e != nil {
			err = errors.CombineErrors(err, errors.Wrapf(e, "shard %d", i))
		}
	}
	return err
}

func (s *ShardedArchive) Close() error {
	var err error
	for i, shard := range s.shards {
		if e := shard.Close(); e != nil {
			err = errors.CombineErrors(err, errors.Wrapf(e, "shard %d", i))
		}
	}
	return err
}
