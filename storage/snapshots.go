package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var roundSnapshotBucket = []byte("round_snapshots")

// BoltSnapshots persists round settlement snapshots keyed by round number.
type BoltSnapshots struct {
	db *bolt.DB
}

// OpenBoltSnapshots opens (or creates) the snapshot database at path.
func OpenBoltSnapshots(path string) (*BoltSnapshots, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(roundSnapshotBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init snapshot bucket: %w", err)
	}
	return &BoltSnapshots{db: db}, nil
}

func roundKey(round uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, round)
	return key
}

// Save stores the encoded snapshot for round, replacing any previous one.
func (s *BoltSnapshots) Save(round uint64, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(roundSnapshotBucket).Put(roundKey(round), data)
	})
}

// Load returns the snapshot for round or ErrNotFound.
func (s *BoltSnapshots) Load(round uint64) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(roundSnapshotBucket).Get(roundKey(round))
		if value == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the snapshot for round. Missing snapshots are ignored.
func (s *BoltSnapshots) Delete(round uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(roundSnapshotBucket).Delete(roundKey(round))
	})
}

// Prune removes every snapshot older than keepFrom.
func (s *BoltSnapshots) Prune(keepFrom uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(roundSnapshotBucket)
		cursor := bucket.Cursor()
		var stale [][]byte
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			if binary.BigEndian.Uint64(k) >= keepFrom {
				break
			}
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the database.
func (s *BoltSnapshots) Close() error {
	if s == nil || s.db == nil {
		return errors.New("snapshot db not open")
	}
	return s.db.Close()
}

// MemSnapshots is an in-memory snapshot store for tests and ephemeral nodes.
type MemSnapshots struct {
	mu   sync.Mutex
	data map[uint64][]byte
}

// NewMemSnapshots returns an empty in-memory snapshot store.
func NewMemSnapshots() *MemSnapshots {
	return &MemSnapshots{data: make(map[uint64][]byte)}
}

func (s *MemSnapshots) Save(round uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[round] = append([]byte(nil), data...)
	return nil
}

func (s *MemSnapshots) Load(round uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[round]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *MemSnapshots) Delete(round uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, round)
	return nil
}
