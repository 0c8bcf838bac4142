package storage

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	batch := db.NewBatch()
	batch.Put([]byte("acct:b"), []byte("2"))
	batch.Put([]byte("acct:a"), []byte("1"))
	batch.Put([]byte("other"), []byte("x"))
	if batch.Len() != 3 {
		t.Fatalf("batch len: got %d want 3", batch.Len())
	}
	if ok, _ := db.Has([]byte("acct:a")); ok {
		t.Fatalf("batch visible before write")
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	var keys []string
	err := db.Iterate([]byte("acct:"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(keys) != 2 || keys[0] != "acct:a" || keys[1] != "acct:b" {
		t.Fatalf("unexpected iteration order: %v", keys)
	}
	if err := db.Delete([]byte("acct:a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := db.Has([]byte("acct:a")); ok {
		t.Fatalf("key still present after delete")
	}
	value, err := db.Get([]byte("acct:b"))
	if err != nil || !bytes.Equal(value, []byte("2")) {
		t.Fatalf("get acct:b: %q %v", value, err)
	}
}

func TestMemDB(t *testing.T) {
	exerciseDatabase(t, NewMemDB())
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestBoltSnapshots(t *testing.T) {
	store, err := OpenBoltSnapshots(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("open snapshots: %v", err)
	}
	defer store.Close()

	for round := uint64(1); round <= 3; round++ {
		if err := store.Save(round, []byte{byte(round)}); err != nil {
			t.Fatalf("save round %d: %v", round, err)
		}
	}
	data, err := store.Load(2)
	if err != nil || !bytes.Equal(data, []byte{2}) {
		t.Fatalf("load round 2: %v %v", data, err)
	}
	if err := store.Prune(3); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, err := store.Load(1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("round 1 should be pruned, got %v", err)
	}
	if _, err := store.Load(3); err != nil {
		t.Fatalf("round 3 should survive prune: %v", err)
	}
	if err := store.Delete(3); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("round 3 should be deleted, got %v", err)
	}
}
