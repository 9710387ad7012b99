package store

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore backs the same Store contract with an embedded badger KV,
// for deployments that prefer a single database directory over loose files.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) the database under dataDir/badger.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Join(dataDir, "badger")).
		WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Load implements Store.
func (s *BadgerStore) Load(key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("blob/" + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return data, nil
}

// Save implements Store.
func (s *BadgerStore) Save(key string, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("blob/"+key), data)
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// AppendLine implements Store. The log lives under one key; the append is a
// read-modify-write inside a single transaction.
func (s *BadgerStore) AppendLine(key string, line string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		k := []byte("log/" + key)
		var existing []byte
		item, err := txn.Get(k)
		if err == nil {
			existing, err = item.ValueCopy(nil)
			if err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(k, append(existing, []byte(line+"\n")...))
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	return nil
}

// SaveArtifact implements Store.
func (s *BadgerStore) SaveArtifact(name string, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("artifact/"+name), data)
	})
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", name, err)
	}
	return nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
