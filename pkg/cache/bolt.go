package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore keeps partitions on the device in a single bbolt file,
// one top-level bucket per partition.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the store file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Open returns a handle to the named partition.
func (s *BoltStore) Open(_ context.Context, name string) (Partition, error) {
	if name == "" {
		return nil, fmt.Errorf("partition name cannot be empty")
	}
	return &boltPartition{db: s.db, name: name}, nil
}

// Delete drops the partition bucket.
func (s *BoltStore) Delete(_ context.Context, name string) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(name)) == nil {
			return nil
		}
		existed = true
		return tx.DeleteBucket([]byte(name))
	})
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("bolt delete partition %s: %w", name, err)
	}
	if existed {
		PartitionsDeleted.Inc()
	}
	return existed, nil
}

// Names lists existing partitions.
func (s *BoltStore) Names(_ context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		CacheErrors.WithLabelValues("names").Inc()
		return nil, fmt.Errorf("bolt list partitions: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

type boltPartition struct {
	db   *bolt.DB
	name string
}

func (p *boltPartition) Name() string { return p.name }

func (p *boltPartition) Get(_ context.Context, key RequestKey) (*Entry, error) {
	var data []byte
	err := p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(p.name))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key.String())); v != nil {
			// v is only valid inside the transaction
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("bolt get: %w", err)
	}
	if data == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues(p.name).Inc()
	return &entry, nil
}

func (p *boltPartition) Put(_ context.Context, key RequestKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	err = p.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(p.name))
		if err != nil {
			return err
		}
		return b.Put([]byte(key.String()), data)
	})
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("bolt put: %w", err)
	}
	return nil
}

func (p *boltPartition) Keys(_ context.Context) ([]string, error) {
	var keys []string
	err := p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(p.name))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		CacheErrors.WithLabelValues("keys").Inc()
		return nil, fmt.Errorf("bolt keys: %w", err)
	}
	// bbolt iterates in byte order, which is already sorted
	return keys, nil
}
