// Package progstore keeps bytecode on disk, compressed and addressed by its
// program tag, so the CLI can run programs by tag instead of by file.
package progstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"

	"github.com/tcassar-diss/bpfvm/bpf"
)

var (
	ErrNotFound = errors.New("program not found")
	ErrCorrupt  = errors.New("stored program is corrupt")
)

var (
	bucketCode    = []byte("code")
	bucketEntries = []byte("entries")
)

// Entry describes a stored program.
type Entry struct {
	Tag    string    `json:"tag"`
	Name   string    `json:"name"`
	Size   int       `json:"size"`
	Stored time.Time `json:"stored"`
}

// Store is a bbolt database of programs. It is safe for concurrent use.
type Store struct {
	db  *bolt.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open creates or opens the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCode, bucketEntries} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()

		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Store{db: db, enc: enc, dec: dec}, nil
}

// Put validates code and stores it under its tag. Storing the same bytecode
// again only updates its name.
func (s *Store) Put(name string, code []byte) (*Entry, error) {
	p, err := bpf.Load(code)
	if err != nil {
		return nil, fmt.Errorf("refusing to store invalid program: %w", err)
	}

	entry := &Entry{
		Tag:    p.Tag(),
		Name:   name,
		Size:   len(code),
		Stored: time.Now().UTC(),
	}

	meta, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry: %w", err)
	}

	key := []byte(entry.Tag)
	compressed := s.enc.EncodeAll(code, nil)

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketCode).Put(key, compressed); err != nil {
			return fmt.Errorf("failed to write code: %w", err)
		}

		if err := tx.Bucket(bucketEntries).Put(key, meta); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Get returns the bytecode stored under tag.
func (s *Store) Get(tag string) ([]byte, error) {
	var compressed []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCode).Get([]byte(tag))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, tag)
		}

		// v is only valid inside the transaction.
		compressed = append([]byte(nil), v...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	code, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, tag, err)
	}

	if bpf.CodeTag(code) != tag {
		return nil, fmt.Errorf("%w: %s: tag mismatch", ErrCorrupt, tag)
	}

	return code, nil
}

// List returns every entry ordered by tag.
func (s *Store) List() ([]*Entry, error) {
	var entries []*Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("%w: entry %s: %w", ErrCorrupt, k, err)
			}

			entries = append(entries, &e)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Delete removes tag. Deleting a missing tag is not an error.
func (s *Store) Delete(tag string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(tag)

		if err := tx.Bucket(bucketCode).Delete(key); err != nil {
			return fmt.Errorf("failed to delete code: %w", err)
		}

		if err := tx.Bucket(bucketEntries).Delete(key); err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}

		return nil
	})
}

// Close closes the database.
func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	return nil
}
