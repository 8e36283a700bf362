// Package store persists self-play Training Examples in a single parquet
// file shared between the training loop and offline tools.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/brensch/settlers/game"
	"github.com/gofrs/flock"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

var ErrLockTimeout = errors.New("timed out waiting for store lock")

const (
	DefaultLockTimeout = 10 * time.Second
	lockPollInterval   = 10 * time.Millisecond
)

// Store is an append-only example file. Every operation holds an in-process
// mutex plus an advisory flock on a file next to the data so separate
// processes do not interleave read-modify-write cycles. The OS drops the
// flock when its holder exits, so a crashed writer never wedges the store.
type Store struct {
	path        string
	LockTimeout time.Duration

	mu sync.Mutex
}

func New(path string) *Store {
	return &Store{path: path, LockTimeout: DefaultLockTimeout}
}

func (s *Store) Path() string { return s.path }

func (s *Store) lockPath() string { return s.path + ".lock" }

// withLock runs fn while holding both locks.
func (s *Store) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	timeout := s.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	lock := flock.New(s.lockPath())
	locked, err := lock.TryLockContext(ctx, lockPollInterval)
	if errors.Is(err, context.DeadlineExceeded) || (err == nil && !locked) {
		return fmt.Errorf("%w: %s", ErrLockTimeout, s.lockPath())
	}
	if err != nil {
		return fmt.Errorf("acquire store lock: %w", err)
	}
	defer lock.Unlock()

	return fn()
}

// LoadAll returns every stored example. A missing file is an empty store.
func (s *Store) LoadAll() ([]game.Example, error) {
	var out []game.Example
	err := s.withLock(func() error {
		var err error
		out, err = s.read()
		return err
	})
	return out, err
}

// AppendAndPersist merges examples into the stored set and writes the result
// back as one atomic replacement. The merged set is returned. If the write
// fails the previous file is left untouched.
func (s *Store) AppendAndPersist(examples []game.Example) ([]game.Example, error) {
	var merged []game.Example
	err := s.withLock(func() error {
		existing, err := s.read()
		if err != nil {
			return err
		}
		merged = append(existing, examples...)
		return s.write(merged)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// Clear empties the store.
func (s *Store) Clear() error {
	return s.withLock(func() error {
		return s.write(nil)
	})
}

// Count returns the number of stored examples from the file footer without
// decoding rows.
func (s *Store) Count() (int, error) {
	var n int
	err := s.withLock(func() error {
		f, err := os.Open(s.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat store: %w", err)
		}
		pf, err := parquet.OpenFile(f, st.Size())
		if err != nil {
			return fmt.Errorf("open parquet: %w", err)
		}
		n = int(pf.NumRows())
		return nil
	})
	return n, err
}

func (s *Store) read() ([]game.Example, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[ExampleRow](s.path)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	out := make([]game.Example, 0, len(rows))
	for i, r := range rows {
		ex, err := fromRow(r)
		if err != nil {
			return nil, fmt.Errorf("decode example %d: %w", i, err)
		}
		out = append(out, ex)
	}
	return out, nil
}

func (s *Store) write(examples []game.Example) error {
	rows := make([]ExampleRow, len(examples))
	for i, ex := range examples {
		rows[i] = toRow(ex)
	}

	tmpPath := s.path + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", exampleSchema),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}
