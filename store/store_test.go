package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brensch/settlers/game"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"
)

func sampleExample(gameID string, seq int) game.Example {
	s := game.NewGameState()
	s.PlaceSettlement(1, "V04")
	s.PlaceRoad(1, "1.00-2.00_3.00-4.00")
	s.PlaceCity(2, "V20")
	s.CurrentPlayer = 3
	s.Phase = game.Road
	return game.Example{
		GameID:   gameID,
		Seq:      seq,
		State:    *s,
		MoveType: game.Road,
		Policy:   map[string]float64{"a": 0.25, "b": 0.75},
		Player:   3,
		Value:    -1,
	}
}

func TestAppendAndLoadRoundTrip(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "data", "examples.parquet"))

	all, err := st.LoadAll()
	require.NoError(t, err)
	require.Empty(t, all)

	first := []game.Example{sampleExample("g1", 0), sampleExample("g1", 1)}
	merged, err := st.AppendAndPersist(first)
	require.NoError(t, err)
	require.Len(t, merged, 2)

	merged, err = st.AppendAndPersist([]game.Example{sampleExample("g2", 0)})
	require.NoError(t, err)
	require.Len(t, merged, 3)

	loaded, err := st.LoadAll()
	require.NoError(t, err)
	require.Equal(t, merged, loaded)
	require.Equal(t, "g2", loaded[2].GameID)
	require.Equal(t, []string{"V04"}, loaded[0].State.Settlements[1])
	require.Equal(t, []string{"V20"}, loaded[0].State.Cities[2])
	require.Equal(t, "V20", loaded[0].State.LastBuilding)

	n, err := st.Count()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	other := flock.New(st.Path() + ".lock")
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked, "store lock must be released")
	require.NoError(t, other.Unlock())
}

func TestClear(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "examples.parquet"))
	_, err := st.AppendAndPersist([]game.Example{sampleExample("g", 0)})
	require.NoError(t, err)

	require.NoError(t, st.Clear())
	n, err := st.Count()
	require.NoError(t, err)
	require.Zero(t, n)

	merged, err := st.AppendAndPersist([]game.Example{sampleExample("h", 0)})
	require.NoError(t, err)
	require.Len(t, merged, 1)
}

func TestConcurrentAppendsKeepEveryExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examples.parquet")
	// Two handles on one file behave like two processes sharing it.
	stores := []*Store{New(path), New(path)}

	const writers, perWriter = 8, 3
	var wg sync.WaitGroup
	errs := make(chan error, writers+1)

	reader := New(path)
	done := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-done:
				return
			default:
			}
			all, err := reader.LoadAll()
			if err != nil {
				errs <- err
				return
			}
			if len(all)%perWriter != 0 {
				errs <- fmt.Errorf("reader saw partial batch: %d examples", len(all))
				return
			}
		}
	}()

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := make([]game.Example, perWriter)
			for i := range batch {
				batch[i] = sampleExample(fmt.Sprintf("w%d", w), i)
			}
			_, err := stores[w%2].AppendAndPersist(batch)
			errs <- err
		}(w)
	}
	wg.Wait()
	close(done)
	<-readerDone
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := stores[0].LoadAll()
	require.NoError(t, err)
	require.Len(t, all, writers*perWriter)

	seen := map[string]int{}
	for _, ex := range all {
		seen[ex.GameID]++
	}
	for w := 0; w < writers; w++ {
		require.Equal(t, perWriter, seen[fmt.Sprintf("w%d", w)])
	}
}

func TestLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examples.parquet")
	holder := flock.New(path + ".lock")
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer holder.Unlock()

	st := New(path)
	st.LockTimeout = 30 * time.Millisecond
	_, err = st.AppendAndPersist([]game.Example{sampleExample("g", 0)})
	require.ErrorIs(t, err, ErrLockTimeout)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "failed append must not create the data file")

	require.NoError(t, holder.Unlock())
	_, err = st.AppendAndPersist([]game.Example{sampleExample("g", 0)})
	require.NoError(t, err)
}

func TestLeftoverLockFileDoesNotBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examples.parquet")
	// A writer that died mid-append leaves its lock file behind.
	require.NoError(t, os.WriteFile(path+".lock", []byte("999999\n"), 0o644))

	st := New(path)
	st.LockTimeout = 100 * time.Millisecond
	for i := 0; i < 3; i++ {
		_, err := st.AppendAndPersist([]game.Example{sampleExample("g", i)})
		require.NoError(t, err)
	}
	all, err := st.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.NoError(t, st.Clear())
}

func TestCorruptFileIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examples.parquet")
	require.NoError(t, os.WriteFile(path, []byte("not parquet"), 0o644))

	st := New(path)
	_, err := st.LoadAll()
	require.Error(t, err)

	_, err = st.AppendAndPersist([]game.Example{sampleExample("g", 0)})
	require.Error(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "not parquet", string(raw))
}
