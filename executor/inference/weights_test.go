package inference

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWeightsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "weights.parquet")
	n := testNetwork()
	require.NoError(t, SaveWeights(path, n))

	_, err := os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))

	loaded, mod, err := LoadWeights(path)
	require.NoError(t, err)
	require.False(t, mod.IsZero())
	require.Equal(t, n.FC1.W.Data, loaded.FC1.W.Data)
	require.Equal(t, n.Policy.B.Data, loaded.Policy.B.Data)

	x := []float32{0.4, 0.2, 0.6, 1, 1}
	v1, p1, _ := n.Predict(x)
	v2, p2, _ := loaded.Predict(x)
	require.Equal(t, v1, v2)
	require.Equal(t, p1, p2)
}

func TestLoadWeightsMissing(t *testing.T) {
	_, _, err := LoadWeights(filepath.Join(t.TempDir(), "nope.parquet"))
	require.Error(t, err)

	_, ok, err := WeightsModTime(filepath.Join(t.TempDir(), "nope.parquet"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveWeightsRejectsBrokenShapes(t *testing.T) {
	n := testNetwork()
	n.Value = NewDense(3, 1)
	require.Error(t, SaveWeights(filepath.Join(t.TempDir(), "w.parquet"), n))
}
