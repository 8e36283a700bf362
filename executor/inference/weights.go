package inference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const weightsSchema = "policy_value_net_v1"

// WeightRow is one parameter tensor of a Network. Weights are stored
// row-major with Rows = outputs and Cols = inputs; biases have Cols = 1.
type WeightRow struct {
	Layer  string    `parquet:"layer,dict"`
	Kind   string    `parquet:"kind,dict"`
	Rows   int32     `parquet:"rows"`
	Cols   int32     `parquet:"cols"`
	Values []float32 `parquet:"values"`
}

// SaveWeights writes the network to path. The file is written next to the
// destination and renamed into place so readers never see a partial file.
func SaveWeights(path string, n *Network) error {
	if err := n.validate(); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create weights dir: %w", err)
	}

	rows := make([]WeightRow, 0, 2*len(LayerNames))
	for i, d := range n.Layers() {
		rows = append(rows,
			WeightRow{Layer: LayerNames[i], Kind: "weight", Rows: int32(d.Out()), Cols: int32(d.In()), Values: d.W.Data},
			WeightRow{Layer: LayerNames[i], Kind: "bias", Rows: int32(d.Out()), Cols: 1, Values: d.B.Data},
		)
	}

	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", weightsSchema),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// LoadWeights reads a network from path and returns it with the file's
// modification time as observed before reading.
func LoadWeights(path string) (*Network, time.Time, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat weights: %w", err)
	}

	rows, err := parquet.ReadFile[WeightRow](path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read parquet: %w", err)
	}

	byName := make(map[string]map[string]WeightRow, len(LayerNames))
	for _, r := range rows {
		if byName[r.Layer] == nil {
			byName[r.Layer] = make(map[string]WeightRow, 2)
		}
		byName[r.Layer][r.Kind] = r
	}

	layers := make([]Dense, len(LayerNames))
	for i, name := range LayerNames {
		w, okW := byName[name]["weight"]
		b, okB := byName[name]["bias"]
		if !okW || !okB {
			return nil, time.Time{}, fmt.Errorf("weights file %s: missing layer %s", path, name)
		}
		if int(w.Rows*w.Cols) != len(w.Values) || int(w.Rows) != len(b.Values) {
			return nil, time.Time{}, fmt.Errorf("weights file %s: layer %s has inconsistent shape %dx%d", path, name, w.Rows, w.Cols)
		}
		d := NewDense(int(w.Cols), int(w.Rows))
		copy(d.W.Data, w.Values)
		copy(d.B.Data, b.Values)
		layers[i] = d
	}

	n := &Network{FC1: layers[0], FC2: layers[1], Value: layers[2], Policy: layers[3]}
	if err := n.validate(); err != nil {
		return nil, time.Time{}, fmt.Errorf("weights file %s: %w", path, err)
	}
	return n, st.ModTime(), nil
}

// WeightsModTime returns the modification time of the weights file, or
// ok=false if it does not exist.
func WeightsModTime(path string) (time.Time, bool, error) {
	st, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return st.ModTime(), true, nil
}
