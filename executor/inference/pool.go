package inference

import (
	"fmt"
	"sync/atomic"

	"github.com/brensch/settlers/game"
)

// OnnxPool fans Evaluate calls out across several OnnxClients, each with its
// own session and batching loop.
type OnnxPool struct {
	clients []*OnnxClient
	rr      atomic.Uint64
}

func NewOnnxPool(board *game.Board, modelPath string, sessions int, cfg OnnxClientConfig) (*OnnxPool, error) {
	if sessions <= 0 {
		sessions = 1
	}

	clients := make([]*OnnxClient, 0, sessions)
	for i := 0; i < sessions; i++ {
		c, err := NewOnnxClientWithConfig(board, modelPath, cfg)
		if err != nil {
			for _, created := range clients {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create onnx client %d/%d: %w", i+1, sessions, err)
		}
		clients = append(clients, c)
	}
	return &OnnxPool{clients: clients}, nil
}

func (p *OnnxPool) Stats() RuntimeStats {
	var out RuntimeStats
	for _, c := range p.clients {
		st := c.Stats()
		out.TotalBatches += st.TotalBatches
		out.TotalItems += st.TotalItems
		out.QueueLen += st.QueueLen
	}
	if out.TotalBatches > 0 {
		out.AvgBatchSize = float64(out.TotalItems) / float64(out.TotalBatches)
	}
	return out
}

func (p *OnnxPool) Close() error {
	var firstErr error
	for _, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ReloadIfUpdated reloads every client; it reports true if any reloaded.
func (p *OnnxPool) ReloadIfUpdated() (bool, error) {
	reloaded := false
	for i, c := range p.clients {
		ok, err := c.ReloadIfUpdated()
		if err != nil {
			return reloaded, fmt.Errorf("reload onnx client %d: %w", i, err)
		}
		reloaded = reloaded || ok
	}
	return reloaded, nil
}

func (p *OnnxPool) Evaluate(moveType game.MoveType, move game.Move, coords game.CoordinateMap, lastBuilding string) (float64, float64, error) {
	if len(p.clients) == 0 {
		return 0, 0, fmt.Errorf("onnx pool has no clients")
	}
	idx := int(p.rr.Add(1)-1) % len(p.clients)
	return p.clients[idx].Evaluate(moveType, move, coords, lastBuilding)
}
