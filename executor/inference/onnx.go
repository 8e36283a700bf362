package inference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brensch/settlers/game"
	"github.com/brensch/settlers/rules"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	DefaultBatchSize    = 64
	DefaultBatchTimeout = 1 * time.Millisecond
)

var ErrClientClosed = errors.New("onnx client closed")

type OnnxClientConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
}

type inferenceRequest struct {
	input    []float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	value  float32
	policy float32
	err    error
}

// RuntimeStats summarises batching behaviour of one or more clients.
type RuntimeStats struct {
	TotalBatches int64
	TotalItems   int64
	QueueLen     int
	AvgBatchSize float64
}

// OnnxClient evaluates vertex features with an exported policy/value model
// using ONNX Runtime. Requests from concurrent searches are batched.
type OnnxClient struct {
	board     *game.Board
	modelPath string
	cfg       OnnxClientConfig

	mu       sync.RWMutex
	session  *ort.DynamicAdvancedSession
	loadedAt time.Time

	requestsChan chan inferenceRequest
	done         chan struct{}
	closeOnce    sync.Once

	batches atomic.Int64
	items   atomic.Int64
}

var ortInitOnce sync.Once
var ortInitErr error

func initORT() error {
	if runtime.GOOS == "linux" {
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		} else {
			cwd, _ := os.Getwd()
			for _, name := range []string{"libonnxruntime.so", "libonnxruntime.so.1"} {
				abs := filepath.Join(cwd, name)
				if _, err := os.Stat(abs); err == nil {
					ort.SetSharedLibraryPath(abs)
					break
				}
			}
		}
	}
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
		if ortInitErr != nil && strings.Contains(ortInitErr.Error(), "already been initialized") {
			ortInitErr = nil
		}
	})
	if ortInitErr != nil {
		return fmt.Errorf("failed to init ort: %w", ortInitErr)
	}
	return nil
}

func newSession(modelPath string) (*ort.DynamicAdvancedSession, time.Time, error) {
	st, err := os.Stat(modelPath)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat model: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, time.Time{}, err
	}
	defer options.Destroy()
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{"features"}, []string{"value", "policy"}, options)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to create session: %w", err)
	}
	return session, st.ModTime(), nil
}

func NewOnnxClient(board *game.Board, modelPath string) (*OnnxClient, error) {
	return NewOnnxClientWithConfig(board, modelPath, OnnxClientConfig{BatchSize: DefaultBatchSize, BatchTimeout: DefaultBatchTimeout})
}

func NewOnnxClientWithConfig(board *game.Board, modelPath string, cfg OnnxClientConfig) (*OnnxClient, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if err := initORT(); err != nil {
		return nil, err
	}

	session, loadedAt, err := newSession(modelPath)
	if err != nil {
		return nil, err
	}

	c := &OnnxClient{
		board:        board,
		modelPath:    modelPath,
		cfg:          cfg,
		session:      session,
		loadedAt:     loadedAt,
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
		done:         make(chan struct{}),
	}
	go c.batchLoop()
	return c, nil
}

func (c *OnnxClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		err = c.session.Destroy()
		c.session = nil
		c.mu.Unlock()
	})
	return err
}

// ReloadIfUpdated swaps in a new session when the model file changed.
func (c *OnnxClient) ReloadIfUpdated() (bool, error) {
	st, err := os.Stat(c.modelPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	c.mu.RLock()
	fresh := !st.ModTime().After(c.loadedAt)
	c.mu.RUnlock()
	if fresh {
		return false, nil
	}

	session, loadedAt, err := newSession(c.modelPath)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	old := c.session
	c.session = session
	c.loadedAt = loadedAt
	c.mu.Unlock()
	if old != nil {
		_ = old.Destroy()
	}
	return true, nil
}

func (c *OnnxClient) Stats() RuntimeStats {
	b, n := c.batches.Load(), c.items.Load()
	st := RuntimeStats{TotalBatches: b, TotalItems: n, QueueLen: len(c.requestsChan)}
	if b > 0 {
		st.AvgBatchSize = float64(n) / float64(b)
	}
	return st
}

func (c *OnnxClient) Evaluate(moveType game.MoveType, move game.Move, coords game.CoordinateMap, lastBuilding string) (float64, float64, error) {
	label, err := ResolveVertex(moveType, move, coords, lastBuilding)
	if err != nil {
		return 0, 0, err
	}
	features, ok := rules.VertexFeatures(c.board, label)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown vertex %s", ErrFeatureExtraction, label)
	}

	respChan := make(chan inferenceResponse, 1)
	select {
	case c.requestsChan <- inferenceRequest{input: features, respChan: respChan}:
	case <-c.done:
		return 0, 0, ErrClientClosed
	}
	select {
	case resp := <-respChan:
		return float64(resp.value), float64(resp.policy), resp.err
	case <-c.done:
		return 0, 0, ErrClientClosed
	}
}

func (c *OnnxClient) batchLoop() {
	batchInput := make([]float32, 0, c.cfg.BatchSize*InputSize)
	requests := make([]inferenceRequest, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		c.runBatch(requests, batchInput)
		requests = requests[:0]
		batchInput = batchInput[:0]
	}

	for {
		select {
		case <-c.done:
			c.failBatch(requests, ErrClientClosed)
			return
		case req := <-c.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, req.input...)
			if len(requests) >= c.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			if len(requests) > 0 {
				flush()
			}
		}
	}
}

func (c *OnnxClient) runBatch(requests []inferenceRequest, batchInput []float32) {
	n := int64(len(requests))

	inputTensor, err := ort.NewTensor(ort.NewShape(n, InputSize), batchInput)
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	valueTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 1))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer valueTensor.Destroy()

	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 1))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer policyTensor.Destroy()

	c.mu.RLock()
	if c.session == nil {
		c.mu.RUnlock()
		c.failBatch(requests, ErrClientClosed)
		return
	}
	err = c.session.Run([]ort.Value{inputTensor}, []ort.Value{valueTensor, policyTensor})
	c.mu.RUnlock()
	if err != nil {
		c.failBatch(requests, err)
		return
	}

	c.batches.Add(1)
	c.items.Add(n)

	values := valueTensor.GetData()
	policies := policyTensor.GetData()
	for i, req := range requests {
		req.respChan <- inferenceResponse{value: values[i], policy: policies[i]}
	}
}

func (c *OnnxClient) failBatch(requests []inferenceRequest, err error) {
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}
