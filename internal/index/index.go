package index

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
)

// Hit is one nearest-neighbor match: the position of the vector in insertion
// order and its inner-product score against the query.
type Hit struct {
	Pos   int
	Score float32
}

// Index is the vector engine consumed by the retriever. Positions returned by
// Search key the positional join to chunk metadata, so engines must preserve
// insertion order. Implementations must be safe for concurrent Search calls;
// writes (Reset/Add/Flush) are single-writer, offline.
type Index interface {
	Reset(ctx context.Context) error
	Add(ctx context.Context, vectors [][]float32) error
	Flush(ctx context.Context) error
	Search(ctx context.Context, query []float32, topK int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Config selects and parameterizes an engine. Path feeds the flat engine,
// DSN the pgvector engine.
type Config struct {
	Engine string `json:"engine"`
	Path   string `json:"path"`
	DSN    string `json:"dsn"`
}

type Factory func(cfg Config) (Index, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg Config) (Index, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Engine))
	if key == "" {
		key = "flat"
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported index engine: %s", cfg.Engine)
	}
	return factory(cfg)
}

// NormalizeVector scales v to unit length in place and returns it. Inner
// product over unit vectors equals cosine similarity, which is what scores
// are defined over. A zero vector is returned unchanged.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
