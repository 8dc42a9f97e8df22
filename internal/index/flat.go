package index

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

// Flat index blob: magic, vector dimension, vector count, then count*dim
// little-endian float32 values in insertion order.
var flatMagic = [4]byte{'R', 'F', 'I', '1'}

func init() {
	Register("flat", createFlatIndex)
}

// flatIndex is an exact inner-product index over an in-memory matrix. Search
// scans every vector; corpora in scope are small enough that brute force is
// the simplest correct engine.
type flatIndex struct {
	mu      sync.RWMutex
	path    string
	dim     int
	vectors [][]float32
}

func createFlatIndex(cfg Config) (Index, error) {
	idx := &flatIndex{path: cfg.Path}
	if cfg.Path != "" {
		if err := idx.loadFile(cfg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return idx, nil
}

func (f *flatIndex) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = nil
	f.dim = 0
	return nil
}

func (f *flatIndex) Add(ctx context.Context, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		if f.dim == 0 {
			f.dim = len(v)
		}
		if len(v) != f.dim {
			return fmt.Errorf("vector dimension mismatch: got %d, index has %d", len(v), f.dim)
		}
		f.vectors = append(f.vectors, v)
	}
	return nil
}

// Flush persists the matrix to the configured path. The write goes through a
// temp file and rename so a serving process never opens a half-written blob.
func (f *flatIndex) Flush(ctx context.Context) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.path == "" {
		return nil
	}
	tmp := f.path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index blob: %w", err)
	}
	w := bufio.NewWriter(out)
	if _, err := w.Write(flatMagic[:]); err != nil {
		out.Close()
		return err
	}
	header := []uint32{uint32(f.dim), uint32(len(f.vectors))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		out.Close()
		return err
	}
	for _, v := range f.vectors {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			out.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *flatIndex) loadFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	r := bufio.NewReader(in)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("read index header: %w", err)
	}
	if magic != flatMagic {
		return fmt.Errorf("not a flat index blob: %s", path)
	}
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("read index header: %w", err)
	}
	dim, count := int(header[0]), int(header[1])
	vectors := make([][]float32, 0, count)
	for i := 0; i < count; i++ {
		v := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, v)
	}
	f.mu.Lock()
	f.dim = dim
	f.vectors = vectors
	f.mu.Unlock()
	return nil
}

func (f *flatIndex) Search(ctx context.Context, query []float32, topK int) ([]Hit, error) {
	if topK < 1 {
		return nil, fmt.Errorf("topK must be >= 1, got %d", topK)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.vectors) > 0 && len(query) != f.dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, index has %d", len(query), f.dim)
	}
	hits := make([]Hit, 0, len(f.vectors))
	for pos, v := range f.vectors {
		hits = append(hits, Hit{Pos: pos, Score: dot(query, v)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Pos < hits[j].Pos
	})
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

func (f *flatIndex) Count(ctx context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors), nil
}

func (f *flatIndex) Close() error {
	return nil
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
