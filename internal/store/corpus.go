package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/tbillet/routier/internal/index"
	"github.com/tbillet/routier/internal/model"
	apperr "github.com/tbillet/routier/internal/pkg/errors"
)

// Config locates the persisted corpus: the chunk and plan files plus the
// vector engine holding their embeddings.
type Config struct {
	ChunksPath string       `json:"chunks_path"`
	PlanPath   string       `json:"plan_path"`
	Index      index.Config `json:"index"`
}

// Store is the read side of the corpus: chunk metadata, the plan, and the
// vector index, loaded together and swapped together. Vector positions index
// directly into the chunk slice, which is why chunk file order is load-bearing.
// Reads may run concurrently; Reload swaps the whole snapshot atomically.
type Store struct {
	cfg Config

	mu     sync.RWMutex
	chunks []model.Chunk
	plan   []model.PlanEntry
	idx    index.Index
}

// Open loads the corpus and verifies that the index and the chunk file are
// positionally aligned. A missing or mismatched index is fatal here: serving
// must not start over a corpus that would join wrong chunks to hits.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	s := &Store{cfg: cfg}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads every corpus artifact and swaps it in under the write
// lock. In-flight searches finish against the old snapshot. This is the
// rebuild-vs-serve handoff: ingestion writes new files, then the serving
// process reloads.
func (s *Store) Reload(ctx context.Context) error {
	chunks, err := LoadChunks(ctx, s.cfg.ChunksPath)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrIndexUnavailable, err)
	}
	var plan []model.PlanEntry
	if s.cfg.PlanPath != "" {
		plan, err = LoadPlan(s.cfg.PlanPath)
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrIndexUnavailable, err)
		}
	}
	idx, err := index.New(s.cfg.Index)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrIndexUnavailable, err)
	}
	count, err := idx.Count(ctx)
	if err != nil {
		idx.Close()
		return fmt.Errorf("%w: %v", apperr.ErrIndexUnavailable, err)
	}
	if count != len(chunks) {
		idx.Close()
		return fmt.Errorf("%w: index has %d vectors, chunk file has %d records",
			apperr.ErrIndexUnavailable, count, len(chunks))
	}

	s.mu.Lock()
	old := s.idx
	s.chunks = chunks
	s.plan = plan
	s.idx = idx
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	logutil.GetLogger(ctx).Info("corpus loaded",
		zap.Int("chunks", len(chunks)),
		zap.Int("plan_entries", len(plan)),
		zap.String("engine", s.Engine()),
	)
	return nil
}

// Search runs a nearest-neighbor query against the current snapshot.
func (s *Store) Search(ctx context.Context, query []float32, topK int) ([]index.Hit, error) {
	s.mu.RLock()
	idx := s.idx
	s.mu.RUnlock()
	return idx.Search(ctx, query, topK)
}

// Chunk returns the chunk stored at the given vector position.
func (s *Store) Chunk(pos int) (model.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pos < 0 || pos >= len(s.chunks) {
		return model.Chunk{}, false
	}
	return s.chunks[pos], true
}

func (s *Store) Plan() []model.PlanEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan
}

func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *Store) Engine() string {
	if s.cfg.Index.Engine == "" {
		return "flat"
	}
	return s.cfg.Index.Engine
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx == nil {
		return nil
	}
	return s.idx.Close()
}

// LoadChunks reads newline-delimited chunk records in file order. A line
// that fails to parse is logged and skipped; one bad record must not abort
// the rest of the corpus.
func LoadChunks(ctx context.Context, path string) ([]model.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chunks: %w", err)
	}
	defer f.Close()

	logger := logutil.GetLogger(ctx).With(zap.String("path", path))
	var chunks []model.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c model.Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			logger.Warn("skipping malformed chunk record", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	return chunks, nil
}

// SaveChunks writes chunks as newline-delimited JSON in slice order. The
// order must match the order vectors are added to the index.
func SaveChunks(path string, chunks []model.Chunk) error {
	return saveNDJSON(path, len(chunks), func(enc *json.Encoder, i int) error {
		return enc.Encode(chunks[i])
	})
}

func LoadPlan(path string) ([]model.PlanEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()

	var entries []model.PlanEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e model.PlanEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return entries, nil
}

func SavePlan(path string, entries []model.PlanEntry) error {
	return saveNDJSON(path, len(entries), func(enc *json.Encoder, i int) error {
		return enc.Encode(entries[i])
	})
}

func saveNDJSON(path string, n int, write func(enc *json.Encoder, i int) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := 0; i < n; i++ {
		if err := write(enc, i); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
