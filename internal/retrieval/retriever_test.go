package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tbillet/routier/internal/index"
	"github.com/tbillet/routier/internal/model"
	"github.com/tbillet/routier/internal/store"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	tasks  []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.tasks = append(f.tasks, taskType)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float32, len(f.vector))
	copy(out, f.vector)
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

func newTestCorpus(t *testing.T, chunks []model.Chunk, vectors [][]float32) *store.Store {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	chunksPath := filepath.Join(dir, "chunks.jsonl")
	indexPath := filepath.Join(dir, "index.bin")

	require.NoError(t, store.SaveChunks(chunksPath, chunks))
	idx, err := index.New(index.Config{Engine: "flat", Path: indexPath})
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, vectors))
	require.NoError(t, idx.Flush(ctx))
	require.NoError(t, idx.Close())

	s, err := store.Open(ctx, store.Config{
		ChunksPath: chunksPath,
		Index:      index.Config{Engine: "flat", Path: indexPath},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRetrieve(t *testing.T) {
	chunks := []model.Chunk{
		{ID: "a", Page: 3, Text: "vitesse maximale en agglomération"},
		{ID: "b", Page: 8, Text: "stationnement gênant"},
		{ID: "c", Page: 12, Text: "alcoolémie au volant"},
	}
	corpus := newTestCorpus(t, chunks, [][]float32{{1, 0}, {0, 1}, {0.6, 0.8}})
	emb := &fakeEmbedder{vector: []float32{0, 2}}
	r := New(emb, corpus)

	results, err := r.Retrieve(context.Background(), "puis-je me garer ici", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The query embedding gets normalized before the search, so scores are
	// plain cosine: chunk b at 1.0, chunk c at 0.8.
	require.Equal(t, "b", results[0].ID)
	require.Equal(t, 8, results[0].Page)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
	require.Equal(t, "c", results[1].ID)
	require.InDelta(t, 0.8, results[1].Score, 1e-6)

	require.Equal(t, []string{"RETRIEVAL_QUERY"}, emb.tasks)
}

func TestRetrieveFewerThanTopK(t *testing.T) {
	chunks := []model.Chunk{{ID: "a", Page: 1, Text: "seul"}}
	corpus := newTestCorpus(t, chunks, [][]float32{{1, 0}})
	r := New(&fakeEmbedder{vector: []float32{1, 0}}, corpus)

	results, err := r.Retrieve(context.Background(), "question", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestRetrieveInvalidTopK(t *testing.T) {
	corpus := newTestCorpus(t, []model.Chunk{{ID: "a", Page: 1, Text: "x"}}, [][]float32{{1, 0}})
	r := New(&fakeEmbedder{vector: []float32{1, 0}}, corpus)

	_, err := r.Retrieve(context.Background(), "question", 0)
	require.Error(t, err)
}

func TestRetrieveEmbedError(t *testing.T) {
	corpus := newTestCorpus(t, []model.Chunk{{ID: "a", Page: 1, Text: "x"}}, [][]float32{{1, 0}})
	r := New(&fakeEmbedder{err: errors.New("quota exceeded")}, corpus)

	_, err := r.Retrieve(context.Background(), "question", 3)
	require.Error(t, err)
}
