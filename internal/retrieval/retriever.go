package retrieval

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/tbillet/routier/internal/ai"
	"github.com/tbillet/routier/internal/index"
	"github.com/tbillet/routier/internal/model"
	"github.com/tbillet/routier/internal/store"
)

// Retriever embeds a query and joins the nearest index hits back to their
// chunks. Both collaborators are injected; the retriever itself holds no
// state and is safe for concurrent use.
type Retriever struct {
	embedder ai.IEmbedder
	corpus   *store.Store
}

func New(embedder ai.IEmbedder, corpus *store.Store) *Retriever {
	return &Retriever{embedder: embedder, corpus: corpus}
}

// Retrieve returns the topK chunks nearest to the query, ordered by
// descending score. When the corpus holds fewer than topK chunks the result
// is simply shorter, never an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]model.RetrievalResult, error) {
	if topK < 1 {
		return nil, fmt.Errorf("topK must be >= 1, got %d", topK)
	}
	emb, err := r.embedder.Embed(ctx, query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.corpus.Search(ctx, index.NormalizeVector(emb), topK)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	results := make([]model.RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := r.corpus.Chunk(hit.Pos)
		if !ok {
			return nil, fmt.Errorf("index position %d has no chunk record", hit.Pos)
		}
		results = append(results, model.RetrievalResult{
			ID:    chunk.ID,
			Text:  chunk.Text,
			Page:  chunk.Page,
			Score: hit.Score,
		})
	}
	if len(results) > 0 {
		logutil.GetLogger(ctx).Debug("retrieval done",
			zap.Int("hits", len(results)),
			zap.Float32("top_score", results[0].Score),
		)
	}
	return results, nil
}
