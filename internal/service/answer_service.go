package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/tbillet/routier/internal/ai"
	"github.com/tbillet/routier/internal/model"
	"github.com/tbillet/routier/internal/retrieval"
	"github.com/tbillet/routier/internal/safety"
)

// DeclineMessage is the fixed refusal returned when retrieval confidence is
// below threshold. The wording points the user at the authoritative source.
const DeclineMessage = "Je ne peux pas répondre avec certitude. Consultez la source officielle."

const systemPrompt = "Tu es un assistant expert du Code de la route français. " +
	"Utilise uniquement les passages fournis et cite la page source."

// Source cites one retrieved passage backing the answer.
type Source struct {
	Page  int     `json:"page"`
	Score float32 `json:"score"`
}

type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// InputRejectedError reports a query stopped by the input filter; the
// handler maps it to a client error carrying the reason code.
type InputRejectedError struct {
	Reason safety.Reason
}

func (e *InputRejectedError) Error() string {
	return fmt.Sprintf("input rejected: %s", e.Reason)
}

type AnswerConfig struct {
	TopK      int
	Threshold float32
}

// AnswerService runs the question pipeline: input filter, retrieval,
// confidence gate, then generation over the retained passages. Answers are
// cached by question hash; a cache entry outliving a corpus reload only ever
// replays a previously valid answer.
type AnswerService struct {
	filter    *safety.Filter
	retriever *retrieval.Retriever
	generator ai.IGenerator
	cfg       AnswerConfig
	cache     *expirable.LRU[string, Answer]
}

func NewAnswerService(filter *safety.Filter, retriever *retrieval.Retriever, generator ai.IGenerator, cfg AnswerConfig) *AnswerService {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &AnswerService{
		filter:    filter,
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
		cache:     expirable.NewLRU[string, Answer](10000, nil, 2*time.Hour),
	}
}

// Ask answers a question or declines. A decline is a successful answer with
// empty sources, never an error; only filter rejections and collaborator
// failures surface as errors.
func (s *AnswerService) Ask(ctx context.Context, question string) (*Answer, error) {
	if ok, reason := s.filter.CheckInput(question); !ok {
		return nil, &InputRejectedError{Reason: reason}
	}

	cacheKey := s.cacheKey(question)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return &cached, nil
	}

	logger := logutil.GetLogger(ctx).With(zap.String("question", question))
	results, err := s.retriever.Retrieve(ctx, question, s.cfg.TopK)
	if err != nil {
		logger.Error("retrieval failed", zap.Error(err))
		return nil, err
	}
	if safety.ShouldDecline(results, s.cfg.Threshold) {
		logger.Info("declining: low retrieval confidence", zap.Float32("threshold", s.cfg.Threshold))
		return &Answer{Answer: DeclineMessage, Sources: []Source{}}, nil
	}

	text, err := s.generator.Generate(ctx, buildPrompt(question, results))
	if err != nil {
		logger.Error("generation failed", zap.Error(err))
		return nil, err
	}
	answer := Answer{Answer: text, Sources: make([]Source, 0, len(results))}
	for _, r := range results {
		answer.Sources = append(answer.Sources, Source{Page: r.Page, Score: r.Score})
	}
	s.cache.Add(cacheKey, answer)
	return &answer, nil
}

func buildPrompt(question string, results []model.RetrievalResult) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nContexte:\n")
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] (Page %d): %s", i+1, r.Page, r.Text)
	}
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}

func (s *AnswerService) cacheKey(question string) string {
	hash := sha256.Sum256([]byte(question))
	return hex.EncodeToString(hash[:])
}
