package ranking

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/embeddings"

	"imageselector/internal/imagesearch"
	"imageselector/internal/logger"
)

const (
	MethodEmbedding = "embedding"
	MethodKeyword   = "keyword"
)

// Selection is the winning candidate of a ranking pass.
type Selection struct {
	URL    string
	Index  int
	Score  float64
	Method string
}

type Ranker struct {
	embedder embeddings.Embedder
	log      zerolog.Logger
}

// NewRanker returns a ranker that scores by embedding similarity when
// embedder is non-nil and by word overlap otherwise.
func NewRanker(embedder embeddings.Embedder) *Ranker {
	return &Ranker{embedder: embedder, log: logger.New("ranking")}
}

// Method reports which scorer is tried first.
func (r *Ranker) Method() string {
	if r.embedder != nil {
		return MethodEmbedding
	}
	return MethodKeyword
}

// Best scores every candidate against the article and returns the highest.
// Ties keep the earliest candidate. It returns false only for an empty list.
func (r *Ranker) Best(ctx context.Context, article string, candidates []imagesearch.Candidate) (Selection, bool) {
	if len(candidates) == 0 {
		return Selection{}, false
	}

	method := MethodKeyword
	var scores []float64
	if r.embedder != nil {
		s, err := r.embeddingScores(ctx, article, candidates)
		if err != nil {
			r.log.Warn().Err(err).Int("candidates", len(candidates)).Msg("embedding scoring failed, using keyword overlap")
		} else {
			scores, method = s, MethodEmbedding
		}
	}
	if scores == nil {
		scores = keywordScores(article, candidates)
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}

	r.log.Debug().
		Str("method", method).
		Int("index", best).
		Float64("score", scores[best]).
		Msg("candidate selected")

	return Selection{
		URL:    candidates[best].Link,
		Index:  best,
		Score:  scores[best],
		Method: method,
	}, true
}

func (r *Ranker) embeddingScores(ctx context.Context, article string, candidates []imagesearch.Candidate) ([]float64, error) {
	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, article)
	for _, c := range candidates {
		texts = append(texts, c.Metadata())
	}

	vecs, err := r.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(vecs), len(texts))
	}

	scores := make([]float64, len(candidates))
	for i := range candidates {
		scores[i] = CosineSimilarity(vecs[0], vecs[i+1])
	}
	return scores, nil
}

func keywordScores(article string, candidates []imagesearch.Candidate) []float64 {
	terms := Tokenize(article)
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = OverlapRatio(terms, Tokenize(c.KeywordText()))
	}
	return scores
}

// OverlapRatio is the share of article terms that also occur in text.
// Both slices are expected to be deduplicated, as Tokenize returns them.
func OverlapRatio(articleTerms, textTerms []string) float64 {
	if len(articleTerms) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(textTerms))
	for _, t := range textTerms {
		set[t] = struct{}{}
	}
	matched := 0
	for _, t := range articleTerms {
		if _, ok := set[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(articleTerms))
}

// Tokenize lowercases s, splits it on anything that is not a letter or digit
// and returns the distinct words of two or more runes in first-seen order.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// CosineSimilarity returns 0 for empty, mismatched or zero-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
