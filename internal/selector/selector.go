package selector

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"imageselector/internal/imagesearch"
	"imageselector/internal/logger"
	"imageselector/internal/ranking"
)

var (
	ErrNoImages        = errors.New("no images found")
	ErrNoSuitableImage = errors.New("no suitable image found")
)

// Searcher returns image candidates for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]imagesearch.Candidate, error)
}

type Service struct {
	searcher    Searcher
	ranker      *ranking.Ranker
	filterLinks bool
	log         zerolog.Logger
}

func New(searcher Searcher, ranker *ranking.Ranker, filterLinks bool) *Service {
	return &Service{
		searcher:    searcher,
		ranker:      ranker,
		filterLinks: filterLinks,
		log:         logger.New("selector"),
	}
}

// Method reports the scorer the ranker tries first.
func (s *Service) Method() string {
	return s.ranker.Method()
}

// Select searches for keyword and picks the candidate closest to article.
// A blank article falls back to the keyword itself.
func (s *Service) Select(ctx context.Context, keyword, article string) (ranking.Selection, error) {
	if strings.TrimSpace(article) == "" {
		article = keyword
	}

	candidates, err := s.searcher.Search(ctx, keyword)
	if err != nil {
		return ranking.Selection{}, err
	}
	if len(candidates) == 0 {
		return ranking.Selection{}, ErrNoImages
	}

	if s.filterLinks {
		total := len(candidates)
		candidates = imagesearch.FilterDirectImages(candidates)
		s.log.Debug().Int("total", total).Int("kept", len(candidates)).Msg("filtered image links")
	}

	sel, ok := s.ranker.Best(ctx, article, candidates)
	if !ok {
		return ranking.Selection{}, ErrNoSuitableImage
	}

	s.log.Info().
		Str("keyword", keyword).
		Str("method", sel.Method).
		Float64("score", sel.Score).
		Str("image_url", sel.URL).
		Msg("image selected")
	return sel, nil
}
