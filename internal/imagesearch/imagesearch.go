package imagesearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	customsearch "google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"

	"imageselector/internal/logger"
)

const MaxResults = 10

var (
	ErrMissingCredentials = errors.New("missing CSE key or cx")
	ErrEmptyQuery         = errors.New("empty query")
)

var directImageExts = []string{".jpg", ".jpeg", ".png", ".webp"}

type Options struct {
	ImgSize          string // icon|small|medium|large|xlarge|xxlarge|huge
	ImgType          string // clipart|face|lineart|news|photo
	ImgColorType     string // mono|gray|color
	ImgDominantColor string // red|orange|yellow|green|teal|blue|purple|pink|white|gray|black|brown
	Rights           string // e.g., cc_publicdomain|cc_attribute|...
	Safe             string // off|medium|active
	Num              int    // max results to fetch, 1-10
	Timeout          time.Duration
	Endpoint         string // overrides the Custom Search base URL
}

// Candidate is one image result returned for a query.
type Candidate struct {
	Link        string
	Title       string
	Snippet     string
	ContextLink string
	Mime        string
}

// Metadata is the text compared against the article when embeddings are used.
func (c Candidate) Metadata() string {
	return strings.Join([]string{c.Title, c.Snippet, c.ContextLink}, " ")
}

// KeywordText is the text used for word-overlap scoring.
func (c Candidate) KeywordText() string {
	return c.Title + " " + c.Snippet
}

type Client struct {
	apiKey string
	cx     string
	opts   Options
	svc    *customsearch.Service
	log    zerolog.Logger
}

// NewClient builds a Custom Search client. Blank credentials are accepted here
// and reported by Search, so the server can start without them.
func NewClient(ctx context.Context, apiKey, cx string, opts Options) (*Client, error) {
	if opts.Num <= 0 || opts.Num > MaxResults {
		opts.Num = MaxResults
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	httpClient := &http.Client{
		Timeout: opts.Timeout,
		Transport: &transport.APIKey{
			Key:       strings.TrimSpace(apiKey),
			Transport: http.DefaultTransport,
		},
	}
	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := customsearch.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("customsearch service: %w", err)
	}

	return &Client{
		apiKey: strings.TrimSpace(apiKey),
		cx:     strings.TrimSpace(cx),
		opts:   opts,
		svc:    svc,
		log:    logger.New("imagesearch"),
	}, nil
}

// Search queries Google Custom Search in image mode and returns the candidates
// in the order the API ranked them.
func (c *Client) Search(ctx context.Context, query string) ([]Candidate, error) {
	if c.apiKey == "" || c.cx == "" {
		return nil, ErrMissingCredentials
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	call := c.svc.Cse.List().
		Cx(c.cx).
		Q(query).
		SearchType("image").
		Num(int64(c.opts.Num))
	if c.opts.Safe != "" {
		call = call.Safe(c.opts.Safe)
	}
	if c.opts.ImgSize != "" {
		call = call.ImgSize(c.opts.ImgSize)
	}
	if c.opts.ImgType != "" {
		call = call.ImgType(c.opts.ImgType)
	}
	if c.opts.ImgColorType != "" {
		call = call.ImgColorType(c.opts.ImgColorType)
	}
	if c.opts.ImgDominantColor != "" {
		call = call.ImgDominantColor(c.opts.ImgDominantColor)
	}
	if c.opts.Rights != "" {
		call = call.Rights(c.opts.Rights)
	}

	started := time.Now()
	res, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("cse list: %w", err)
	}

	candidates := make([]Candidate, 0, len(res.Items))
	for _, it := range res.Items {
		if it == nil || strings.TrimSpace(it.Link) == "" {
			continue
		}
		cand := Candidate{
			Link:    it.Link,
			Title:   it.Title,
			Snippet: it.Snippet,
			Mime:    it.Mime,
		}
		if it.Image != nil {
			cand.ContextLink = it.Image.ContextLink
		}
		candidates = append(candidates, cand)
	}

	c.log.Debug().
		Str("query", query).
		Int("results", len(candidates)).
		Dur("took", time.Since(started)).
		Msg("image search done")
	return candidates, nil
}

// FilterDirectImages keeps candidates whose link points straight at a
// jpg, jpeg, png or webp file.
func FilterDirectImages(candidates []Candidate) []Candidate {
	filtered := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if isDirectImage(cand.Link) {
			filtered = append(filtered, cand)
		}
	}
	return filtered
}

func isDirectImage(link string) bool {
	p := link
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	for _, valid := range directImageExts {
		if ext == valid {
			return true
		}
	}
	return false
}
