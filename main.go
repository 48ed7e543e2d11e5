package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"

	"imageselector/internal/config"
	"imageselector/internal/embedding"
	"imageselector/internal/imagesearch"
	"imageselector/internal/logger"
	"imageselector/internal/ranking"
	"imageselector/internal/selector"
	"imageselector/internal/server"
)

var log = logger.New("main")

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var port string

	root := &cobra.Command{
		Use:          "imageselector",
		Short:        "Pick the best matching image for an article",
		Long:         `HTTP service that searches Google Custom Search for images and ranks them by similarity to article text.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}
	root.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}
	serve.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")

	root.AddCommand(serve, newSelectCmd(), newProbeCmd())
	return root
}

func newSelectCmd() *cobra.Command {
	var keyword, article string

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Run one selection in-process and print the image URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.SetDebug(cfg.Debug)
			svc, _, err := buildService(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			sel, err := svc.Select(cmd.Context(), keyword, article)
			if err != nil {
				return err
			}
			log.Debug().Str("method", sel.Method).Float64("score", sel.Score).Int("index", sel.Index).Send()
			fmt.Fprintln(cmd.OutOrStdout(), sel.URL)
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyword, "keyword", "k", "", "search keyword (required)")
	cmd.Flags().StringVarP(&article, "article", "a", "", "article text used for ranking (defaults to the keyword)")
	_ = cmd.MarkFlagRequired("keyword")
	return cmd
}

func newProbeCmd() *cobra.Command {
	var (
		baseURL string
		article string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe [keyword]",
		Short: "Call a running server and print the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyword := "Ormond Beach oceanfront house"
			if len(args) == 1 {
				keyword = args[0]
			}

			resp, status, err := server.NewClient(baseURL, timeout).SelectImage(cmd.Context(), keyword, article)
			if err != nil {
				return fmt.Errorf("probe %s: %w", baseURL, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Keyword: %s\n", keyword)
			if resp.Success {
				fmt.Fprintf(out, "Status: Success (%d)\n", status)
				fmt.Fprintf(out, "Image URL: %s\n", resp.ImageURL)
				return nil
			}
			fmt.Fprintf(out, "Status: Failed (%d)\n", status)
			fmt.Fprintf(out, "Error: %s\n", resp.Error)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:5000", "base URL of the server")
	cmd.Flags().StringVarP(&article, "article", "a", "", "article text")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "request timeout")
	return cmd
}

func runServe(ctx context.Context, port string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Port = port
	}
	logger.SetDebug(cfg.Debug)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if !cfg.HasSearchCredentials() {
		log.Warn().Msg("GOOGLE_API_KEY and GOOGLE_CX are required; /api/select-image will fail until they are set")
	}

	svc, backend, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}

	opts := server.Options{
		HasCredentials:  cfg.HasSearchCredentials(),
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		RateLimitBurst:  cfg.RateLimitBurst,
	}
	if backend != nil {
		opts.CircuitState = backend.CircuitState
	}
	return server.New(ctx, svc, opts).Run(ctx, cfg.Addr())
}

// buildService wires search, embeddings and ranking. The backend is nil when
// no embedding provider is configured.
func buildService(ctx context.Context, cfg *config.Config) (*selector.Service, *embedding.Backend, error) {
	search, err := imagesearch.NewClient(ctx, cfg.GoogleAPIKey, cfg.GoogleCX, imagesearch.Options{
		ImgType: cfg.SearchImageType,
		Safe:    cfg.SearchSafe,
		Num:     cfg.SearchResults,
		Timeout: cfg.SearchTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	backend, err := embedding.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding backend: %w", err)
	}
	log.Info().Str("embedding_provider", cfg.EmbeddingProvider()).Msg("ranking configured")

	var emb embeddings.Embedder
	if backend != nil {
		emb = backend
	}
	return selector.New(search, ranking.NewRanker(emb), cfg.FilterLinks), backend, nil
}
