// Package server is the gin HTTP surface of the image selector.
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"imageselector/internal/logger"
	"imageselector/internal/ranking"
)

const ServiceName = "image-selector-api"

//go:embed static/index.html
var indexHTML []byte

// Selector picks the best image for a keyword and optional article text.
type Selector interface {
	Select(ctx context.Context, keyword, article string) (ranking.Selection, error)
	Method() string
}

type Options struct {
	// HasCredentials is false when GOOGLE_API_KEY or GOOGLE_CX is unset.
	HasCredentials  bool
	AllowedOrigins  []string
	RateLimitPerMin int
	RateLimitBurst  int
	// CircuitState reports the embedding breaker state. Nil when no
	// embedding backend is configured.
	CircuitState    func() string
}

type Server struct {
	engine      *gin.Engine
	selector    Selector
	credentials bool
	circuit     func() string
	log         zerolog.Logger
}

// New wires routes and middleware. ctx bounds the lifetime of background
// helpers such as the rate limiter cleanup.
func New(ctx context.Context, selector Selector, opts Options) *Server {
	s := &Server{
		engine:      gin.New(),
		selector:    selector,
		credentials: opts.HasCredentials,
		circuit:     opts.CircuitState,
		log:         logger.New("server"),
	}

	s.engine.Use(
		gin.CustomRecovery(s.recover),
		requestLogger(s.log),
		allowCORS(opts.AllowedOrigins),
	)

	selectHandlers := []gin.HandlerFunc{s.selectImage}
	if opts.RateLimitPerMin > 0 {
		selectHandlers = append([]gin.HandlerFunc{rateLimit(ctx, opts.RateLimitPerMin, opts.RateLimitBurst)}, selectHandlers...)
	}

	s.engine.GET("/", s.home)
	s.engine.GET("/api/health", s.health)
	s.engine.POST("/api/select-image", selectHandlers...)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Str("scorer", s.selector.Method()).Msg("listening on http")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) recover(c *gin.Context, recovered any) {
	s.log.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("handler panicked")
	c.AbortWithStatusJSON(http.StatusInternalServerError, SelectImageResponse{
		Success: false,
		Error:   fmt.Sprint(recovered),
	})
}
