package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"imageselector/internal/imagesearch"
	"imageselector/internal/selector"
)

const (
	msgMissingKeyword     = "Missing keyword parameter"
	msgMissingCredentials = "Server configuration error: Missing API credentials"
	msgNoImages           = "No images found"
	msgNoSuitableImage    = "No suitable image found"
	msgRateLimited        = "Rate limit exceeded"
)

type SelectImageRequest struct {
	Keyword string `json:"keyword"`
	Article string `json:"article,omitempty"`
}

type SelectImageResponse struct {
	Success  bool   `json:"success"`
	ImageURL string `json:"image_url,omitempty"`
	Error    string `json:"error,omitempty"`
	Keyword  string `json:"keyword"`
}

func (s *Server) selectImage(c *gin.Context) {
	var req SelectImageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Keyword) == "" {
		c.JSON(http.StatusBadRequest, SelectImageResponse{Error: msgMissingKeyword})
		return
	}
	keyword := strings.TrimSpace(req.Keyword)

	if !s.credentials {
		c.JSON(http.StatusInternalServerError, SelectImageResponse{Error: msgMissingCredentials, Keyword: keyword})
		return
	}

	sel, err := s.selector.Select(c.Request.Context(), keyword, req.Article)
	if err != nil {
		status, msg := classify(err)
		if status == http.StatusInternalServerError {
			s.log.Error().Err(err).Str("keyword", keyword).Msg("select image")
		}
		c.JSON(status, SelectImageResponse{Error: msg, Keyword: keyword})
		return
	}

	c.JSON(http.StatusOK, SelectImageResponse{
		Success:  true,
		ImageURL: sel.URL,
		Keyword:  keyword,
	})
}

// classify maps selection errors to a status code and client message.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, imagesearch.ErrMissingCredentials):
		return http.StatusInternalServerError, msgMissingCredentials
	case errors.Is(err, selector.ErrNoImages):
		return http.StatusNotFound, msgNoImages
	case errors.Is(err, selector.ErrNoSuitableImage):
		return http.StatusNotFound, msgNoSuitableImage
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status":    "healthy",
		"service":   ServiceName,
		"scorer":    s.selector.Method(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.circuit != nil {
		body["embedding_circuit"] = s.circuit()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) home(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}
