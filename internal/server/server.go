// Package server exposes the parser over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/ppiankov/coursework/internal/domain"
	"github.com/ppiankov/coursework/internal/history"
	"github.com/ppiankov/coursework/internal/model"
	"github.com/ppiankov/coursework/internal/pipeline"
	"github.com/ppiankov/coursework/internal/validate"
)

// Parser runs one parse
type Parser interface {
	Parse(ctx context.Context, text string, opts pipeline.Options, onProgress pipeline.ProgressFunc) (*model.ParseResult, error)
	AIEnabled() bool
}

// Fetcher retrieves documents given by URL
type Fetcher interface {
	FetchWithRetry(ctx context.Context, rawURL string) (*pipeline.FetchResult, error)
}

// History reads recorded parses
type History interface {
	ListByCourse(ctx context.Context, course string, limit int) ([]history.Entry, error)
	Get(ctx context.Context, parseID string) (*model.ParseResult, error)
}

// Config holds HTTP server configuration
type Config struct {
	Addr         string
	MaxBodyBytes int64
	Version      string
}

// Server provides the HTTP API
type Server struct {
	echo    *echo.Echo
	parser  Parser
	fetcher Fetcher
	history History
	metrics http.Handler
	logger  *zap.Logger
	config  Config
}

// Option configures optional collaborators
type Option func(*Server)

// WithFetcher enables URL inputs
func WithFetcher(f Fetcher) Option {
	return func(s *Server) { s.fetcher = f }
}

// WithHistory enables the history endpoints
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithMetrics serves h on /metrics
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New creates a server
func New(parser Parser, logger *zap.Logger, cfg Config, opts ...Option) (*Server, error) {
	if parser == nil {
		return nil, fmt.Errorf("parser cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2_000_000
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxBodyBytes, 10)))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		parser: parser,
		logger: logger,
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/parse", s.handleParse)
	v1.POST("/parse/stream", s.handleParseStream)
	v1.GET("/domains", s.handleDomains)
	v1.GET("/history", s.handleHistory)
	v1.GET("/history/:id", s.handleHistoryItem)
}

// ServeHTTP lets the server be used as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// ParseRequest is the body of POST /api/v1/parse
type ParseRequest struct {
	Text         string            `json:"text"`
	URL          string            `json:"url"`
	Course       string            `json:"course"`
	DocumentType string            `json:"documentType"`
	UserCourses  []string          `json:"userCourses"`
	DefaultYear  int               `json:"defaultYear"`
	Overrides    *domain.Overrides `json:"overrides"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	AIEnabled bool   `json:"aiEnabled"`
	Version   string `json:"version,omitempty"`
}

// DomainInfo describes one domain profile
type DomainInfo struct {
	Key           string             `json:"key"`
	Name          string             `json:"name"`
	Keywords      []string           `json:"keywords,omitempty"`
	HourEstimates map[string]float64 `json:"hourEstimates"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", AIEnabled: s.parser.AIEnabled(), Version: s.config.Version})
}

func (s *Server) handleParse(c echo.Context) error {
	text, opts, err := s.prepare(c)
	if err != nil {
		return s.fail(c, err)
	}
	res, err := s.parser.Parse(c.Request().Context(), text, opts, nil)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// handleParseStream reports progress as server-sent events, one per stage,
// then a final "result" or "failure" event
func (s *Server) handleParseStream(c echo.Context) error {
	text, opts, err := s.prepare(c)
	if err != nil {
		return s.fail(c, err)
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			s.logger.Warn("encode stream event", zap.String("event", event), zap.Error(err))
			return
		}
		_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		w.Flush()
	}

	res, err := s.parser.Parse(c.Request().Context(), text, opts, func(p pipeline.Progress) {
		send(string(p.Stage), p)
	})
	if err != nil {
		send("failure", ErrorResponse{Error: validate.SanitizeForClient(err, s.logger)})
		return nil
	}
	send("result", res)
	return nil
}

func (s *Server) prepare(c echo.Context) (string, pipeline.Options, error) {
	var req ParseRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid parse request", zap.Error(err))
		return "", pipeline.Options{}, model.WrapError(model.ErrInvalidInput, "bind", errors.New("invalid request body"))
	}

	opts := pipeline.Options{
		Course:       req.Course,
		DocumentType: model.ParseDocumentType(req.DocumentType),
		UserCourses:  req.UserCourses,
		DefaultYear:  req.DefaultYear,
		Overrides:    req.Overrides,
	}

	text := req.Text
	if strings.TrimSpace(req.URL) != "" {
		if text != "" {
			return "", opts, model.WrapError(model.ErrInvalidInput, "bind", errors.New("send either text or url, not both"))
		}
		if s.fetcher == nil {
			return "", opts, model.WrapError(model.ErrInvalidInput, "bind", errors.New("url inputs are disabled"))
		}
		if !pipeline.IsURL(req.URL) {
			return "", opts, model.WrapError(model.ErrInvalidInput, "bind", errors.New("url must be http or https"))
		}
		fr, err := s.fetcher.FetchWithRetry(c.Request().Context(), req.URL)
		if err != nil {
			return "", opts, err
		}
		text = fr.Text
	}
	return text, opts, nil
}

func (s *Server) handleDomains(c echo.Context) error {
	out := make([]DomainInfo, 0, len(domain.All))
	for _, d := range domain.All {
		p := domain.ProfileFor(d)
		hours := make(map[string]float64)
		for t, h := range domain.DefaultHours() {
			hours[string(t)] = h
		}
		for t, h := range p.HourEstimates {
			hours[string(t)] = h
		}
		keywords := append([]string(nil), p.Keywords...)
		sort.Strings(keywords)
		out = append(out, DomainInfo{Key: d.String(), Name: p.Name, Keywords: keywords, HourEstimates: hours})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleHistory(c echo.Context) error {
	if s.history == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "history is not enabled"})
	}
	course := strings.TrimSpace(c.QueryParam("course"))
	if course == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "course query parameter is required"})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	entries, err := s.history.ListByCourse(c.Request().Context(), course, limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) handleHistoryItem(c echo.Context) error {
	if s.history == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "history is not enabled"})
	}
	res, err := s.history.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) fail(c echo.Context, err error) error {
	return c.JSON(statusFor(err), ErrorResponse{Error: validate.SanitizeForClient(err, s.logger)})
}

// statusFor maps error kinds onto HTTP status codes
func statusFor(err error) int {
	var fe *pipeline.FetchError
	switch {
	case model.IsKind(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case model.IsKind(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrDisallowed), errors.As(err, &fe):
		return http.StatusBadGateway
	case model.IsKind(err, model.ErrTemporary), model.IsKind(err, model.ErrCollaborator):
		return http.StatusServiceUnavailable
	case model.IsKind(err, model.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// Start serves until Shutdown
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
