// Package toolapi exposes the estimation stages and the full proposal
// pipeline over HTTP.
package toolapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joelkehle/sales-proposal-agency/internal/auth"
	"github.com/joelkehle/sales-proposal-agency/internal/events"
	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/joelkehle/sales-proposal-agency/internal/render"
	"github.com/joelkehle/sales-proposal-agency/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// History is the persistence the server needs; *store.Store satisfies it.
type History interface {
	Save(ctx context.Context, env proposal.ResponseEnvelope) error
	Get(ctx context.Context, id string) (proposal.ResponseEnvelope, error)
	List(ctx context.Context, limit int) ([]store.Summary, error)
}

type PDFRenderer interface {
	Render(ctx context.Context, env proposal.ResponseEnvelope) ([]byte, error)
}

type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

type Options struct {
	Pipeline *proposal.Pipeline
	// History, Publisher, PDF and Tokens are optional. Without Tokens the
	// /v1 routes are open.
	History      History
	Publisher    events.Publisher
	PDF          PDFRenderer
	Tokens       TokenVerifier
	Logger       *slog.Logger
	MaxBodyBytes int64
	Registry     *prometheus.Registry
}

type Server struct {
	pipeline  *proposal.Pipeline
	history   History
	publisher events.Publisher
	pdf       PDFRenderer
	tokens    TokenVerifier
	logger    *slog.Logger
	maxBody   int64
	metrics   *metrics
	registry  *prometheus.Registry
	engine    *gin.Engine
}

func New(opts Options) (*Server, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("toolapi: pipeline is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	m, err := newMetrics(opts.Registry)
	if err != nil {
		return nil, err
	}

	s := &Server{
		pipeline:  opts.Pipeline,
		history:   opts.History,
		publisher: opts.Publisher,
		pdf:       opts.PDF,
		tokens:    opts.Tokens,
		logger:    opts.Logger,
		maxBody:   opts.MaxBodyBytes,
		metrics:   m,
		registry:  opts.Registry,
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe(), s.limitBody())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "status": "healthy"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")
	if s.tokens != nil {
		v1.Use(s.requireToken())
	}
	tools := v1.Group("/tools")
	tools.POST("/normalize-roadmap", s.handleNormalize)
	tools.POST("/estimate-cost", s.handleEstimateCost)
	tools.POST("/project-revenue", s.handleProjectRevenue)
	tools.POST("/calculate-price", s.handleCalculatePrice)
	tools.POST("/check-consistency", s.handleCheckConsistency)

	v1.POST("/proposals", s.handleCreateProposal)
	v1.GET("/proposals/stream", s.handleStreamProposal)
	v1.GET("/proposals", s.handleListProposals)
	v1.GET("/proposals/:id", s.handleGetProposal)
	v1.GET("/proposals/:id/report.md", s.handleReportMarkdown)
	v1.GET("/proposals/:id/report.html", s.handleReportHTML)
	v1.GET("/proposals/:id/report.pdf", s.handleReportPDF)
	return r
}

// observe records request metrics and writes one log line per request.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		s.metrics.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		s.metrics.latency.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", elapsed),
		)
	}
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := auth.BearerToken(c.GetHeader("Authorization"))
		if raw == "" && websocket.IsWebSocketUpgrade(c.Request) {
			raw = auth.ProtocolToken(strings.Join(c.Request.Header.Values("Sec-WebSocket-Protocol"), ","))
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("unauthorized", "missing bearer token"))
			return
		}
		claims, err := s.tokens.Verify(raw)
		if err != nil {
			s.logger.Warn("rejected token", "path", c.Request.URL.Path, "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("unauthorized", "invalid or expired token"))
			return
		}
		c.Set("subject", claims.Subject)
		c.Next()
	}
}

func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody)
		}
		c.Next()
	}
}

func (s *Server) handleNormalize(c *gin.Context) {
	var in proposal.RoadmapInput
	if !s.bind(c, &in) {
		return
	}
	out, err := proposal.Normalize(s.pipeline.Config(), in)
	s.respond(c, out, err)
}

func (s *Server) handleEstimateCost(c *gin.Context) {
	var in proposal.CostInput
	if !s.bind(c, &in) {
		return
	}
	out, err := proposal.EstimateCost(s.pipeline.Config(), in)
	s.respond(c, out, err)
}

func (s *Server) handleProjectRevenue(c *gin.Context) {
	var in proposal.RevenueInput
	if !s.bind(c, &in) {
		return
	}
	out, err := proposal.ProjectRevenue(s.pipeline.Config(), in)
	s.respond(c, out, err)
}

func (s *Server) handleCalculatePrice(c *gin.Context) {
	var in proposal.PriceInput
	if !s.bind(c, &in) {
		return
	}
	out, err := proposal.CalculatePrice(s.pipeline.Config(), in)
	s.respond(c, out, err)
}

func (s *Server) handleCheckConsistency(c *gin.Context) {
	var in proposal.ConsistencyInput
	if !s.bind(c, &in) {
		return
	}
	out, err := proposal.CheckConsistency(s.pipeline.Config(), in)
	s.respond(c, out, err)
}

func (s *Server) handleCreateProposal(c *gin.Context) {
	var req proposal.ProposalRequest
	if !s.bind(c, &req) {
		return
	}
	if req.ProposalID == "" {
		req.ProposalID = proposal.NewProposalID()
	}
	ctx := c.Request.Context()
	result, err := s.pipeline.Run(ctx, req)
	if err != nil {
		s.metrics.proposals.WithLabelValues("failed").Inc()
		s.writeError(c, err)
		return
	}
	env := s.record(ctx, result)
	c.JSON(http.StatusCreated, env)
}

// record builds the envelope, then stores and announces it. Storage and
// publish failures are logged; the caller still gets the proposal.
func (s *Server) record(ctx context.Context, result proposal.PipelineResult) proposal.ResponseEnvelope {
	env := proposal.BuildResponse(result)
	s.metrics.proposals.WithLabelValues(strings.ToLower(string(env.ReportMode))).Inc()

	if s.history != nil {
		if err := s.history.Save(ctx, env); err != nil {
			s.logger.Warn("save proposal failed", "proposal_id", env.ProposalID, "err", err)
		}
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		s.logger.Warn("publish proposal event failed", "proposal_id", env.ProposalID, "err", err)
	}
	return env
}

func (s *Server) handleListProposals(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(c, proposal.NewInvalidInput("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}
	items, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if items == nil {
		items = []store.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"proposals": items})
}

func (s *Server) handleGetProposal(c *gin.Context) {
	env, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, env)
}

func (s *Server) handleReportMarkdown(c *gin.Context) {
	env, ok := s.lookup(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(env.ReportMarkdown))
}

func (s *Server) handleReportHTML(c *gin.Context) {
	env, ok := s.lookup(c)
	if !ok {
		return
	}
	page, err := render.HTML(env)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

func (s *Server) handleReportPDF(c *gin.Context) {
	if s.pdf == nil {
		c.JSON(http.StatusNotImplemented, errorBody("pdf_unavailable", "pdf rendering is not configured"))
		return
	}
	env, ok := s.lookup(c)
	if !ok {
		return
	}
	pdf, err := s.pdf.Render(c.Request.Context(), env)
	if err != nil {
		s.writeError(c, proposal.NewUpstreamFailure("render pdf", err))
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+env.ProposalID+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *Server) lookup(c *gin.Context) (proposal.ResponseEnvelope, bool) {
	if !s.requireHistory(c) {
		return proposal.ResponseEnvelope{}, false
	}
	env, err := s.history.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody("not_found", "proposal not found"))
		return env, false
	}
	if err != nil {
		s.writeError(c, err)
		return env, false
	}
	return env, true
}

func (s *Server) requireHistory(c *gin.Context) bool {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("history_disabled", "proposal history is not configured"))
		return false
	}
	return true
}

func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody("body_too_large", "request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes"))
			return false
		}
		s.writeError(c, &proposal.Error{Kind: proposal.KindInvalidInput, Field: "body", Message: "invalid JSON", Err: err})
		return false
	}
	return true
}

func (s *Server) respond(c *gin.Context, out any, err error) {
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := proposal.StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "err", err)
	}
	body := errorBody(errorCode(err), err.Error())
	var se *proposal.StageError
	if errors.As(err, &se) {
		body["error"].(gin.H)["stage"] = se.Stage
	}
	c.JSON(status, body)
}

func errorCode(err error) string {
	if kind := proposal.KindOf(err); kind != "" {
		return string(kind)
	}
	return "internal"
}

func errorBody(code, message string) gin.H {
	return gin.H{
		"ok": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
