// Package api exposes the question answering pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	apperrors "querybot/internal/common/errors"
	"querybot/internal/common/logger"
	"querybot/internal/common/validation"
	"querybot/internal/models"
	"querybot/internal/reports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Answerer is the pipeline surface served over HTTP.
type Answerer interface {
	Ask(ctx context.Context, question, formatInstruction, sessionID string) *models.QueryResult
	GenerateReport(ctx context.Context, description, formatType, sessionID string) *models.QueryResult
	Reports() []models.ReportSummary
	Report(id string) (*models.ReportTemplate, bool)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type AskRequest struct {
	Question          string `json:"question"`
	FormatInstruction string `json:"format_instruction"`
	SessionID         string `json:"session_id"`
}

type ReportRequest struct {
	Description string `json:"description"`
	FormatType  string `json:"format_type"`
	SessionID   string `json:"session_id"`
}

type ReportDetail struct {
	models.ReportSummary
	Query     string   `json:"query"`
	Variables []string `json:"variables"`
}

type ErrorResponse struct {
	Error   string                       `json:"error"`
	Code    string                       `json:"code"`
	Details []validation.ValidationError `json:"details,omitempty"`
}

type Server struct {
	bot     Answerer
	checks  map[string]Pinger
	log     logger.Logger
	timeout time.Duration
}

// NewServer builds a server. checks are pinged by /ready, keyed by service name.
func NewServer(bot Answerer, checks map[string]Pinger, timeout time.Duration, log logger.Logger) *Server {
	return &Server{bot: bot, checks: checks, log: log, timeout: timeout}
}

// Router returns the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.health)
	router.GET("/ready", s.ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	timed := router.Group("/", s.withTimeout())
	timed.POST("/ask", s.ask)
	timed.POST("/reports/generate", s.generateReport)
	timed.GET("/reports", s.listReports)
	timed.GET("/reports/:id", s.getReport)

	return router
}

func (s *Server) withTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

const requestIDHeader = "X-Request-ID"

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		c.Next()
		s.log.Info("HTTP request", map[string]interface{}{
			"requestId":  requestID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
}

// bind validates the raw JSON body against schema before decoding it into dst.
func bind(c *gin.Context, schema interface{}, dst interface{}) bool {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return false
	}

	var generic interface{}
	if err := json.Unmarshal(body, &generic); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "request body must be JSON", Code: "INVALID_REQUEST"})
		return false
	}

	result, err := validation.ValidateDocument(schema, generic)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "VALIDATION_ERROR"})
		return false
	}
	if !result.Valid {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: result.Error(), Code: "INVALID_REQUEST", Details: result.Errors})
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return false
	}
	return true
}

func (s *Server) ask(c *gin.Context) {
	var req AskRequest
	if !bind(c, validation.AskRequestSchema, &req) {
		return
	}
	c.JSON(http.StatusOK, s.bot.Ask(c.Request.Context(), req.Question, req.FormatInstruction, req.SessionID))
}

func (s *Server) generateReport(c *gin.Context) {
	var req ReportRequest
	if !bind(c, validation.ReportRequestSchema, &req) {
		return
	}
	c.JSON(http.StatusOK, s.bot.GenerateReport(c.Request.Context(), req.Description, req.FormatType, req.SessionID))
}

func (s *Server) listReports(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reports": s.bot.Reports()})
}

func (s *Server) getReport(c *gin.Context) {
	id := c.Param("id")
	tpl, ok := s.bot.Report(id)
	if !ok {
		err := apperrors.NewTemplateNotFoundError(id)
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: string(err.Code)})
		return
	}

	variables := reports.Placeholders(tpl.Query)
	if variables == nil {
		variables = []string{}
	}
	c.JSON(http.StatusOK, ReportDetail{
		ReportSummary: tpl.Summary(),
		Query:         tpl.Query,
		Variables:     variables,
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	services := make(map[string]string, len(s.checks))
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			services[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		services[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":   state,
		"services": services,
		"time":     time.Now().Format(time.RFC3339),
	})
}
