package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bricks-cloud/dkpii/internal/pii"
	"github.com/bricks-cloud/dkpii/internal/pii/recognizer"
	"github.com/bricks-cloud/dkpii/internal/pii/regex"
	"github.com/bricks-cloud/dkpii/internal/telemetry"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RecognizerRegistry interface {
	ForLanguage(language string, entities ...string) ([]recognizer.EntityRecognizer, error)
	Get(language, entity string) (recognizer.EntityRecognizer, error)
	Languages() []string
	Generation() uint64
}

type AnalysisCache interface {
	Get(key string) (*pii.Result, error)
	Set(key string, result *pii.Result) error
}

type ErrorResponse struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

type Config struct {
	Port           int
	Mode           string
	Language       string
	ScoreThreshold float64
	OtelEnabled    bool
	OtelService    string
}

type Server struct {
	server *http.Server
	log    *zap.Logger
	port   int
}

type handler struct {
	reg       RecognizerRegistry
	detector  *regex.Detector
	remote    []pii.Detector
	cache     AnalysisCache
	language  string
	threshold float64
	log       *zap.Logger
	prod      bool
}

// NewServer wires the pii api. Remote detectors only run for the default
// language. cache may be nil.
func NewServer(cfg Config, log *zap.Logger, reg RecognizerRegistry, cache AnalysisCache, remote ...pii.Detector) *Server {
	prod := cfg.Mode == "production"

	h := &handler{
		reg:       reg,
		detector:  regex.NewDetector(reg, cfg.Language, cfg.ScoreThreshold, log),
		remote:    remote,
		cache:     cache,
		language:  cfg.Language,
		threshold: cfg.ScoreThreshold,
		log:       log,
		prod:      prod,
	}

	router := gin.New()
	if cfg.OtelEnabled {
		router.Use(getOtelMiddleware(cfg.OtelService))
	}
	router.Use(getLoggerMiddleware(log, "pii", prod))

	router.GET("/api/health", getGetHealthCheckHandler())
	router.GET("/api/recognizers", h.getGetRecognizersHandler())
	router.POST("/api/analyze", h.getAnalyzeHandler())
	router.POST("/inspect", h.getInspectHandler())
	router.POST("/inspect/openai", h.getInspectOpenAIHandler())

	return &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: router,
		},
		log:  log,
		port: cfg.Port,
	}
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Run() {
	go func() {
		s.log.Sugar().Infof("pii server listening at %d", s.port)
		s.log.Sugar().Infof("PORT %d | GET  | /api/health is set up for health checking the pii server", s.port)
		s.log.Sugar().Infof("PORT %d | GET  | /api/recognizers is set up for listing recognizers using query params called language and entity", s.port)
		s.log.Sugar().Infof("PORT %d | POST | /api/analyze is set up for detecting pii entities in texts", s.port)
		s.log.Sugar().Infof("PORT %d | POST | /inspect is set up for applying a policy to contents", s.port)
		s.log.Sugar().Infof("PORT %d | POST | /inspect/openai is set up for applying a policy to openai chat completion and embedding requests", s.port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Sugar().Fatalf("error pii server listening: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Sugar().Infof("error shutting down pii server: %v", err)
		return err
	}

	return nil
}

func (h *handler) scanner(language string, threshold float64, entities ...string) *pii.Scanner {
	ds := []pii.Detector{h.detector.WithLanguage(language).WithFilter(threshold, entities...)}
	if language == h.language {
		ds = append(ds, h.remote...)
	}

	return pii.NewScanner(h.log, ds...)
}

func (h *handler) writeError(c *gin.Context, status int, errType, title string, err error, path string) {
	telemetry.Incr("dkpii.web.error", []string{"path:" + path, fmt.Sprintf("status:%d", status)}, 1)

	if status >= http.StatusInternalServerError {
		logError(h.log, title, h.prod, c.GetString(correlationId), err)
	}

	c.JSON(status, &ErrorResponse{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   err.Error(),
		Instance: path,
	})
}

func getGetHealthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(http.StatusOK)
	}
}
