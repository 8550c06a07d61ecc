package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	internal_errors "github.com/bricks-cloud/dkpii/internal/errors"
	"github.com/bricks-cloud/dkpii/internal/hasher"
	"github.com/bricks-cloud/dkpii/internal/pii"
	"github.com/bricks-cloud/dkpii/internal/telemetry"
	"github.com/gin-gonic/gin"
)

type AnalyzeRequest struct {
	Text           string   `json:"text"`
	Texts          []string `json:"texts"`
	Language       string   `json:"language"`
	Entities       []string `json:"entities"`
	ScoreThreshold *float64 `json:"score_threshold"`
}

type AnalyzeResponse struct {
	Language   string           `json:"language"`
	Detections []*pii.Detection `json:"detections"`
	Cached     bool             `json:"cached"`
}

func (r *AnalyzeRequest) inputs() []string {
	inputs := []string{}
	if len(r.Text) != 0 {
		inputs = append(inputs, r.Text)
	}

	return append(inputs, r.Texts...)
}

// analysisKey covers every request field that changes the analysis and the
// registry generation the result was computed with.
func analysisKey(generation uint64, language string, entities []string, threshold float64, texts []string) string {
	sorted := append([]string{}, entities...)
	sort.Strings(sorted)

	parts := []string{strconv.FormatUint(generation, 10), language, hasher.FormatFloat(threshold)}
	parts = append(parts, sorted...)
	parts = append(parts, "")
	parts = append(parts, texts...)

	return hasher.Hash(parts...)
}

// filter drops entities of remote detectors that the request excludes.
func filter(result *pii.Result, threshold float64, entities []string) {
	allowed := map[string]bool{}
	for _, e := range entities {
		allowed[e] = true
	}

	for _, d := range result.Detections {
		kept := []*pii.Entity{}
		for _, e := range d.Entities {
			if e.Score < threshold {
				continue
			}

			if len(allowed) != 0 && !allowed[e.Type] {
				continue
			}

			kept = append(kept, e)
		}

		d.Entities = kept
	}
}

func (h *handler) getAnalyzeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		telemetry.Incr("dkpii.web.analyze.requests", nil, 1)

		start := time.Now()
		defer func() {
			telemetry.Timing("dkpii.web.analyze.latency", time.Since(start), nil, 1)
		}()

		path := "/api/analyze"
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			h.writeError(c, http.StatusInternalServerError, "/errors/request-body-read", "request body reader error", err, path)
			return
		}

		req := &AnalyzeRequest{}
		if err := json.Unmarshal(data, req); err != nil {
			h.writeError(c, http.StatusBadRequest, "/errors/json-unmarshal", "json unmarshaller error", err, path)
			return
		}

		inputs := req.inputs()
		if len(inputs) == 0 {
			h.writeError(c, http.StatusBadRequest, "/errors/validation", "request validation failed", internal_errors.NewFieldValidationError("text", "text or texts is required"), path)
			return
		}

		language := req.Language
		if len(language) == 0 {
			language = h.language
		}

		threshold := h.threshold
		if req.ScoreThreshold != nil {
			threshold = *req.ScoreThreshold
		}

		if threshold < 0 || threshold > 1 {
			h.writeError(c, http.StatusBadRequest, "/errors/validation", "request validation failed", internal_errors.NewFieldValidationError("score_threshold", "must be between 0 and 1"), path)
			return
		}

		if _, err := h.reg.ForLanguage(language); err != nil {
			var nfe *internal_errors.NotFoundError
			if errors.As(err, &nfe) {
				h.writeError(c, http.StatusNotFound, "/errors/language-not-found", "language not supported", err, path)
				return
			}

			h.writeError(c, http.StatusInternalServerError, "/errors/registry", "recognizer lookup failed", err, path)
			return
		}

		key := analysisKey(h.reg.Generation(), language, req.Entities, threshold, inputs)
		if h.cache != nil {
			cached, err := h.cache.Get(key)
			if err != nil {
				logError(h.log, "error when reading analysis cache", h.prod, c.GetString(correlationId), err)
			}

			if cached != nil {
				telemetry.Incr("dkpii.cache.analysis.hit", nil, 1)
				c.JSON(http.StatusOK, &AnalyzeResponse{
					Language:   language,
					Detections: cached.Detections,
					Cached:     true,
				})
				return
			}

			telemetry.Incr("dkpii.cache.analysis.miss", nil, 1)
		}

		result, err := h.scanner(language, threshold, req.Entities...).Scan(inputs)
		if err != nil {
			h.writeError(c, http.StatusInternalServerError, "/errors/pii-scan", "pii scanning failed", err, path)
			return
		}

		filter(result, threshold, req.Entities)

		if h.cache != nil {
			if err := h.cache.Set(key, result); err != nil {
				logError(h.log, "error when writing analysis cache", h.prod, c.GetString(correlationId), err)
			}
		}

		c.JSON(http.StatusOK, &AnalyzeResponse{
			Language:   language,
			Detections: result.Detections,
		})
	}
}
