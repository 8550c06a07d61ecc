package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	internal_errors "github.com/bricks-cloud/dkpii/internal/errors"
	"github.com/bricks-cloud/dkpii/internal/policy"
	"github.com/bricks-cloud/dkpii/internal/telemetry"
	"github.com/gin-gonic/gin"

	goopenai "github.com/sashabaranov/go-openai"
)

type validationError interface {
	Error() string
	Validation()
}

// OpenAIInspectRequest carries exactly one OpenAI request to filter.
type OpenAIInspectRequest struct {
	Policy         *policy.Policy                  `json:"policy"`
	ChatCompletion *goopenai.ChatCompletionRequest `json:"chat_completion,omitempty"`
	Embedding      *goopenai.EmbeddingRequest      `json:"embedding,omitempty"`
}

// OpenAIInspectResponse holds the filtered request unless it was blocked or
// warned about.
type OpenAIInspectResponse struct {
	Action         policy.Action                   `json:"action"`
	ChatCompletion *goopenai.ChatCompletionRequest `json:"chat_completion,omitempty"`
	Embedding      *goopenai.EmbeddingRequest      `json:"embedding,omitempty"`
	Warnings       []string                        `json:"warnings,omitempty"`
	BlockedReasons []string                        `json:"blockedReasons,omitempty"`
}

func (r *OpenAIInspectRequest) target() (any, error) {
	if (r.ChatCompletion == nil) == (r.Embedding == nil) {
		return nil, internal_errors.NewFieldValidationError("request", "exactly one of chat_completion or embedding is required")
	}

	if r.ChatCompletion != nil {
		return r.ChatCompletion, nil
	}

	return r.Embedding, nil
}

func (h *handler) validatePolicy(c *gin.Context, p *policy.Policy, path string) bool {
	err := p.Validate()
	if err == nil {
		return true
	}

	var ve validationError
	if errors.As(err, &ve) {
		h.writeError(c, http.StatusBadRequest, "/errors/validation", "policy validation failed", err, path)
		return false
	}

	h.writeError(c, http.StatusInternalServerError, "/errors/policy", "policy validation errored out", err, path)
	return false
}

// getInspectHandler serves the contract gateways use to apply a policy to
// request contents before forwarding them.
func (h *handler) getInspectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		telemetry.Incr("dkpii.web.inspect.requests", nil, 1)

		start := time.Now()
		defer func() {
			telemetry.Timing("dkpii.web.inspect.latency", time.Since(start), nil, 1)
		}()

		path := "/inspect"
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			h.writeError(c, http.StatusInternalServerError, "/errors/request-body-read", "request body reader error", err, path)
			return
		}

		req := &policy.Request{}
		if err := json.Unmarshal(data, req); err != nil {
			h.writeError(c, http.StatusBadRequest, "/errors/json-unmarshal", "json unmarshaller error", err, path)
			return
		}

		if !h.validatePolicy(c, req.Policy, path) {
			return
		}

		resp, err := req.Policy.Inspect(h.scanner(h.language, h.threshold), req.AllContents())
		if err != nil {
			h.writeError(c, http.StatusInternalServerError, "/errors/pii-scan", "pii scanning failed", err, path)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// getInspectOpenAIHandler filters chat completion and embedding requests in
// place and returns them.
func (h *handler) getInspectOpenAIHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		telemetry.Incr("dkpii.web.inspect.openai.requests", nil, 1)

		start := time.Now()
		defer func() {
			telemetry.Timing("dkpii.web.inspect.openai.latency", time.Since(start), nil, 1)
		}()

		path := "/inspect/openai"
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			h.writeError(c, http.StatusInternalServerError, "/errors/request-body-read", "request body reader error", err, path)
			return
		}

		req := &OpenAIInspectRequest{}
		if err := json.Unmarshal(data, req); err != nil {
			h.writeError(c, http.StatusBadRequest, "/errors/json-unmarshal", "json unmarshaller error", err, path)
			return
		}

		target, err := req.target()
		if err != nil {
			h.writeError(c, http.StatusBadRequest, "/errors/validation", "request validation failed", err, path)
			return
		}

		if !h.validatePolicy(c, req.Policy, path) {
			return
		}

		before, err := json.Marshal(target)
		if err != nil {
			h.writeError(c, http.StatusInternalServerError, "/errors/json-marshal", "json marshaller error", err, path)
			return
		}

		err = req.Policy.Filter(h.scanner(h.language, h.threshold), target)

		var be *internal_errors.BlockedError
		if errors.As(err, &be) {
			c.JSON(http.StatusOK, &OpenAIInspectResponse{Action: policy.Block, BlockedReasons: be.Reasons()})
			return
		}

		var we *internal_errors.WarningError
		if errors.As(err, &we) {
			c.JSON(http.StatusOK, &OpenAIInspectResponse{Action: policy.AllowButWarn, Warnings: we.Warnings()})
			return
		}

		if err != nil {
			var ve validationError
			if errors.As(err, &ve) {
				h.writeError(c, http.StatusBadRequest, "/errors/validation", "request validation failed", err, path)
				return
			}

			h.writeError(c, http.StatusInternalServerError, "/errors/pii-scan", "pii scanning failed", err, path)
			return
		}

		after, err := json.Marshal(target)
		if err != nil {
			h.writeError(c, http.StatusInternalServerError, "/errors/json-marshal", "json marshaller error", err, path)
			return
		}

		resp := &OpenAIInspectResponse{
			Action:         policy.Allow,
			ChatCompletion: req.ChatCompletion,
			Embedding:      req.Embedding,
		}

		if !bytes.Equal(before, after) {
			resp.Action = policy.AllowButRedact
		}

		c.JSON(http.StatusOK, resp)
	}
}
