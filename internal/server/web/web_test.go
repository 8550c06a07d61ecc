package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bricks-cloud/dkpii/internal/pii"
	"github.com/bricks-cloud/dkpii/internal/pii/danish"
	"github.com/bricks-cloud/dkpii/internal/pii/recognizer"
	"github.com/bricks-cloud/dkpii/internal/pii/registry"
	"github.com/bricks-cloud/dkpii/internal/policy"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string]*pii.Result
	err     error
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]*pii.Result{}}
}

func (m *memCache) Get(key string) (*pii.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	return m.entries[key], nil
}

func (m *memCache) Set(key string, result *pii.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = result
	return nil
}

type remoteDetector struct {
	entities []*pii.Entity
}

func (d *remoteDetector) Detect(input []string) (*pii.Result, error) {
	r := &pii.Result{}
	for _, in := range input {
		r.Detections = append(r.Detections, &pii.Detection{Input: in, Entities: d.entities})
	}

	return r, nil
}

type failingDetector struct{}

func (failingDetector) Detect(input []string) (*pii.Result, error) {
	return nil, errors.New("unavailable")
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	rs, err := danish.Defaults(danish.Options{})
	require.Nil(t, err)

	reg := registry.New()
	for _, r := range rs {
		reg.Add(r)
	}

	return reg
}

func newTestServer(t *testing.T, cache AnalysisCache, remote ...pii.Detector) http.Handler {
	t.Helper()

	return newTestServerFor(t, newTestRegistry(t), cache, remote...)
}

func newTestServerFor(t *testing.T, reg *registry.Registry, cache AnalysisCache, remote ...pii.Detector) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := NewServer(Config{Language: danish.Language, Mode: "test"}, zap.NewNop(), reg, cache, remote...)
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.Nil(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	return w
}

func TestHealth(t *testing.T) {
	w := do(t, newTestServer(t, nil), http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-CORRELATION-ID"))
}

func TestRecognizers(t *testing.T) {
	h := newTestServer(t, nil)

	w := do(t, h, http.MethodGet, "/api/recognizers?language=da", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := []*RecognizerResponse{}
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 3)
	assert.Equal(t, "DaAddressRecognizer", resp[0].Name)
	assert.Equal(t, danish.CprEntity, resp[1].Entity)
	assert.Equal(t, "CPR (Medium)", resp[1].Patterns[0].Name)
	assert.Equal(t, danish.CprPatterns()[0].Regex(), resp[1].Patterns[0].Regex)
	assert.Equal(t, 0.5, resp[1].Patterns[0].Score)
	assert.Contains(t, resp[1].Context, "cpr")

	w = do(t, h, http.MethodGet, "/api/recognizers?language=da&entity=DK_PHONE", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp = []*RecognizerResponse{}
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, danish.PhoneEntity, resp[0].Entity)

	w = do(t, h, http.MethodGet, "/api/recognizers?language=da&entity=DK_IBAN", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	errResp := &ErrorResponse{}
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), errResp))
	assert.Equal(t, "/errors/recognizer-not-found", errResp.Type)

	w = do(t, h, http.MethodGet, "/api/recognizers?language=sv", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	errResp = &ErrorResponse{}
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), errResp))
	assert.Equal(t, "/errors/language-not-found", errResp.Type)
}

func TestAnalyze(t *testing.T) {
	t.Run("detects entities", func(t *testing.T) {
		h := newTestServer(t, nil)

		w := do(t, h, http.MethodPost, "/api/analyze", map[string]any{
			"text":  "CPR-nummer: 010190-1234",
			"texts": []string{"ring 22334455", "intet"},
		})
		require.Equal(t, http.StatusOK, w.Code)

		resp := &AnalyzeResponse{}
		require.Nil(t, json.Unmarshal(w.Body.Bytes(), resp))
		assert.Equal(t, "da", resp.Language)
		require.Len(t, resp.Detections, 3)

		require.Len(t, resp.Detections[0].Entities, 1)
		cpr := resp.Detections[0].Entities[0]
		assert.Equal(t, danish.CprEntity, cpr.Type)
		assert.Equal(t, "010190-1234", cpr.Text)
		assert.Equal(t, 12, cpr.BeginOffset)
		assert.InDelta(t, 0.85, cpr.Score, 1e-9)

		require.Len(t, resp.Detections[1].Entities, 1)
		assert.Equal(t, danish.PhoneEntity, resp.Detections[1].Entities[0].Type)
		assert.Empty(t, resp.Detections[2].Entities)
	})

	t.Run("entity filter and threshold", func(t *testing.T) {
		h := newTestServer(t, nil, &remoteDetector{entities: []*pii.Entity{
			{BeginOffset: 0, EndOffset: 3, Type: "NAME", Score: 0.99},
		}})

		w := do(t, h, http.MethodPost, "/api/analyze", map[string]any{
			"text":     "Jens 010190-1234 22334455",
			"entities": []string{danish.PhoneEntity},
		})
		require.Equal(t, http.StatusOK, w.Code)

		resp := &AnalyzeResponse{}
		require.Nil(t, json.Unmarshal(w.Body.Bytes(), resp))
		require.Len(t, resp.Detections[0].Entities, 1)
		assert.Equal(t, danish.PhoneEntity, resp.Detections[0].Entities[0].Type)

		w = do(t, h, http.MethodPost, "/api/analyze", map[string]any{
			"text":            "010190-1234",
			"score_threshold": 0.6,
		})
		require.Equal(t, http.StatusOK, w.Code)

		resp = &AnalyzeResponse{}
		require.Nil(t, json.Unmarshal(w.Body.Bytes(), resp))
		require.Len(t, resp.Detections[0].Entities, 1)
		assert.Equal(t, "NAME", resp.Detections[0].Entities[0].Type)
	})

	t.Run("cache", func(t *testing.T) {
		cache := newMemCache()
		h := newTestServer(t, cache)

		body := map[string]any{"text": "tlf 22334455"}

		w := do(t, h, http.MethodPost, "/api/analyze", body)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, cache.entries, 1)

		w = do(t, h, http.MethodPost, "/api/analyze", body)
		require.Equal(t, http.StatusOK, w.Code)

		resp := &AnalyzeResponse{}
		require.Nil(t, json.Unmarshal(w.Body.Bytes(), resp))
		assert.True(t, resp.Cached)
		require.Len(t, resp.Detections[0].Entities, 1)
	})

	t.Run("cache misses after the recognizers change", func(t *testing.T) {
		cache := newMemCache()
		reg := newTestRegistry(t)
		h := newTestServerFor(t, reg, cache)

		body := map[string]any{"text": "tlf 22334455"}

		w := do(t, h, http.MethodPost, "/api/analyze", body)
		require.Equal(t, http.StatusOK, w.Code)

		mobile, err := recognizer.New("DaMobileRecognizer",
			recognizer.WithEntity(danish.PhoneEntity),
			recognizer.WithLanguage(danish.Language),
			recognizer.WithPatterns(recognizer.MustPattern("mobile", `\b9\d{7}\b`, 0.6)),
		)
		require.Nil(t, err)
		reg.Add(mobile)

		w = do(t, h, http.MethodPost, "/api/analyze", body)
		require.Equal(t, http.StatusOK, w.Code)

		resp := &AnalyzeResponse{}
		require.Nil(t, json.Unmarshal(w.Body.Bytes(), resp))
		assert.False(t, resp.Cached)
		assert.Empty(t, resp.Detections[0].Entities)
		assert.Len(t, cache.entries, 2)
	})

	t.Run("cache errors fall through to scanning", func(t *testing.T) {
		cache := newMemCache()
		cache.err = errors.New("down")
		h := newTestServer(t, cache)

		w := do(t, h, http.MethodPost, "/api/analyze", map[string]any{"text": "tlf 22334455"})
		require.Equal(t, http.StatusOK, w.Code)

		resp := &AnalyzeResponse{}
		require.Nil(t, json.Unmarshal(w.Body.Bytes(), resp))
		assert.False(t, resp.Cached)
		assert.Len(t, resp.Detections[0].Entities, 1)
	})

	t.Run("failing remote detector is skipped", func(t *testing.T) {
		h := newTestServer(t, nil, failingDetector{})

		w := do(t, h, http.MethodPost, "/api/analyze", map[string]any{"text": "tlf 22334455"})
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("bad requests", func(t *testing.T) {
		h := newTestServer(t, nil)

		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/analyze", "{").Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/analyze", map[string]any{}).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/analyze", map[string]any{"text": "x", "score_threshold": 2}).Code)
		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/analyze", map[string]any{"text": "x", "language": "sv"}).Code)
	})
}

func TestAnalysisKey(t *testing.T) {
	k := analysisKey(1, "da", []string{"B", "A"}, 0.5, []string{"x"})

	assert.Equal(t, k, analysisKey(1, "da", []string{"A", "B"}, 0.5, []string{"x"}))
	assert.NotEqual(t, k, analysisKey(1, "da", []string{"A"}, 0.5, []string{"B", "x"}))
	assert.NotEqual(t, k, analysisKey(1, "da", []string{"A", "B"}, 0.6, []string{"x"}))
	assert.NotEqual(t, k, analysisKey(1, "en", []string{"A", "B"}, 0.5, []string{"x"}))
	assert.NotEqual(t, k, analysisKey(2, "da", []string{"A", "B"}, 0.5, []string{"x"}))
}

func TestInspect(t *testing.T) {
	h := newTestServer(t, nil)

	t.Run("redact", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/inspect", &policy.Request{
			Contents: []string{"ring 22334455"},
			Policy:   &policy.Policy{Rules: map[string]policy.Action{danish.PhoneEntity: policy.AllowButRedact}},
		})
		require.Equal(t, http.StatusOK, w.Code)

		resp := &policy.Response{}
		require.Nil(t, json.Unmarshal(w.Body.Bytes(), resp))
		assert.Equal(t, policy.AllowButRedact, resp.Action)
		assert.Equal(t, []string{"ring <DK_PHONE>"}, resp.Contents)
	})

	t.Run("block", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/inspect", &policy.Request{
			Contents: []string{"cpr 010190-1234"},
			Policy:   &policy.Policy{Rules: map[string]policy.Action{danish.CprEntity: policy.Block}},
		})
		require.Equal(t, http.StatusOK, w.Code)

		resp := &policy.Response{}
		require.Nil(t, json.Unmarshal(w.Body.Bytes(), resp))
		assert.Equal(t, policy.Block, resp.Action)
		assert.True(t, resp.BlockedReasons[danish.CprEntity])
	})

	t.Run("json body paths", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/inspect", `{
			"contents": ["hej"],
			"body": {"messages": [{"role": "user", "content": "ring 22334455"}], "input": "ingenting"},
			"paths": ["messages.#.content", "input"],
			"policy": {"rules": {"DK_PHONE": "allow_but_redact"}}
		}`)
		require.Equal(t, http.StatusOK, w.Code)

		resp := &policy.Response{}
		require.Nil(t, json.Unmarshal(w.Body.Bytes(), resp))
		assert.Equal(t, []string{"hej", "ring <DK_PHONE>", "ingenting"}, resp.Contents)
	})

	t.Run("invalid policies", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/inspect", `{"contents": ["x"]}`).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/inspect", `{"contents": ["x"], "policy": {"rules": {"DK_CPR": "nope"}}}`).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/inspect", `nope`).Code)
	})
}

func TestInspectOpenAI(t *testing.T) {
	h := newTestServer(t, nil)

	t.Run("chat completion redaction", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/inspect/openai", `{
			"policy": {"rules": {"DK_PHONE": "allow_but_redact"}},
			"chat_completion": {
				"model": "gpt-4",
				"messages": [
					{"role": "system", "content": "Du er en hjælpsom assistent."},
					{"role": "user", "content": "Ring til mig på 22334455"}
				]
			}
		}`)
		require.Equal(t, http.StatusOK, w.Code)

		resp := &OpenAIInspectResponse{}
		require.Nil(t, json.Unmarshal(w.Body.Bytes(), resp))
		assert.Equal(t, policy.AllowButRedact, resp.Action)
		require.NotNil(t, resp.ChatCompletion)
		assert.Equal(t, "gpt-4", resp.ChatCompletion.Model)
		assert.Equal(t, "Du er en hjælpsom assistent.", resp.ChatCompletion.Messages[0].Content)
		assert.Equal(t, "Ring til mig på <DK_PHONE>", resp.ChatCompletion.Messages[1].Content)
	})

	t.Run("embedding without entities is allowed", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/inspect/openai", `{
			"policy": {"rules": {"DK_CPR": "block"}},
			"embedding": {"model": "text-embedding-3-small", "input": ["hej", "farvel"]}
		}`)
		require.Equal(t, http.StatusOK, w.Code)

		resp := &OpenAIInspectResponse{}
		require.Nil(t, json.Unmarshal(w.Body.Bytes(), resp))
		assert.Equal(t, policy.Allow, resp.Action)
		require.NotNil(t, resp.Embedding)
		assert.Equal(t, []any{"hej", "farvel"}, resp.Embedding.Input)
	})

	t.Run("block and warn", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/inspect/openai", `{
			"policy": {"rules": {"DK_CPR": "block"}},
			"embedding": {"model": "text-embedding-3-small", "input": "cpr 010190-1234"}
		}`)
		require.Equal(t, http.StatusOK, w.Code)

		resp := &OpenAIInspectResponse{}
		require.Nil(t, json.Unmarshal(w.Body.Bytes(), resp))
		assert.Equal(t, policy.Block, resp.Action)
		assert.Equal(t, []string{danish.CprEntity}, resp.BlockedReasons)
		assert.Nil(t, resp.Embedding)

		w = do(t, h, http.MethodPost, "/inspect/openai", `{
			"policy": {"rules": {"DK_PHONE": "allow_but_warn"}},
			"chat_completion": {"model": "gpt-4", "messages": [{"role": "user", "content": "ring 22334455"}]}
		}`)
		require.Equal(t, http.StatusOK, w.Code)

		resp = &OpenAIInspectResponse{}
		require.Nil(t, json.Unmarshal(w.Body.Bytes(), resp))
		assert.Equal(t, policy.AllowButWarn, resp.Action)
		assert.Equal(t, []string{danish.PhoneEntity}, resp.Warnings)
	})

	t.Run("bad requests", func(t *testing.T) {
		rules := `"policy": {"rules": {"DK_CPR": "block"}}`

		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/inspect/openai", `{`+rules+`}`).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/inspect/openai", `{`+rules+`, "embedding": {"input": "a"}, "chat_completion": {"messages": []}}`).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/inspect/openai", `{`+rules+`, "embedding": {"input": ["a", 1]}}`).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/inspect/openai", `{"embedding": {"input": "a"}}`).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/inspect/openai", `nope`).Code)
	})
}
