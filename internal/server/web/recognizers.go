package web

import (
	"errors"
	"net/http"

	internal_errors "github.com/bricks-cloud/dkpii/internal/errors"
	"github.com/bricks-cloud/dkpii/internal/pii/recognizer"
	"github.com/bricks-cloud/dkpii/internal/telemetry"
	"github.com/gin-gonic/gin"
)

type PatternResponse struct {
	Name  string  `json:"name"`
	Regex string  `json:"regex"`
	Score float64 `json:"score"`
}

type RecognizerResponse struct {
	Name     string             `json:"name"`
	Entity   string             `json:"entity"`
	Language string             `json:"language"`
	Patterns []*PatternResponse `json:"patterns"`
	Context  []string           `json:"context"`
}

func newRecognizerResponse(r recognizer.EntityRecognizer) *RecognizerResponse {
	patterns := []*PatternResponse{}
	for _, p := range r.Patterns() {
		patterns = append(patterns, &PatternResponse{
			Name:  p.Name(),
			Regex: p.Regex(),
			Score: p.Score(),
		})
	}

	return &RecognizerResponse{
		Name:     r.Name(),
		Entity:   r.SupportedEntity(),
		Language: r.SupportedLanguage(),
		Patterns: patterns,
		Context:  r.Context(),
	}
}

func (h *handler) getGetRecognizersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		telemetry.Incr("dkpii.web.recognizers.requests", nil, 1)

		path := "/api/recognizers"
		language := c.Query("language")
		if len(language) == 0 {
			language = h.language
		}

		rs, err := h.reg.ForLanguage(language)
		if err == nil && len(c.Query("entity")) != 0 {
			var r recognizer.EntityRecognizer
			r, err = h.reg.Get(language, c.Query("entity"))
			rs = []recognizer.EntityRecognizer{r}
		}

		if err != nil {
			var nfe *internal_errors.NotFoundError
			if errors.As(err, &nfe) {
				h.writeError(c, http.StatusNotFound, "/errors/"+nfe.Resource()+"-not-found", nfe.Resource()+" not supported", err, path)
				return
			}

			h.writeError(c, http.StatusInternalServerError, "/errors/registry", "recognizer lookup failed", err, path)
			return
		}

		resp := make([]*RecognizerResponse, 0, len(rs))
		for _, r := range rs {
			resp = append(resp, newRecognizerResponse(r))
		}

		c.JSON(http.StatusOK, resp)
	}
}
