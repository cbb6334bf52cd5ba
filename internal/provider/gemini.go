package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

const (
	geminiDefaultModel     = "gemini-1.5-flash"
	geminiDefaultTopK      = 40
	geminiDefaultTopP      = 0.95
	geminiDefaultMaxTokens = 8192
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Gemini calls the Google Generative Language generateContent API.
type Gemini struct {
	httpTransport
	apiKey string
}

// NewGemini creates a Gemini adapter. An empty baseURL selects the public API.
func NewGemini(apiKey, baseURL string, client *http.Client) *Gemini {
	return &Gemini{
		httpTransport: newHTTPTransport(models.ProviderGemini, baseURL, client),
		apiKey:        apiKey,
	}
}

// Provider implements Adapter.
func (a *Gemini) Provider() models.Provider {
	return models.ProviderGemini
}

// Dispatch implements Adapter.
func (a *Gemini) Dispatch(ctx context.Context, req models.GenerationRequest) (string, error) {
	params := req.Params()
	model := stringOr(params.Model, geminiDefaultModel)
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: AugmentPrompt(req)}},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     floatOr(params.Temperature, DefaultTemperature),
			TopK:            intOr(params.TopK, geminiDefaultTopK),
			TopP:            floatOr(params.TopP, geminiDefaultTopP),
			MaxOutputTokens: intOr(params.MaxTokens, geminiDefaultMaxTokens),
		},
	}

	var resp geminiResponse
	path := "/v1beta/models/" + url.PathEscape(model) + ":generateContent"
	headers := map[string]string{"X-Goog-Api-Key": a.apiKey}
	if err := a.postJSON(ctx, path, headers, payload, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 {
		return "", a.fail(http.StatusOK, "invalid response from Gemini API", nil)
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return "", a.fail(http.StatusOK, "no text found in Gemini API response", nil)
	}
	return text.String(), nil
}
