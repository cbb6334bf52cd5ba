package provider

import (
	"context"
	"net/http"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

const (
	claudeDefaultModel     = "claude-3-opus-20240229"
	claudeDefaultMaxTokens = 4096
	claudeAPIVersion       = "2023-06-01"
)

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []claudeMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	TopP        *float64        `json:"top_p,omitempty"`
	TopK        *int            `json:"top_k,omitempty"`
	Stream      bool            `json:"stream"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Claude calls the Anthropic messages API.
type Claude struct {
	httpTransport
	apiKey string
}

// NewClaude creates a Claude adapter. An empty baseURL selects the public API.
func NewClaude(apiKey, baseURL string, client *http.Client) *Claude {
	return &Claude{
		httpTransport: newHTTPTransport(models.ProviderClaude, baseURL, client),
		apiKey:        apiKey,
	}
}

// Provider implements Adapter.
func (a *Claude) Provider() models.Provider {
	return models.ProviderClaude
}

// Dispatch implements Adapter.
func (a *Claude) Dispatch(ctx context.Context, req models.GenerationRequest) (string, error) {
	params := req.Params()
	payload := claudeRequest{
		Model:       stringOr(params.Model, claudeDefaultModel),
		Messages:    []claudeMessage{{Role: "user", Content: AugmentPrompt(req)}},
		Temperature: floatOr(params.Temperature, DefaultTemperature),
		MaxTokens:   intOr(params.MaxTokens, claudeDefaultMaxTokens),
		// Anthropic has no documented defaults for these; forward only when set.
		TopP:   params.TopP,
		TopK:   params.TopK,
		Stream: false,
	}

	var resp claudeResponse
	headers := map[string]string{
		"X-API-Key":         a.apiKey,
		"anthropic-version": claudeAPIVersion,
	}
	if err := a.postJSON(ctx, "/v1/messages", headers, payload, &resp); err != nil {
		return "", err
	}

	if len(resp.Content) == 0 {
		return "", a.fail(http.StatusOK, "no content in Claude response", nil)
	}
	return resp.Content[0].Text, nil
}
