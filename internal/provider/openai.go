package provider

import (
	"context"
	"net/http"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

const (
	openAIDefaultModel     = "gpt-4"
	openAIDefaultMaxTokens = 4096
	openAIDefaultTopP      = 1.0
	openAISystemPrompt     = "You are an expert programmer. Provide code solutions with explanations when appropriate."
)

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	TopP        float64         `json:"top_p"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// OpenAI calls the chat completions API.
type OpenAI struct {
	httpTransport
	apiKey string
}

// NewOpenAI creates an OpenAI adapter. An empty baseURL selects the public API.
func NewOpenAI(apiKey, baseURL string, client *http.Client) *OpenAI {
	return &OpenAI{
		httpTransport: newHTTPTransport(models.ProviderOpenAI, baseURL, client),
		apiKey:        apiKey,
	}
}

// Provider implements Adapter.
func (a *OpenAI) Provider() models.Provider {
	return models.ProviderOpenAI
}

// Dispatch implements Adapter.
func (a *OpenAI) Dispatch(ctx context.Context, req models.GenerationRequest) (string, error) {
	params := req.Params()
	payload := openAIRequest{
		Model: stringOr(params.Model, openAIDefaultModel),
		Messages: []openAIMessage{
			{Role: "system", Content: openAISystemPrompt},
			{Role: "user", Content: AugmentPrompt(req)},
		},
		Temperature: floatOr(params.Temperature, DefaultTemperature),
		MaxTokens:   intOr(params.MaxTokens, openAIDefaultMaxTokens),
		TopP:        floatOr(params.TopP, openAIDefaultTopP),
	}

	var resp openAIResponse
	headers := map[string]string{"Authorization": "Bearer " + a.apiKey}
	if err := a.postJSON(ctx, "/v1/chat/completions", headers, payload, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", a.fail(http.StatusOK, "no choices in OpenAI response", nil)
	}
	return resp.Choices[0].Message.Content, nil
}
