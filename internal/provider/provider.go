// Package provider implements the adapters for the upstream LLM APIs.
//
// Each adapter turns a GenerationRequest into a provider-specific HTTP call
// and returns the raw model text of the response. Adapters apply their own
// parameter defaults, never retry, and report every upstream failure as a
// *ProviderCallError. API keys are held in memory only.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/config"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

// Upstream responses above this size are rejected. Completions are text and
// stay far below it.
const defaultMaxResponseBodySize = 10 << 20 // 10 MB

// DefaultTemperature applies to every provider when the caller omits it.
const DefaultTemperature = 0.7

// defaultBaseURLs maps providers to their public API base URLs.
var defaultBaseURLs = map[models.Provider]string{
	models.ProviderOpenAI: "https://api.openai.com",
	models.ProviderClaude: "https://api.anthropic.com",
	models.ProviderGemini: "https://generativelanguage.googleapis.com",
}

// Adapter dispatches a generation request to one upstream provider.
type Adapter interface {
	Provider() models.Provider
	// Dispatch performs a single upstream call and returns the raw model text.
	Dispatch(ctx context.Context, req models.GenerationRequest) (string, error)
}

// UnsupportedProviderError is returned when no adapter is registered for the
// requested provider tag.
type UnsupportedProviderError struct {
	Provider models.Provider
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported LLM provider: %q", string(e.Provider))
}

// ProviderCallError reports a failed upstream call: transport error, timeout,
// non-2xx status, or a body without usable text.
type ProviderCallError struct {
	Provider   models.Provider
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Err        error
}

func (e *ProviderCallError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s call failed", strings.ToLower(string(e.Provider)))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderCallError) Unwrap() error {
	return e.Err
}

// Registry is the dispatch table from provider tag to adapter.
type Registry struct {
	adapters map[models.Provider]Adapter
}

// NewRegistry creates a Registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// NewDefaultRegistry wires the OpenAI, Claude and Gemini adapters from cfg.
func NewDefaultRegistry(cfg *config.Config) *Registry {
	client := &http.Client{}
	return NewRegistry(
		NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, client),
		NewClaude(cfg.ClaudeKey, cfg.ClaudeBaseURL, client),
		NewGemini(cfg.GeminiKey, cfg.GeminiBaseURL, client),
	)
}

// Lookup returns the adapter for p.
func (r *Registry) Lookup(p models.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, &UnsupportedProviderError{Provider: p}
	}
	return a, nil
}

// Dispatch routes req to the adapter selected by its provider tag.
func (r *Registry) Dispatch(ctx context.Context, req models.GenerationRequest) (string, error) {
	a, err := r.Lookup(req.Provider)
	if err != nil {
		return "", err
	}
	return a.Dispatch(ctx, req)
}

// AugmentPrompt appends the language and framework directives, in that order,
// for whichever hints are set.
func AugmentPrompt(req models.GenerationRequest) string {
	prompt := req.Prompt
	if req.Language != "" {
		prompt += fmt.Sprintf("\n\nPlease write the code in %s.", req.Language)
	}
	if req.Framework != "" {
		prompt += fmt.Sprintf("\n\nUse the %s framework.", req.Framework)
	}
	return prompt
}

func floatOr(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}

func intOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}

func stringOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func baseURLOr(p models.Provider, override string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	return defaultBaseURLs[p]
}

// httpTransport carries the shared HTTP plumbing of the adapters.
type httpTransport struct {
	provider            models.Provider
	client              *http.Client
	baseURL             string
	maxResponseBodySize int64
}

func newHTTPTransport(p models.Provider, baseURL string, client *http.Client) httpTransport {
	if client == nil {
		client = &http.Client{}
	}
	return httpTransport{
		provider:            p,
		client:              client,
		baseURL:             baseURLOr(p, baseURL),
		maxResponseBodySize: defaultMaxResponseBodySize,
	}
}

func (t httpTransport) fail(status int, msg string, err error) *ProviderCallError {
	return &ProviderCallError{Provider: t.provider, StatusCode: status, Message: msg, Err: err}
}

// postJSON sends payload to path and decodes a 2xx body into out.
func (t httpTransport) postJSON(ctx context.Context, path string, headers map[string]string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return t.fail(0, "encoding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return t.fail(0, "creating request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return t.fail(0, "", err)
	}
	defer resp.Body.Close()

	// Read limit+1 to distinguish "exactly at limit" from "over limit".
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, t.maxResponseBodySize+1))
	if err != nil {
		return t.fail(resp.StatusCode, "reading response", err)
	}
	if int64(len(respBody)) > t.maxResponseBodySize {
		return t.fail(resp.StatusCode, "upstream response too large", nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return t.fail(resp.StatusCode, upstreamMessage(respBody), nil)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return t.fail(resp.StatusCode, "decoding response", err)
	}
	return nil
}

// upstreamMessage pulls a human readable message out of a provider error
// body. All three providers nest it under "error".
func upstreamMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
