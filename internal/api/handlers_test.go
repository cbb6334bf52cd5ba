package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/analytics"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/database"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/document"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/generation"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/middleware"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/provider"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/ratelimit"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/usage"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

const testSecret = "api-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAdapter struct {
	provider models.Provider
	raw      string
	err      error

	mu   sync.Mutex
	last models.GenerationRequest
}

func (a *stubAdapter) Provider() models.Provider { return a.provider }

func (a *stubAdapter) Dispatch(_ context.Context, req models.GenerationRequest) (string, error) {
	a.mu.Lock()
	a.last = req
	a.mu.Unlock()
	return a.raw, a.err
}

type stubOCR struct{ text string }

func (s stubOCR) Recognize(context.Context, []byte) (string, error) { return s.text, nil }

type testServer struct {
	router   *gin.Engine
	store    *database.SQLite
	adapters map[models.Provider]*stubAdapter
}

type serverOptions struct {
	freeLimit     int64
	maxUploadSize int64
	noReports     bool
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	if opts.freeLimit == 0 {
		opts.freeLimit = 10
	}
	if opts.maxUploadSize == 0 {
		opts.maxUploadSize = 10 << 20
	}

	store, err := database.OpenSQLite(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	adapters := map[models.Provider]*stubAdapter{
		models.ProviderGemini: {provider: models.ProviderGemini, raw: "Sure:\n```js\nconsole.log(1)\n```"},
		models.ProviderOpenAI: {provider: models.ProviderOpenAI, raw: "```python\nprint(1)\n```"},
		models.ProviderClaude: {provider: models.ProviderClaude, raw: "```go\nfmt.Println(1)\n```"},
	}
	registry := provider.NewRegistry(adapters[models.ProviderGemini], adapters[models.ProviderOpenAI], adapters[models.ProviderClaude])

	memStore := ratelimit.NewMemoryStore()
	tiers := ratelimit.NewTierLimiter(
		ratelimit.NewLimiter(memStore, ratelimit.PrefixGeneration, true),
		ratelimit.Policy{Name: "free", Limit: opts.freeLimit, Window: time.Hour},
		ratelimit.Policy{Name: "premium", Limit: 100, Window: time.Hour},
	)

	svc := generation.NewService(registry, tiers, usage.NewRecorder(store, time.Second),
		document.NewProcessor(stubOCR{text: "a login form"}), time.Second)

	var reports *analytics.Engine
	if !opts.noReports {
		reports = analytics.NewEngine(store)
	}

	router := NewRouter(NewHandlers(svc, reports, opts.maxUploadSize), RouterConfig{
		JWTSecret:      testSecret,
		AllowedOrigins: []string{"http://localhost:5173"},
		AuthLimiter:    ratelimit.NewLimiter(memStore, ratelimit.PrefixAuth, true),
		AuthPolicy:     ratelimit.Policy{Name: "auth", Limit: 2, Window: 15 * time.Minute},
	})
	return &testServer{router: router, store: store, adapters: adapters}
}

var (
	freeUser  = models.Principal{ID: "u-free", Email: "free@example.com", Role: models.RoleUser, Plan: models.PlanFree}
	premUser  = models.Principal{ID: "u-prem", Email: "prem@example.com", Role: models.RoleUser, Plan: models.PlanPremium}
	adminUser = models.Principal{ID: "u-admin", Email: "admin@example.com", Role: models.RoleAdmin, Plan: models.PlanPremium}
)

func token(t *testing.T, p models.Principal) string {
	t.Helper()
	tok, err := middleware.IssueToken(testSecret, p, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path string, p *models.Principal, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *p))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type uploadFile struct {
	field, name, mime string
	data              []byte
}

func (s *testServer) upload(t *testing.T, path string, p models.Principal, file *uploadFile, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.name))
		h.Set("Content-Type", file.mime)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		if _, err := part.Write(file.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, p))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return out
}

func (s *testServer) records(t *testing.T, userID string) []models.UsageRecord {
	t.Helper()
	recs, err := s.store.RecentUsage(context.Background(), userID, 100)
	if err != nil {
		t.Fatalf("RecentUsage: %v", err)
	}
	return recs
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	w := s.do(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := decode(t, w); body["status"] != "healthy" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestGenerate_Success(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	w := s.do(t, http.MethodPost, "/api/llm/generate", &freeUser, map[string]any{
		"prompt":   "log one",
		"provider": "GEMINI",
		"language": "JavaScript",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	result := decode(t, w)["result"].(map[string]any)
	if result["code"] != "console.log(1)" || result["language"] != "js" || result["explanation"] != "Sure:" {
		t.Errorf("unexpected result: %v", result)
	}
	if got := s.adapters[models.ProviderGemini].last.Language; got != "JavaScript" {
		t.Errorf("expected language hint to reach the adapter, got %q", got)
	}

	recs := s.records(t, freeUser.ID)
	if len(recs) != 1 || recs[0].Status != models.UsageSuccess || recs[0].Prompt != "log one" {
		t.Errorf("expected one success record, got %+v", recs)
	}
}

func TestGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed json", "{not json", http.StatusBadRequest, "invalid_request"},
		{"blank prompt", map[string]any{"prompt": " ", "provider": "GEMINI"}, http.StatusBadRequest, "invalid_request"},
		{"missing provider", map[string]any{"prompt": "x"}, http.StatusBadRequest, "invalid_request"},
		{"unsupported provider", map[string]any{"prompt": "x", "provider": "MISTRAL"}, http.StatusBadRequest, "unsupported_provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, serverOptions{})
			w := s.do(t, http.MethodPost, "/api/llm/generate", &freeUser, tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if got := decode(t, w)["error"]; got != tt.code {
				t.Errorf("expected error code %q, got %v", tt.code, got)
			}
			if recs := s.records(t, freeUser.ID); len(recs) != 0 {
				t.Errorf("expected no usage record, got %d", len(recs))
			}
		})
	}
}

func TestGenerate_ProviderFailure(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	s.adapters[models.ProviderGemini].err = &provider.ProviderCallError{
		Provider: models.ProviderGemini, StatusCode: 500, Message: "internal",
	}

	w := s.do(t, http.MethodPost, "/api/llm/generate", &freeUser, map[string]any{"prompt": "x", "provider": "GEMINI"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	recs := s.records(t, freeUser.ID)
	if len(recs) != 1 || recs[0].Status != models.UsageError || recs[0].ResponseTimeMs != 0 {
		t.Errorf("expected one error record with 0ms, got %+v", recs)
	}
}

func TestGenerate_RateLimited(t *testing.T) {
	s := newTestServer(t, serverOptions{freeLimit: 2})
	body := map[string]any{"prompt": "x", "provider": "GEMINI"}

	for i := 0; i < 2; i++ {
		if w := s.do(t, http.MethodPost, "/api/llm/generate", &freeUser, body); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}
	w := s.do(t, http.MethodPost, "/api/llm/generate", &freeUser, body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	msg, _ := decode(t, w)["message"].(string)
	if !strings.Contains(msg, "Free tier is limited to 2 generations per hour") || !strings.Contains(msg, "upgrading to Premium") {
		t.Errorf("unexpected message: %q", msg)
	}
	if recs := s.records(t, freeUser.ID); len(recs) != 2 {
		t.Errorf("expected 2 usage records, got %d", len(recs))
	}

	// Another user has their own allowance.
	other := models.Principal{ID: "u-other", Plan: models.PlanFree, Role: models.RoleUser}
	if w := s.do(t, http.MethodPost, "/api/llm/generate", &other, body); w.Code != http.StatusOK {
		t.Errorf("expected another user to be admitted, got %d", w.Code)
	}
}

func TestGenerate_RequiresAuth(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	w := s.do(t, http.MethodPost, "/api/llm/generate", nil, map[string]any{"prompt": "x", "provider": "GEMINI"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestPremiumRoutes(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	body := map[string]any{"prompt": "x", "provider": "GEMINI"}

	if w := s.do(t, http.MethodPost, "/api/llm/generate/openai", &freeUser, body); w.Code != http.StatusForbidden {
		t.Errorf("free user on premium route: expected 403, got %d", w.Code)
	}

	w := s.do(t, http.MethodPost, "/api/llm/generate/openai", &premUser, body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if lang := decode(t, w)["result"].(map[string]any)["language"]; lang != "python" {
		t.Errorf("expected the OpenAI adapter to answer, got language %v", lang)
	}

	w = s.do(t, http.MethodPost, "/api/llm/generate/claude", &premUser, body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	seen := map[models.Provider]int{}
	for _, rec := range s.records(t, premUser.ID) {
		seen[rec.Provider]++
	}
	if len(seen) != 2 || seen[models.ProviderOpenAI] != 1 || seen[models.ProviderClaude] != 1 {
		t.Errorf("expected records pinned to the route providers, got %v", seen)
	}
}

func TestUploadImage(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	w := s.upload(t, "/api/llm/upload-image", freeUser,
		&uploadFile{field: "image", name: "form.png", mime: "image/png", data: []byte{0x89, 'P', 'N', 'G'}},
		map[string]string{"prompt": "build it in React", "parameters": `{"temperature":0.2}`})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["extractedText"] != "a login form" {
		t.Errorf("expected extracted text, got %v", body["extractedText"])
	}

	last := s.adapters[models.ProviderGemini].last
	want := "I've extracted the following text from an image:\n\na login form\n\nBased on this, build it in React"
	if last.Prompt != want {
		t.Errorf("expected prompt %q, got %q", want, last.Prompt)
	}
	if last.Parameters == nil || last.Parameters.Temperature == nil || *last.Parameters.Temperature != 0.2 {
		t.Errorf("expected parameters from the form, got %+v", last.Parameters)
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		file   *uploadFile
		fields map[string]string
		max    int64
		status int
	}{
		{"missing file", "/api/llm/upload-image", nil, map[string]string{"prompt": "x"}, 0, http.StatusBadRequest},
		{"wrong field", "/api/llm/process-document", &uploadFile{"image", "a.pdf", document.MIMEPDF, []byte("x")}, map[string]string{"prompt": "x"}, 0, http.StatusBadRequest},
		{"unsupported type", "/api/llm/process-document", &uploadFile{"document", "a.txt", "text/plain", []byte("x")}, map[string]string{"prompt": "x"}, 0, http.StatusUnsupportedMediaType},
		{"too large", "/api/llm/upload-image", &uploadFile{"image", "a.png", "image/png", bytes.Repeat([]byte{1}, 64)}, map[string]string{"prompt": "x"}, 16, http.StatusRequestEntityTooLarge},
		{"bad parameters", "/api/llm/upload-image", &uploadFile{"image", "a.png", "image/png", []byte{1}}, map[string]string{"prompt": "x", "parameters": "{"}, 0, http.StatusBadRequest},
		{"unreadable pdf", "/api/llm/process-document", &uploadFile{"document", "a.pdf", document.MIMEPDF, []byte("not a pdf")}, map[string]string{"prompt": "x"}, 0, http.StatusUnprocessableEntity},
		{"unsupported provider", "/api/llm/upload-image", &uploadFile{"image", "a.png", "image/png", []byte{1}}, map[string]string{"prompt": "x", "provider": "MISTRAL"}, 0, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, serverOptions{maxUploadSize: tt.max})
			w := s.upload(t, tt.path, freeUser, tt.file, tt.fields)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if recs := s.records(t, freeUser.ID); len(recs) != 0 {
				t.Errorf("expected no usage record, got %d", len(recs))
			}
		})
	}
}

func TestUserUsage(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	body := map[string]any{"prompt": "x", "provider": "GEMINI"}
	for i := 0; i < 3; i++ {
		s.do(t, http.MethodPost, "/api/llm/generate", &freeUser, body)
	}

	w := s.do(t, http.MethodGet, "/api/users/usage", &freeUser, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	report := decode(t, w)
	if report["totalUsage"] != float64(3) {
		t.Errorf("expected totalUsage 3, got %v", report["totalUsage"])
	}
	today := time.Now().UTC().Format("2006-01-02")
	if daily := report["dailyUsage"].(map[string]any); daily[today] != float64(3) {
		t.Errorf("expected 3 calls today, got %v", daily)
	}

	w = s.do(t, http.MethodGet, "/api/users/usage/history?limit=2", &freeUser, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode(t, w)["count"]; got != float64(2) {
		t.Errorf("expected 2 history records, got %v", got)
	}
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	s.do(t, http.MethodPost, "/api/llm/generate", &freeUser, map[string]any{"prompt": "x", "provider": "GEMINI"})

	if w := s.do(t, http.MethodGet, "/api/admin/llm-statistics", &freeUser, nil); w.Code != http.StatusForbidden {
		t.Errorf("non-admin: expected 403, got %d", w.Code)
	}

	w := s.do(t, http.MethodGet, "/api/admin/llm-statistics", &adminUser, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	providers := decode(t, w)["providers"].([]any)
	if len(providers) != 1 {
		t.Fatalf("expected 1 provider, got %v", providers)
	}
	gemini := providers[0].(map[string]any)
	if gemini["provider"] != "GEMINI" || gemini["totalCalls"] != float64(1) || gemini["successRate"] != float64(100) {
		t.Errorf("unexpected stats: %v", gemini)
	}

	w = s.do(t, http.MethodGet, "/api/admin/users/"+freeUser.ID+"/usage", &adminUser, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode(t, w)["totalUsage"]; got != float64(1) {
		t.Errorf("expected totalUsage 1, got %v", got)
	}
}

func TestReportsUnavailable(t *testing.T) {
	s := newTestServer(t, serverOptions{noReports: true})
	if w := s.do(t, http.MethodGet, "/api/users/usage", &freeUser, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestAuthRoutesRateLimited(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	for i := 0; i < 2; i++ {
		if w := s.do(t, http.MethodPost, "/api/auth/login", nil, nil); w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d should not be limited", i+1)
		}
	}
	if w := s.do(t, http.MethodPost, "/api/auth/login", nil, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	// Generation counters are independent of the auth counters.
	if w := s.do(t, http.MethodPost, "/api/llm/generate", &freeUser, map[string]any{"prompt": "x", "provider": "GEMINI"}); w.Code != http.StatusOK {
		t.Errorf("expected generation to be unaffected, got %d", w.Code)
	}
}

func TestRateLimitMessage(t *testing.T) {
	msg := rateLimitMessage(ratelimit.Policy{Name: "premium", Limit: 100, Window: time.Hour})
	if msg != "Rate limit exceeded. Premium tier is limited to 100 generations per hour." {
		t.Errorf("unexpected message: %q", msg)
	}
	if got := windowName(90 * time.Minute); got != "1h30m0s" {
		t.Errorf("unexpected window name: %q", got)
	}
}
