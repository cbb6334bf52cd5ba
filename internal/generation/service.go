// Package generation orchestrates one code generation request end to end:
// validation, provider resolution, rate limiting, optional text extraction
// from an upload, the provider call, code extraction and usage recording.
package generation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/codeblock"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/document"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/provider"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/usage"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

// uploadPrompt wraps text extracted from an upload around the user's prompt.
const uploadPrompt = "I've extracted the following text from %s:\n\n%s\n\nBased on this, %s"

// Providers resolves a provider tag to its adapter.
type Providers interface {
	Lookup(p models.Provider) (provider.Adapter, error)
}

// Admitter is the rate limit guard.
type Admitter interface {
	Admit(ctx context.Context, principal models.Principal, clientIP string) error
}

// TextExtractor pulls plain text out of an upload.
type TextExtractor interface {
	Extract(ctx context.Context, u document.Upload) (string, error)
}

// Call is one generation request and the caller it belongs to.
type Call struct {
	Principal models.Principal
	ClientIP  string
	Request   models.GenerationRequest
}

// UploadResult is the outcome of GenerateFromUpload.
type UploadResult struct {
	ExtractedText string                  `json:"extractedText"`
	Result        models.GenerationResult `json:"result"`
}

// Service runs generation requests.
type Service struct {
	providers Providers
	limiter   Admitter
	recorder  *usage.Recorder
	documents TextExtractor
	timeout   time.Duration
	now       func() time.Time
}

// NewService creates a Service. timeout bounds each provider call; a nil
// limiter admits everything.
func NewService(providers Providers, limiter Admitter, recorder *usage.Recorder, documents TextExtractor, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Service{
		providers: providers,
		limiter:   limiter,
		recorder:  recorder,
		documents: documents,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Generate runs call.Request against its provider and returns the extracted
// code. A provider failure is returned as the adapter's own error value.
func (s *Service) Generate(ctx context.Context, call Call) (models.GenerationResult, error) {
	adapter, err := s.admit(ctx, call)
	if err != nil {
		return models.GenerationResult{}, err
	}
	return s.dispatch(ctx, call.Principal, adapter, call.Request)
}

// GenerateFromUpload extracts text from u, splices it into the prompt and
// generates from the result. The extracted text is returned alongside the
// generation result.
func (s *Service) GenerateFromUpload(ctx context.Context, call Call, u document.Upload) (*UploadResult, error) {
	adapter, err := s.admit(ctx, call)
	if err != nil {
		return nil, err
	}

	if s.documents == nil {
		return nil, &document.ProcessingError{Filename: u.Filename, MIMEType: u.MIMEType, Err: fmt.Errorf("document processing is not configured")}
	}
	text, err := s.documents.Extract(ctx, u)
	if err != nil {
		return nil, err
	}

	req := call.Request
	req.Prompt = fmt.Sprintf(uploadPrompt, u.SourceLabel(), text, call.Request.Prompt)

	res, err := s.dispatch(ctx, call.Principal, adapter, req)
	if err != nil {
		return nil, err
	}
	return &UploadResult{ExtractedText: text, Result: res}, nil
}

// admit validates the request, resolves its adapter and then consumes one
// rate limit slot. Invalid requests never touch the quota.
func (s *Service) admit(ctx context.Context, call Call) (provider.Adapter, error) {
	if err := call.Request.Validate(); err != nil {
		return nil, err
	}
	adapter, err := s.providers.Lookup(call.Request.Provider)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil {
		if err := s.limiter.Admit(ctx, call.Principal, call.ClientIP); err != nil {
			return nil, err
		}
	}
	return adapter, nil
}

// dispatch calls the provider and records exactly one usage entry for the
// attempt. The call runs detached from ctx cancellation so a client that
// disconnects does not abort it; the service timeout still applies.
func (s *Service) dispatch(ctx context.Context, principal models.Principal, adapter provider.Adapter, req models.GenerationRequest) (models.GenerationResult, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	entry := usage.Entry{
		UserID:     principal.ID,
		Provider:   req.Provider,
		Prompt:     req.Prompt,
		Parameters: req.Params(),
	}

	start := s.now()
	raw, err := adapter.Dispatch(callCtx, req)
	elapsed := s.now().Sub(start)

	if err != nil {
		log.Printf("[generation] %s call for user %s failed after %s: %v", req.Provider, principal.ID, elapsed, err)
		entry.Status = models.UsageError
		s.recorder.Record(ctx, entry)
		return models.GenerationResult{}, err
	}

	entry.Status = models.UsageSuccess
	entry.ResponseTime = elapsed
	s.recorder.Record(ctx, entry)

	return codeblock.Extract(raw), nil
}
