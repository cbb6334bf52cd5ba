// Package models defines the core data structures shared across the code
// generation service.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies a supported upstream LLM API.
type Provider string

const (
	ProviderGemini Provider = "GEMINI"
	ProviderOpenAI Provider = "OPENAI"
	ProviderClaude Provider = "CLAUDE"
)

// Providers lists every provider the service can dispatch to.
var Providers = []Provider{ProviderGemini, ProviderOpenAI, ProviderClaude}

// Plan is the subscription tier of a principal.
type Plan string

const (
	PlanFree    Plan = "FREE"
	PlanPremium Plan = "PREMIUM"
)

// Role is the authorization role of a principal.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Principal is the authenticated caller of a request. It is resolved by the
// auth middleware before any generation logic runs.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Plan  Plan   `json:"plan"`
}

// IsPremium reports whether the principal is on the premium plan.
func (p Principal) IsPremium() bool {
	return p.Plan == PlanPremium
}

// Parameters is the optional sampling parameter bag of a generation request.
// Nil fields were omitted by the caller and receive provider defaults.
type Parameters struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
	TopK        *int     `json:"topK,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// GenerationRequest is a single prompt submitted for code generation.
type GenerationRequest struct {
	Prompt     string      `json:"prompt"`
	Provider   Provider    `json:"provider"`
	Language   string      `json:"language,omitempty"`
	Framework  string      `json:"framework,omitempty"`
	Parameters *Parameters `json:"parameters,omitempty"`
}

// Validate checks the caller-supplied fields. Provider support is checked by
// the provider registry, not here.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return &ValidationError{Field: "prompt", Reason: "is required"}
	}
	if r.Provider == "" {
		return &ValidationError{Field: "provider", Reason: "is required"}
	}
	return nil
}

// Params returns the parameter bag, never nil.
func (r GenerationRequest) Params() Parameters {
	if r.Parameters == nil {
		return Parameters{}
	}
	return *r.Parameters
}

// GenerationResult is the code extracted from a raw model response.
type GenerationResult struct {
	Code        string `json:"code"`
	Language    string `json:"language"`
	Explanation string `json:"explanation"`
}

// UsageStatus is the outcome of one generation attempt.
type UsageStatus string

const (
	UsageSuccess UsageStatus = "success"
	UsageError   UsageStatus = "error"
)

// UsageRecord is an immutable audit entry for one generation attempt that
// reached a provider.
type UsageRecord struct {
	ID             string      `json:"id" db:"id"`
	UserID         string      `json:"userId" db:"user_id"`
	Provider       Provider    `json:"provider" db:"provider"`
	Prompt         string      `json:"prompt" db:"prompt"`
	ResponseTimeMs int64       `json:"responseTimeMs" db:"response_time_ms"`
	Status         UsageStatus `json:"status" db:"status"`
	Parameters     Parameters  `json:"parameters" db:"parameters"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
}

// ProviderStat aggregates usage rows for one provider.
type ProviderStat struct {
	Provider          Provider `json:"provider"`
	TotalCalls        int64    `json:"totalCalls"`
	ErrorCalls        int64    `json:"errorCalls"`
	AvgResponseTimeMs float64  `json:"avgResponseTimeMs"`
}

// DailyCount is the number of usage rows on one UTC calendar day.
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// ValidationError reports a malformed generation request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}
