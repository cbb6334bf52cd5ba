// Package analytics implements usage reports over the usage log.
//
// Reports cover a single user (total calls, daily calls over the last 30
// days, calls per provider) and the whole service (per-provider totals,
// error calls, success rate and average response time), plus insights that
// flag providers with unhealthy error rates or slow responses.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

// DailyWindow is how far back the per-day breakdown of a user report reaches.
const DailyWindow = 30 * 24 * time.Hour

// Thresholds for provider insights.
const (
	MinCallsForInsight    = 10
	ErrorRateWarning      = 10.0 // percent
	ErrorRateCritical     = 50.0 // percent
	SlowResponseThreshold = 30_000.0
)

// Source is the read side of the usage log.
type Source interface {
	// ProviderStats aggregates rows per provider; an empty userID means all users.
	ProviderStats(ctx context.Context, userID string) ([]models.ProviderStat, error)
	DailyUsage(ctx context.Context, userID string, since time.Time) ([]models.DailyCount, error)
	RecentUsage(ctx context.Context, userID string, limit int) ([]models.UsageRecord, error)
}

// InsightType categorizes the kind of insight generated.
type InsightType string

const (
	InsightErrorRate     InsightType = "error_rate"
	InsightSlowResponses InsightType = "slow_responses"
)

// Severity indicates the urgency of an insight.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Insight represents an alert about one provider.
type Insight struct {
	ID             string          `json:"id"`
	Type           InsightType     `json:"type"`
	Severity       Severity        `json:"severity"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	AffectedEntity models.Provider `json:"affectedEntity"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ProviderCount is the number of calls a user made to one provider.
type ProviderCount struct {
	Provider models.Provider `json:"provider"`
	Count    int64           `json:"count"`
}

// UserUsage is the usage report of one user.
type UserUsage struct {
	TotalUsage    int64            `json:"totalUsage"`
	DailyUsage    map[string]int64 `json:"dailyUsage"` // YYYY-MM-DD -> calls
	ProviderUsage []ProviderCount  `json:"providerUsage"`
}

// ProviderStatistics is the service-wide health of one provider.
type ProviderStatistics struct {
	Provider          models.Provider `json:"provider"`
	TotalCalls        int64           `json:"totalCalls"`
	ErrorCalls        int64           `json:"errorCalls"`
	SuccessRate       float64         `json:"successRate"` // percent
	AvgResponseTimeMs float64         `json:"avgResponseTimeMs"`
}

// LLMStatistics is the service-wide provider report.
type LLMStatistics struct {
	Providers []ProviderStatistics `json:"providers"`
	Insights  []Insight            `json:"insights"`
}

// Engine builds reports from a Source.
type Engine struct {
	source Source
	now    func() time.Time
}

// NewEngine creates a new Engine.
func NewEngine(source Source) *Engine {
	return &Engine{source: source, now: time.Now}
}

// UserUsage builds the usage report of userID.
func (e *Engine) UserUsage(ctx context.Context, userID string) (*UserUsage, error) {
	stats, err := e.source.ProviderStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading provider usage: %w", err)
	}
	days, err := e.source.DailyUsage(ctx, userID, e.now().Add(-DailyWindow))
	if err != nil {
		return nil, fmt.Errorf("loading daily usage: %w", err)
	}

	report := &UserUsage{
		DailyUsage:    make(map[string]int64, len(days)),
		ProviderUsage: make([]ProviderCount, 0, len(stats)),
	}
	for _, s := range stats {
		report.TotalUsage += s.TotalCalls
		report.ProviderUsage = append(report.ProviderUsage, ProviderCount{Provider: s.Provider, Count: s.TotalCalls})
	}
	for _, d := range days {
		report.DailyUsage[d.Date] += d.Count
	}
	return report, nil
}

// LLMStatistics builds the service-wide provider report.
func (e *Engine) LLMStatistics(ctx context.Context) (*LLMStatistics, error) {
	stats, err := e.source.ProviderStats(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("loading provider statistics: %w", err)
	}

	report := &LLMStatistics{
		Providers: make([]ProviderStatistics, 0, len(stats)),
		Insights:  []Insight{},
	}
	for _, s := range stats {
		ps := ProviderStatistics{
			Provider:          s.Provider,
			TotalCalls:        s.TotalCalls,
			ErrorCalls:        s.ErrorCalls,
			SuccessRate:       successRate(s.TotalCalls, s.ErrorCalls),
			AvgResponseTimeMs: math.Round(s.AvgResponseTimeMs*100) / 100,
		}
		report.Providers = append(report.Providers, ps)
		report.Insights = append(report.Insights, e.insightsFor(ps)...)
	}
	return report, nil
}

// History returns up to limit of userID's most recent usage records.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]models.UsageRecord, error) {
	records, err := e.source.RecentUsage(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading usage history: %w", err)
	}
	return records, nil
}

func successRate(total, errors int64) float64 {
	if total == 0 {
		return 0
	}
	rate := float64(total-errors) / float64(total) * 100
	return math.Round(rate*100) / 100
}

func (e *Engine) insightsFor(ps ProviderStatistics) []Insight {
	if ps.TotalCalls < MinCallsForInsight {
		return nil
	}

	var insights []Insight
	now := e.now()

	errorRate := 100 - ps.SuccessRate
	if errorRate >= ErrorRateWarning {
		severity := SeverityWarning
		if errorRate >= ErrorRateCritical {
			severity = SeverityCritical
		}
		insights = append(insights, Insight{
			ID:       fmt.Sprintf("error-rate-%s", ps.Provider),
			Type:     InsightErrorRate,
			Severity: severity,
			Title:    fmt.Sprintf("High error rate for %s", ps.Provider),
			Description: fmt.Sprintf(
				"%d of %d calls to %s failed (%.1f%%).",
				ps.ErrorCalls, ps.TotalCalls, ps.Provider, errorRate,
			),
			AffectedEntity: ps.Provider,
			CreatedAt:      now,
		})
	}

	if ps.AvgResponseTimeMs >= SlowResponseThreshold {
		insights = append(insights, Insight{
			ID:       fmt.Sprintf("slow-%s", ps.Provider),
			Type:     InsightSlowResponses,
			Severity: SeverityInfo,
			Title:    fmt.Sprintf("Slow responses from %s", ps.Provider),
			Description: fmt.Sprintf(
				"Calls to %s average %.1fs, above the %.0fs threshold.",
				ps.Provider, ps.AvgResponseTimeMs/1000, SlowResponseThreshold/1000,
			),
			AffectedEntity: ps.Provider,
			CreatedAt:      now,
		})
	}
	return insights
}
