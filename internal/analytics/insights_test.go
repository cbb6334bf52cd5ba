package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

type fakeSource struct {
	stats   map[string][]models.ProviderStat
	days    []models.DailyCount
	recent  []models.UsageRecord
	err     error
	since   time.Time
	limit   int
	statsOf []string
}

func (f *fakeSource) ProviderStats(_ context.Context, userID string) ([]models.ProviderStat, error) {
	f.statsOf = append(f.statsOf, userID)
	return f.stats[userID], f.err
}

func (f *fakeSource) DailyUsage(_ context.Context, _ string, since time.Time) ([]models.DailyCount, error) {
	f.since = since
	return f.days, f.err
}

func (f *fakeSource) RecentUsage(_ context.Context, _ string, limit int) ([]models.UsageRecord, error) {
	f.limit = limit
	return f.recent, f.err
}

func TestInsightTypeConstants(t *testing.T) {
	types := []InsightType{InsightErrorRate, InsightSlowResponses}

	seen := make(map[InsightType]bool)
	for _, it := range types {
		if seen[it] {
			t.Errorf("duplicate insight type: %s", it)
		}
		seen[it] = true
		if it == "" {
			t.Error("insight type should not be empty")
		}
	}
}

func TestSeverityConstants(t *testing.T) {
	tests := []struct {
		severity Severity
		expected string
	}{
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityCritical, "critical"},
	}

	for _, tt := range tests {
		if string(tt.severity) != tt.expected {
			t.Errorf("expected severity %q, got %q", tt.expected, tt.severity)
		}
	}
}

func TestUserUsage(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		stats: map[string][]models.ProviderStat{
			"u1": {
				{Provider: models.ProviderClaude, TotalCalls: 2},
				{Provider: models.ProviderGemini, TotalCalls: 5, ErrorCalls: 1},
			},
		},
		days: []models.DailyCount{{Date: "2024-06-01", Count: 3}, {Date: "2024-06-29", Count: 4}},
	}
	e := NewEngine(src)
	e.now = func() time.Time { return now }

	report, err := e.UserUsage(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalUsage != 7 {
		t.Errorf("expected total 7, got %d", report.TotalUsage)
	}
	if len(report.ProviderUsage) != 2 || report.ProviderUsage[1] != (ProviderCount{Provider: models.ProviderGemini, Count: 5}) {
		t.Errorf("unexpected provider usage: %+v", report.ProviderUsage)
	}
	if report.DailyUsage["2024-06-01"] != 3 || report.DailyUsage["2024-06-29"] != 4 {
		t.Errorf("unexpected daily usage: %v", report.DailyUsage)
	}
	if want := now.Add(-30 * 24 * time.Hour); !src.since.Equal(want) {
		t.Errorf("expected daily window from %v, got %v", want, src.since)
	}
}

func TestUserUsage_Empty(t *testing.T) {
	report, err := NewEngine(&fakeSource{}).UserUsage(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalUsage != 0 || report.DailyUsage == nil || report.ProviderUsage == nil {
		t.Errorf("expected zero report with non-nil collections, got %+v", report)
	}
}

func TestUserUsage_SourceError(t *testing.T) {
	cause := errors.New("db down")
	_, err := NewEngine(&fakeSource{err: cause}).UserUsage(context.Background(), "u1")
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
}

func TestLLMStatistics(t *testing.T) {
	src := &fakeSource{stats: map[string][]models.ProviderStat{
		"": {
			{Provider: models.ProviderClaude, TotalCalls: 3, ErrorCalls: 1, AvgResponseTimeMs: 1000.456},
			{Provider: models.ProviderGemini, TotalCalls: 20, ErrorCalls: 12, AvgResponseTimeMs: 900},
			{Provider: models.ProviderOpenAI, TotalCalls: 40, ErrorCalls: 1, AvgResponseTimeMs: 45_000},
		},
	}}

	report, err := NewEngine(src).LLMStatistics(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(src.statsOf) != 1 || src.statsOf[0] != "" {
		t.Errorf("expected service-wide stats query, got %v", src.statsOf)
	}

	claude := report.Providers[0]
	if claude.SuccessRate != 66.67 {
		t.Errorf("expected 66.67%% success rate, got %v", claude.SuccessRate)
	}
	if claude.AvgResponseTimeMs != 1000.46 {
		t.Errorf("expected avg rounded to 1000.46, got %v", claude.AvgResponseTimeMs)
	}
	if report.Providers[2].SuccessRate != 97.5 {
		t.Errorf("expected 97.5%% success rate, got %v", report.Providers[2].SuccessRate)
	}

	// Claude has too few calls for insights; Gemini fails 60% of the time;
	// OpenAI is slow.
	if len(report.Insights) != 2 {
		t.Fatalf("expected 2 insights, got %+v", report.Insights)
	}
	if in := report.Insights[0]; in.Type != InsightErrorRate || in.Severity != SeverityCritical || in.AffectedEntity != models.ProviderGemini {
		t.Errorf("unexpected error-rate insight: %+v", in)
	}
	if in := report.Insights[1]; in.Type != InsightSlowResponses || in.AffectedEntity != models.ProviderOpenAI {
		t.Errorf("unexpected slow insight: %+v", in)
	}
}

func TestLLMStatistics_Empty(t *testing.T) {
	report, err := NewEngine(&fakeSource{}).LLMStatistics(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Providers == nil || report.Insights == nil {
		t.Errorf("expected non-nil empty slices, got %+v", report)
	}
}

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		total, errors int64
		want          float64
	}{
		{0, 0, 0},
		{10, 0, 100},
		{10, 10, 0},
		{4, 1, 75},
	}
	for _, tt := range tests {
		if got := successRate(tt.total, tt.errors); got != tt.want {
			t.Errorf("successRate(%d, %d) = %v, want %v", tt.total, tt.errors, got, tt.want)
		}
	}
}

func TestHistory(t *testing.T) {
	src := &fakeSource{recent: []models.UsageRecord{{ID: "r1"}}}
	recs, err := NewEngine(src).History(context.Background(), "u1", 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 || src.limit != 25 {
		t.Errorf("unexpected history call: %d records, limit %d", len(recs), src.limit)
	}
}
