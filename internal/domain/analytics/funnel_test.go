package analytics

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcoleman/codescribe-backend/internal/domain/billing"
	"github.com/jmcoleman/codescribe-backend/internal/domain/events"
	"github.com/jmcoleman/codescribe-backend/internal/domain/generation"
	"github.com/jmcoleman/codescribe-backend/pkg/logger"
)

// stageKey identifies one StageCounts invocation by its event names and
// success filter.
func stageKey(eventNames []string, success *bool) string {
	names := make([]string, len(eventNames))
	copy(names, eventNames)
	sort.Strings(names)
	key := ""
	for _, name := range names {
		key += name + ","
	}
	if success != nil {
		if *success {
			key += "success=true"
		} else {
			key += "success=false"
		}
	}
	return key
}

type mockAnalyticsRepo struct {
	stages      map[string]StageCounts
	eventCounts map[string]int64
	series      map[string][]SeriesPoint
	revenue     []SeriesPoint
	revTotal    float64
	outcomes    []generation.GenerationOutcome
}

func (m *mockAnalyticsRepo) StageCounts(ctx context.Context, eventNames []string, success *bool, w Window, excludeInternal bool) (StageCounts, error) {
	return m.stages[stageKey(eventNames, success)], nil
}

func (m *mockAnalyticsRepo) CountEvents(ctx context.Context, eventName string, w Window, excludeInternal bool) (int64, error) {
	return m.eventCounts[eventName], nil
}

func (m *mockAnalyticsRepo) EventCountSeries(ctx context.Context, eventName string, interval string, w Window, excludeInternal bool) ([]SeriesPoint, error) {
	return m.series[eventName], nil
}

func (m *mockAnalyticsRepo) SessionCountSeries(ctx context.Context, eventName string, interval string, w Window, excludeInternal bool) ([]SeriesPoint, error) {
	return m.series[eventName], nil
}

func (m *mockAnalyticsRepo) RevenueSeries(ctx context.Context, interval string, w Window, excludeInternal bool) ([]SeriesPoint, error) {
	return m.revenue, nil
}

func (m *mockAnalyticsRepo) RevenueTotal(ctx context.Context, w Window, excludeInternal bool) (float64, error) {
	return m.revTotal, nil
}

func (m *mockAnalyticsRepo) Outcomes(ctx context.Context, w Window) ([]generation.GenerationOutcome, error) {
	return m.outcomes, nil
}

type mockBillingRepo struct {
	trials billing.TrialCounts
	paid   billing.PaidCounts
}

func (m *mockBillingRepo) TrialCountsBySource(ctx context.Context, start, end time.Time) (billing.TrialCounts, error) {
	return m.trials, nil
}

func (m *mockBillingRepo) PaidCountsByPath(ctx context.Context, start, end time.Time) (billing.PaidCounts, error) {
	return m.paid, nil
}

func newAnalyticsService(repo Repository, billingRepo billing.Repository) Service {
	return NewService(repo, billingRepo, NewExporter(nil, ExportConfig{}, logger.NewNop()), logger.NewNop())
}

func testWindow() FunnelQuery {
	return FunnelQuery{
		Start:           time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:             time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
		ExcludeInternal: true,
	}
}

func TestConversionRate(t *testing.T) {
	tests := []struct {
		name     string
		cur      int64
		prev     int64
		expected float64
	}{
		{name: "half convert", cur: 40, prev: 80, expected: 50.0},
		{name: "all convert", cur: 10, prev: 10, expected: 100.0},
		{name: "zero denominator yields zero", cur: 5, prev: 0, expected: 0},
		{name: "negative denominator yields zero", cur: 5, prev: -1, expected: 0},
		{name: "zero numerator", cur: 0, prev: 50, expected: 0},
		{name: "rounds to one decimal", cur: 1, prev: 3, expected: 33.3},
		{name: "rounds up", cur: 2, prev: 3, expected: 66.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, conversionRate(tt.cur, tt.prev))
		})
	}
}

func TestConversionFunnel(t *testing.T) {
	repo := &mockAnalyticsRepo{
		stages: map[string]StageCounts{
			stageKey([]string{events.EventSessionStart}, nil):                                               {Sessions: 80, Events: 95},
			stageKey([]string{events.EventFileUploaded, events.EventTextInput, events.EventGithubImport}, nil): {Sessions: 60, Events: 120},
			stageKey([]string{events.EventDocGeneration}, nil):                                              {Sessions: 50, Events: 70},
			stageKey([]string{events.EventDocGeneration}, &successTrue):                                     {Sessions: 40, Events: 55},
			stageKey([]string{events.EventDocExported}, nil):                                                {Sessions: 20, Events: 25},
		},
	}
	svc := newAnalyticsService(repo, &mockBillingRepo{})

	funnel, err := svc.ConversionFunnel(context.Background(), testWindow())
	require.NoError(t, err)

	require.Len(t, funnel.Stages, 5)
	assert.Equal(t, "session_start", funnel.Stages[0].Name)
	assert.Equal(t, int64(80), funnel.Stages[0].Sessions)
	assert.Equal(t, "generation_completed", funnel.Stages[3].Name)
	assert.Equal(t, int64(40), funnel.Stages[3].Sessions)

	assert.Equal(t, 75.0, funnel.ConversionRates["session_start_to_input_provided"])
	assert.Equal(t, 80.0, funnel.ConversionRates["generation_started_to_generation_completed"])
	assert.Equal(t, 50.0, funnel.ConversionRates["session_start_to_generation_completed"])
	assert.Equal(t, 25.0, funnel.OverallConversion)
}

func TestConversionFunnelEmptyWindow(t *testing.T) {
	svc := newAnalyticsService(&mockAnalyticsRepo{stages: map[string]StageCounts{}}, &mockBillingRepo{})

	funnel, err := svc.ConversionFunnel(context.Background(), testWindow())
	require.NoError(t, err)

	for _, stage := range funnel.Stages {
		assert.Zero(t, stage.Sessions)
	}
	for key, rate := range funnel.ConversionRates {
		assert.Zero(t, rate, "rate %s must be zero on an empty window", key)
	}
	assert.Zero(t, funnel.OverallConversion)
}

func TestBusinessFunnel(t *testing.T) {
	repo := &mockAnalyticsRepo{
		stages: map[string]StageCounts{
			stageKey([]string{events.EventSessionStart}, nil):           {Sessions: 1000},
			stageKey([]string{events.EventDocGeneration}, &successTrue): {Sessions: 400},
		},
		eventCounts: map[string]int64{
			events.EventSignupCompleted: 100,
		},
	}
	billingRepo := &mockBillingRepo{
		trials: billing.TrialCounts{Campaign: 30, Individual: 10},
		paid:   billing.PaidCounts{ViaTrial: 12, Direct: 8},
	}
	svc := newAnalyticsService(repo, billingRepo)

	funnel, err := svc.BusinessFunnel(context.Background(), testWindow())
	require.NoError(t, err)

	assert.Equal(t, int64(1000), funnel.Visitors)
	assert.Equal(t, int64(400), funnel.EngagedSessions)
	assert.Equal(t, int64(100), funnel.Signups)

	assert.Equal(t, int64(40), funnel.Trials.Count)
	assert.Equal(t, int64(30), funnel.Trials.Breakdown.Campaign.Count)
	assert.Equal(t, 30.0, funnel.Trials.Breakdown.Campaign.Rate, "campaign trials over signups")
	assert.Equal(t, 10.0, funnel.Trials.Breakdown.Individual.Rate)

	assert.Equal(t, int64(20), funnel.Paid.Count)
	assert.Equal(t, 30.0, funnel.Paid.Breakdown.ViaTrial.Rate, "via-trial paid over trials")
	assert.Equal(t, 8.0, funnel.Paid.Breakdown.Direct.Rate, "direct paid over signups")

	assert.Equal(t, 40.0, funnel.Rates["visitor_to_engaged"])
	assert.Equal(t, 25.0, funnel.Rates["engaged_to_signup"])
	assert.Equal(t, 40.0, funnel.Rates["signup_to_trial"])
	assert.Equal(t, 50.0, funnel.Rates["trial_to_paid"])
	assert.Equal(t, 20.0, funnel.Rates["signup_to_paid"])
	assert.Equal(t, 2.0, funnel.Rates["visitor_to_paid"])
}

func TestBusinessFunnelZeroTraffic(t *testing.T) {
	svc := newAnalyticsService(
		&mockAnalyticsRepo{stages: map[string]StageCounts{}, eventCounts: map[string]int64{}},
		&mockBillingRepo{},
	)

	funnel, err := svc.BusinessFunnel(context.Background(), testWindow())
	require.NoError(t, err)

	for key, rate := range funnel.Rates {
		assert.Zero(t, rate, "rate %s must guard its zero denominator", key)
	}
}
