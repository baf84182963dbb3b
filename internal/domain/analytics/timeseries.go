package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jmcoleman/codescribe-backend/internal/domain/events"
	"github.com/jmcoleman/codescribe-backend/internal/domain/generation"
)

// Metric names of the time-series catalogue.
const (
	MetricSessions      = "sessions"
	MetricSignups       = "signups"
	MetricGenerations   = "generations"
	MetricRevenue       = "revenue"
	MetricAvgLatency    = "avg_latency"
	MetricMedianLatency = "median_latency"
	MetricP95Latency    = "p95_latency"
	MetricCacheHitRate  = "cache_hit_rate"
	MetricThroughput    = "throughput"
)

// Bucketing intervals.
const (
	IntervalDay   = "day"
	IntervalWeek  = "week"
	IntervalMonth = "month"
)

var metricCatalogue = map[string]struct{}{
	MetricSessions:      {},
	MetricSignups:       {},
	MetricGenerations:   {},
	MetricRevenue:       {},
	MetricAvgLatency:    {},
	MetricMedianLatency: {},
	MetricP95Latency:    {},
	MetricCacheHitRate:  {},
	MetricThroughput:    {},
}

var validIntervals = map[string]struct{}{
	IntervalDay:   {},
	IntervalWeek:  {},
	IntervalMonth: {},
}

// Change describes the movement between two comparison windows.
type Change struct {
	Value     float64 `json:"value"`
	Percent   float64 `json:"percent"`
	Direction string  `json:"direction"`
}

// Comparison is one metric over a window next to the immediately
// preceding window of equal duration.
type Comparison struct {
	Metric   string  `json:"metric"`
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	Change   Change  `json:"change"`
}

func (s *service) TimeSeries(ctx context.Context, q SeriesQuery) ([]SeriesPoint, error) {
	if _, ok := metricCatalogue[q.Metric]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMetric, q.Metric)
	}
	interval := q.Interval
	if interval == "" {
		interval = IntervalDay
	}
	if _, ok := validIntervals[interval]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	w := Window{Start: q.Start, End: q.End}

	switch q.Metric {
	case MetricSessions:
		return s.repo.SessionCountSeries(ctx, events.EventSessionStart, interval, w, q.ExcludeInternal)
	case MetricSignups:
		return s.repo.EventCountSeries(ctx, events.EventSignupCompleted, interval, w, q.ExcludeInternal)
	case MetricGenerations:
		return s.repo.EventCountSeries(ctx, events.EventDocGeneration, interval, w, q.ExcludeInternal)
	case MetricRevenue:
		return s.repo.RevenueSeries(ctx, interval, w, q.ExcludeInternal)
	default:
		outcomes, err := s.repo.Outcomes(ctx, w)
		if err != nil {
			return nil, err
		}
		return outcomeSeries(q.Metric, interval, outcomes), nil
	}
}

func (s *service) MetricComparison(ctx context.Context, q ComparisonQuery) (*Comparison, error) {
	if _, ok := metricCatalogue[q.Metric]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMetric, q.Metric)
	}

	current := Window{Start: q.Start, End: q.End}
	duration := q.End.Sub(q.Start)
	previous := Window{Start: q.Start.Add(-duration), End: q.Start}

	currentValue, err := s.metricValue(ctx, q.Metric, current, q.ExcludeInternal)
	if err != nil {
		return nil, err
	}
	previousValue, err := s.metricValue(ctx, q.Metric, previous, q.ExcludeInternal)
	if err != nil {
		return nil, err
	}

	change := Change{Value: round1(currentValue - previousValue)}
	if previousValue != 0 {
		change.Percent = round1((currentValue - previousValue) / previousValue * 100)
	}
	switch {
	case change.Value > 0:
		change.Direction = "up"
	case change.Value < 0:
		change.Direction = "down"
	default:
		change.Direction = "neutral"
	}

	return &Comparison{
		Metric:   q.Metric,
		Current:  round1(currentValue),
		Previous: round1(previousValue),
		Change:   change,
	}, nil
}

// metricValue computes a metric's scalar value over one window.
func (s *service) metricValue(ctx context.Context, metric string, w Window, excludeInternal bool) (float64, error) {
	switch metric {
	case MetricSessions:
		counts, err := s.repo.StageCounts(ctx, []string{events.EventSessionStart}, nil, w, excludeInternal)
		return float64(counts.Sessions), err
	case MetricSignups:
		count, err := s.repo.CountEvents(ctx, events.EventSignupCompleted, w, excludeInternal)
		return float64(count), err
	case MetricGenerations:
		count, err := s.repo.CountEvents(ctx, events.EventDocGeneration, w, excludeInternal)
		return float64(count), err
	case MetricRevenue:
		return s.repo.RevenueTotal(ctx, w, excludeInternal)
	}

	outcomes, err := s.repo.Outcomes(ctx, w)
	if err != nil {
		return 0, err
	}
	return outcomeValue(metric, outcomes, w.Days()), nil
}

// outcomeSeries buckets generation outcomes in process and aggregates the
// latency, cache-hit and throughput metrics per bucket.
func outcomeSeries(metric string, interval string, outcomes []generation.GenerationOutcome) []SeriesPoint {
	buckets := make(map[time.Time][]generation.GenerationOutcome)
	for _, outcome := range outcomes {
		start := bucketStart(outcome.CreatedAt, interval)
		buckets[start] = append(buckets[start], outcome)
	}

	starts := make([]time.Time, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	points := make([]SeriesPoint, 0, len(starts))
	for _, start := range starts {
		days := bucketDays(start, interval)
		points = append(points, SeriesPoint{
			Date:  start.Format("2006-01-02"),
			Value: outcomeValue(metric, buckets[start], days),
		})
	}
	return points
}

func outcomeValue(metric string, outcomes []generation.GenerationOutcome, days float64) float64 {
	switch metric {
	case MetricAvgLatency:
		if len(outcomes) == 0 {
			return 0
		}
		var sum int64
		for _, outcome := range outcomes {
			sum += outcome.LatencyMs
		}
		return round1(float64(sum) / float64(len(outcomes)))
	case MetricMedianLatency:
		return percentile(latencies(outcomes), 50)
	case MetricP95Latency:
		return percentile(latencies(outcomes), 95)
	case MetricCacheHitRate:
		if len(outcomes) == 0 {
			return 0
		}
		var hits int64
		for _, outcome := range outcomes {
			if outcome.CacheHit {
				hits++
			}
		}
		return round1(float64(hits) / float64(len(outcomes)) * 100)
	case MetricThroughput:
		var successes int64
		for _, outcome := range outcomes {
			if outcome.Success {
				successes++
			}
		}
		if days <= 0 {
			days = 1
		}
		return round1(float64(successes) / days)
	}
	return 0
}

func latencies(outcomes []generation.GenerationOutcome) []float64 {
	values := make([]float64, 0, len(outcomes))
	for _, outcome := range outcomes {
		values = append(values, float64(outcome.LatencyMs))
	}
	return values
}

// percentile returns the p-th percentile of values using the nearest-rank
// method. An empty slice yields 0.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// bucketStart truncates t the way Postgres DATE_TRUNC does, so SQL- and
// process-bucketed series line up: weeks start Monday, months on the 1st.
func bucketStart(t time.Time, interval string) time.Time {
	t = t.UTC()
	switch interval {
	case IntervalWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return day.AddDate(0, 0, -(weekday - 1))
	case IntervalMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func bucketDays(start time.Time, interval string) float64 {
	switch interval {
	case IntervalWeek:
		return 7
	case IntervalMonth:
		return float64(start.AddDate(0, 1, 0).Sub(start).Hours() / 24)
	default:
		return 1
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
