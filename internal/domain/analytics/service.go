package analytics

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/jmcoleman/codescribe-backend/internal/domain/billing"
	"github.com/jmcoleman/codescribe-backend/internal/domain/events"
	"github.com/jmcoleman/codescribe-backend/pkg/logger"
)

var (
	// ErrInvalidMetric rejects unknown metric names before any query.
	ErrInvalidMetric = errors.New("unknown metric")
	// ErrInvalidInterval rejects bucketing intervals outside day/week/month.
	ErrInvalidInterval = errors.New("unknown interval")
	// ErrExportWindowTooLarge rejects exports over the configured span
	// before the discovery pass begins.
	ErrExportWindowTooLarge = errors.New("export window exceeds maximum span")
)

// FunnelQuery selects a funnel window. Internal traffic is excluded from
// external-facing funnels by default.
type FunnelQuery struct {
	Start           time.Time
	End             time.Time
	ExcludeInternal bool
}

// SeriesQuery selects one metric bucketed over a window.
type SeriesQuery struct {
	Metric          string
	Interval        string
	Start           time.Time
	End             time.Time
	ExcludeInternal bool
}

// ComparisonQuery selects one metric compared against the immediately
// preceding window of equal duration.
type ComparisonQuery struct {
	Metric          string
	Start           time.Time
	End             time.Time
	ExcludeInternal bool
}

// Service is the read API over the event log: funnels, time series,
// comparisons and the streaming CSV export. All operations are pure reads
// and safe to run concurrently.
type Service interface {
	ConversionFunnel(ctx context.Context, q FunnelQuery) (*ConversionFunnel, error)
	BusinessFunnel(ctx context.Context, q FunnelQuery) (*BusinessFunnel, error)
	TimeSeries(ctx context.Context, q SeriesQuery) ([]SeriesPoint, error)
	MetricComparison(ctx context.Context, q ComparisonQuery) (*Comparison, error)
	StreamExport(ctx context.Context, filter events.Filter, w io.Writer) error
}

type service struct {
	repo     Repository
	billing  billing.Repository
	exporter *Exporter
	log      *logger.Logger
}

func NewService(repo Repository, billingRepo billing.Repository, exporter *Exporter, log *logger.Logger) Service {
	return &service{
		repo:     repo,
		billing:  billingRepo,
		exporter: exporter,
		log:      log,
	}
}

func (s *service) StreamExport(ctx context.Context, filter events.Filter, w io.Writer) error {
	return s.exporter.Stream(ctx, filter, w)
}
