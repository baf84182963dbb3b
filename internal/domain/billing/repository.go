package billing

import (
	"context"
	"time"

	"github.com/jmcoleman/codescribe-backend/internal/infrastructure/persistence/postgres/connection"
)

// TrialCounts splits trials started in a window by acquisition source.
type TrialCounts struct {
	Campaign   int64
	Individual int64
}

// Total returns the combined trial count.
func (c TrialCounts) Total() int64 {
	return c.Campaign + c.Individual
}

// PaidCounts splits paid upgrades in a window by path to conversion.
type PaidCounts struct {
	ViaTrial int64
	Direct   int64
}

// Total returns the combined paid count.
func (c PaidCounts) Total() int64 {
	return c.ViaTrial + c.Direct
}

// Repository is the read-only view of billing records used by the business
// funnel. Trial and subscription lifecycle is owned by the billing service.
type Repository interface {
	TrialCountsBySource(ctx context.Context, start, end time.Time) (TrialCounts, error)
	PaidCountsByPath(ctx context.Context, start, end time.Time) (PaidCounts, error)
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

func (r *repository) TrialCountsBySource(ctx context.Context, start, end time.Time) (TrialCounts, error) {
	var results []struct {
		Source string
		Count  int64
	}

	err := r.db.WithContext(ctx).Model(&Trial{}).
		Select("source, count(*) as count").
		Where("started_at BETWEEN ? AND ?", start, end).
		Group("source").
		Find(&results).Error
	if err != nil {
		return TrialCounts{}, err
	}

	var counts TrialCounts
	for _, result := range results {
		switch result.Source {
		case TrialSourceCampaign:
			counts.Campaign = result.Count
		default:
			// Anything not campaign-attributed counts as individually sourced.
			counts.Individual += result.Count
		}
	}
	return counts, nil
}

func (r *repository) PaidCountsByPath(ctx context.Context, start, end time.Time) (PaidCounts, error) {
	var results []struct {
		ViaTrial bool
		Count    int64
	}

	err := r.db.WithContext(ctx).Model(&SubscriptionChange{}).
		Select("via_trial, count(*) as count").
		Where("change_type = ? AND created_at BETWEEN ? AND ?", ChangeUpgraded, start, end).
		Group("via_trial").
		Find(&results).Error
	if err != nil {
		return PaidCounts{}, err
	}

	var counts PaidCounts
	for _, result := range results {
		if result.ViaTrial {
			counts.ViaTrial = result.Count
		} else {
			counts.Direct = result.Count
		}
	}
	return counts, nil
}
