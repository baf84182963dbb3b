package analytics

import (
	"context"
	"math"

	"github.com/jmcoleman/codescribe-backend/internal/domain/events"
)

// funnelStage declares one ordered conversion stage. A non-nil success
// filter derives the stage from the payload success flag instead of a
// distinct event name.
type funnelStage struct {
	name    string
	events  []string
	success *bool
}

var successTrue = true

// Ordered stage list of the product's conversion funnel. The two
// generation stages share one event name: every doc_generation attempt
// counts as started, only success=true counts as completed.
var conversionStages = []funnelStage{
	{name: "session_start", events: []string{events.EventSessionStart}},
	{name: "input_provided", events: []string{events.EventFileUploaded, events.EventTextInput, events.EventGithubImport}},
	{name: "generation_started", events: []string{events.EventDocGeneration}},
	{name: "generation_completed", events: []string{events.EventDocGeneration}, success: &successTrue},
	{name: "doc_exported", events: []string{events.EventDocExported}},
}

// FunnelStage is one computed stage of a conversion funnel.
type FunnelStage struct {
	Name     string `json:"name"`
	Sessions int64  `json:"sessions"`
	Events   int64  `json:"events"`
}

// ConversionFunnel is the ordered stage list with pairwise conversion
// rates and convenience totals. Computed per query, never persisted.
type ConversionFunnel struct {
	Stages            []FunnelStage      `json:"stages"`
	ConversionRates   map[string]float64 `json:"conversion_rates"`
	OverallConversion float64            `json:"overall_conversion"`
}

// BreakdownComponent is a sub-count of a funnel stage with its own rate.
type BreakdownComponent struct {
	Count int64   `json:"count"`
	Rate  float64 `json:"rate"`
}

// TrialStage is the trial stage with its acquisition-source breakdown.
// Component rates use signups as denominator.
type TrialStage struct {
	Count      int64 `json:"count"`
	Breakdown  struct {
		Campaign   BreakdownComponent `json:"campaign"`
		Individual BreakdownComponent `json:"individual"`
	} `json:"breakdown"`
}

// PaidStage is the paid stage with its path-to-conversion breakdown.
// ViaTrial rates against trials, Direct against signups; the components
// deliberately use different denominators and need not sum to the
// aggregate rate.
type PaidStage struct {
	Count     int64 `json:"count"`
	Breakdown struct {
		ViaTrial BreakdownComponent `json:"via_trial"`
		Direct   BreakdownComponent `json:"direct"`
	} `json:"breakdown"`
}

// BusinessFunnel is the visitors-to-paid funnel with stage breakdowns.
type BusinessFunnel struct {
	Visitors        int64              `json:"visitors"`
	EngagedSessions int64              `json:"engaged_sessions"`
	Signups         int64              `json:"signups"`
	Trials          TrialStage         `json:"trials"`
	Paid            PaidStage          `json:"paid"`
	Rates           map[string]float64 `json:"rates"`
}

// conversionRate returns cur/prev as a percentage rounded to one decimal.
// A zero denominator yields 0, never a division error.
func conversionRate(cur, prev int64) float64 {
	if prev <= 0 {
		return 0
	}
	return math.Round(float64(cur)/float64(prev)*1000) / 10
}

func (s *service) ConversionFunnel(ctx context.Context, q FunnelQuery) (*ConversionFunnel, error) {
	w := Window{Start: q.Start, End: q.End}

	stages := make([]FunnelStage, 0, len(conversionStages))
	for _, stage := range conversionStages {
		counts, err := s.repo.StageCounts(ctx, stage.events, stage.success, w, q.ExcludeInternal)
		if err != nil {
			return nil, err
		}
		stages = append(stages, FunnelStage{
			Name:     stage.name,
			Sessions: counts.Sessions,
			Events:   counts.Events,
		})
	}

	rates := make(map[string]float64, len(stages))
	for i := 1; i < len(stages); i++ {
		key := stages[i-1].Name + "_to_" + stages[i].Name
		rates[key] = conversionRate(stages[i].Sessions, stages[i-1].Sessions)
	}

	// Convenience total for the core product question: of the sessions
	// that started, how many got a successful generation.
	for _, stage := range stages {
		if stage.Name == "generation_completed" {
			rates[stages[0].Name+"_to_"+stage.Name] = conversionRate(stage.Sessions, stages[0].Sessions)
		}
	}

	return &ConversionFunnel{
		Stages:            stages,
		ConversionRates:   rates,
		OverallConversion: conversionRate(stages[len(stages)-1].Sessions, stages[0].Sessions),
	}, nil
}

func (s *service) BusinessFunnel(ctx context.Context, q FunnelQuery) (*BusinessFunnel, error) {
	w := Window{Start: q.Start, End: q.End}

	visitors, err := s.repo.StageCounts(ctx, []string{events.EventSessionStart}, nil, w, q.ExcludeInternal)
	if err != nil {
		return nil, err
	}

	engaged, err := s.repo.StageCounts(ctx, []string{events.EventDocGeneration}, &successTrue, w, q.ExcludeInternal)
	if err != nil {
		return nil, err
	}

	signups, err := s.repo.CountEvents(ctx, events.EventSignupCompleted, w, q.ExcludeInternal)
	if err != nil {
		return nil, err
	}

	trialCounts, err := s.billing.TrialCountsBySource(ctx, q.Start, q.End)
	if err != nil {
		return nil, err
	}

	paidCounts, err := s.billing.PaidCountsByPath(ctx, q.Start, q.End)
	if err != nil {
		return nil, err
	}

	funnel := &BusinessFunnel{
		Visitors:        visitors.Sessions,
		EngagedSessions: engaged.Sessions,
		Signups:         signups,
	}

	funnel.Trials.Count = trialCounts.Total()
	funnel.Trials.Breakdown.Campaign = BreakdownComponent{
		Count: trialCounts.Campaign,
		Rate:  conversionRate(trialCounts.Campaign, signups),
	}
	funnel.Trials.Breakdown.Individual = BreakdownComponent{
		Count: trialCounts.Individual,
		Rate:  conversionRate(trialCounts.Individual, signups),
	}

	funnel.Paid.Count = paidCounts.Total()
	funnel.Paid.Breakdown.ViaTrial = BreakdownComponent{
		Count: paidCounts.ViaTrial,
		Rate:  conversionRate(paidCounts.ViaTrial, trialCounts.Total()),
	}
	funnel.Paid.Breakdown.Direct = BreakdownComponent{
		Count: paidCounts.Direct,
		Rate:  conversionRate(paidCounts.Direct, signups),
	}

	funnel.Rates = map[string]float64{
		"visitor_to_engaged": conversionRate(engaged.Sessions, visitors.Sessions),
		"engaged_to_signup":  conversionRate(signups, engaged.Sessions),
		"signup_to_trial":    conversionRate(funnel.Trials.Count, signups),
		"trial_to_paid":      conversionRate(funnel.Paid.Count, funnel.Trials.Count),
		"signup_to_paid":     conversionRate(funnel.Paid.Count, signups),
		"visitor_to_paid":    conversionRate(funnel.Paid.Count, visitors.Sessions),
	}

	return funnel, nil
}
