package dto

// FunnelQuery represents the filter parameters for funnel reads.
// Internal traffic is excluded from funnels unless explicitly requested.
type FunnelQuery struct {
	StartDate       string `form:"start_date"`
	EndDate         string `form:"end_date"`
	ExcludeInternal *bool  `form:"exclude_internal"`
}

// TimeSeriesQuery represents the parameters for a bucketed metric series
type TimeSeriesQuery struct {
	Metric          string `form:"metric" binding:"required"`
	Interval        string `form:"interval,default=day"`
	StartDate       string `form:"start_date"`
	EndDate         string `form:"end_date"`
	ExcludeInternal *bool  `form:"exclude_internal"`
}

// ComparisonQuery represents the parameters for a period-over-period read
type ComparisonQuery struct {
	Metric          string `form:"metric" binding:"required"`
	StartDate       string `form:"start_date"`
	EndDate         string `form:"end_date"`
	ExcludeInternal *bool  `form:"exclude_internal"`
}

// ExportQuery represents the filter parameters for the CSV export
type ExportQuery struct {
	StartDate       string `form:"start_date"`
	EndDate         string `form:"end_date"`
	Category        string `form:"category"`
	EventNames      string `form:"event_names"`
	ExcludeInternal *bool  `form:"exclude_internal"`
}
