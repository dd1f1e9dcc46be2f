package types

import "time"

// ImpactQueryRequest selects a donor's lifecycle facts over a time window.
type ImpactQueryRequest struct {
	DonorID string
	Start   time.Time
	End     time.Time
}

// TimeSeriesPoint describes a single date/value pair returned by the query service.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// LabelValue represents a top-N entry such as a food type.
type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// ImpactQueryResponse is the donor impact report.
type ImpactQueryResponse struct {
	From          time.Time         `json:"from"`
	To            time.Time         `json:"to"`
	Listed        []TimeSeriesPoint `json:"listed"`
	Claimed       []TimeSeriesPoint `json:"claimed"`
	Completed     []TimeSeriesPoint `json:"completed"`
	Expired       []TimeSeriesPoint `json:"expired"`
	TopFoodTypes  []LabelValue      `json:"top_food_types"`
	CancelledRate float64           `json:"cancelled_rate"`
}
