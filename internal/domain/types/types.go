// Package types contains common types used across the application
package types

// TrustLevel buckets a policy weight for display.
type TrustLevel string

// Trust levels.
const (
	TrustHigh   TrustLevel = "high"
	TrustMedium TrustLevel = "medium"
	TrustLow    TrustLevel = "low"
)

// Weight thresholds for the trust buckets (inclusive lower bounds).
const (
	highTrustWeight   = 0.8
	mediumTrustWeight = 0.6
)

// TrustLevelFor maps a policy weight to its trust bucket.
func TrustLevelFor(weight float64) TrustLevel {
	switch {
	case weight >= highTrustWeight:
		return TrustHigh
	case weight >= mediumTrustWeight:
		return TrustMedium
	default:
		return TrustLow
	}
}

// SummaryStatus reports whether a job has any calibration data.
type SummaryStatus string

// Summary statuses.
const (
	StatusActive SummaryStatus = "active"
	StatusNoData SummaryStatus = "no_data"
)
