package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/refset/account-health/internal/scoring"
)

// Options parameterize one aggregation run.
type Options struct {
	// AsOf is the evaluation date renewal windows are measured from.
	AsOf time.Time
	// RenewalBuckets are the inclusive upper bounds, in days, of the renewal
	// windows. A final open-ended bucket and an overdue bucket are implied.
	RenewalBuckets []int
	// RenewalWindowDays counts a renewal as due when it falls within this
	// many days of AsOf.
	RenewalWindowDays int
	// TopN limits the priority and top-account lists.
	TopN int
	// Industries are always reported, with an empty marker when no account
	// belongs to them.
	Industries []string
}

// DefaultOptions returns the standard renewal windows evaluated at asOf.
func DefaultOptions(asOf time.Time) Options {
	return Options{
		AsOf:              asOf,
		RenewalBuckets:    []int{30, 90, 180},
		RenewalWindowDays: 90,
		TopN:              10,
	}
}

// Validate returns a *scoring.ConfigurationError for unusable options.
func (o Options) Validate() error {
	if o.AsOf.IsZero() {
		return &scoring.ConfigurationError{Field: "as_of", Reason: "evaluation date is required"}
	}
	if len(o.RenewalBuckets) == 0 {
		return &scoring.ConfigurationError{Field: "renewal_buckets", Reason: "at least one boundary is required"}
	}
	prev := -1
	for _, b := range o.RenewalBuckets {
		if b <= prev {
			return &scoring.ConfigurationError{Field: "renewal_buckets", Reason: fmt.Sprintf("boundaries must be strictly increasing and non-negative, got %v", o.RenewalBuckets)}
		}
		prev = b
	}
	if o.RenewalWindowDays < 0 {
		return &scoring.ConfigurationError{Field: "renewal_window_days", Reason: "must be non-negative"}
	}
	if o.TopN < 0 {
		return &scoring.ConfigurationError{Field: "top_n", Reason: "must be non-negative"}
	}
	return nil
}

// Round rounds v to the given number of decimals. It is meant for display
// only; reports keep full precision.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// daysUntil counts whole calendar days from asOf to t, comparing UTC dates.
func daysUntil(asOf, t time.Time) int {
	a := asOf.UTC()
	b := t.UTC()
	from := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
