// Package account defines the customer account snapshot that the scoring
// engine consumes.
package account

import "time"

// Record is one customer account as loaded for a computation cycle.
// Optional fields are pointers so that an absent value can be told apart
// from a zero value. A Record is never mutated once loaded.
type Record struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name,omitempty"`
	Tier      string `json:"tier,omitempty"`
	Owner     string `json:"owner,omitempty"`
	Industry  string `json:"industry"`

	ARR *float64 `json:"arr"`

	// Pillars, pre-normalized to [0,100].
	ProductEngagement *float64 `json:"product_engagement_score"`
	Sentiment         *float64 `json:"sentiment_score"`
	SupportVolume     *float64 `json:"support_volume_score"`

	DaysSinceLastContact *int       `json:"days_since_last_contact"`
	RenewalDate          *time.Time `json:"renewal_date"`
}

// Field names as they appear in errors and ingestion headers.
const (
	FieldAccountID            = "account_id"
	FieldIndustry             = "industry"
	FieldARR                  = "arr"
	FieldProductEngagement    = "product_engagement_score"
	FieldSentiment            = "sentiment_score"
	FieldSupportVolume        = "support_volume_score"
	FieldDaysSinceLastContact = "days_since_last_contact"
	FieldRenewalDate          = "renewal_date"
)

// MissingFields returns the required fields that are absent, in schema order.
func (r Record) MissingFields() []string {
	var missing []string
	if r.AccountID == "" {
		missing = append(missing, FieldAccountID)
	}
	if r.ARR == nil {
		missing = append(missing, FieldARR)
	}
	if r.Industry == "" {
		missing = append(missing, FieldIndustry)
	}
	if r.ProductEngagement == nil {
		missing = append(missing, FieldProductEngagement)
	}
	if r.Sentiment == nil {
		missing = append(missing, FieldSentiment)
	}
	if r.SupportVolume == nil {
		missing = append(missing, FieldSupportVolume)
	}
	if r.DaysSinceLastContact == nil {
		missing = append(missing, FieldDaysSinceLastContact)
	}
	if r.RenewalDate == nil {
		missing = append(missing, FieldRenewalDate)
	}
	return missing
}

// Float returns a pointer to v. Handy for building records in code and tests.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Date returns a pointer to the UTC midnight of the given calendar day.
func Date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}
