// Package scoring computes account health scores, health bands and
// recommended playbooks. Everything in it is a pure function of the
// configuration and the account snapshot.
package scoring

import (
	"math"

	"github.com/refset/account-health/internal/account"
)

// Band is the categorical health bucket derived from the score.
type Band string

const (
	BandHealthy  Band = "Healthy"
	BandAtRisk   Band = "At Risk"
	BandCritical Band = "Critical"
)

// Bands lists every band from healthiest to most severe.
var Bands = []Band{BandHealthy, BandAtRisk, BandCritical}

// Calculator turns pillar scores into a health score and band.
type Calculator struct {
	weights    Weights
	thresholds Thresholds
	policy     InputPolicy
}

// NewCalculator validates the configuration and returns a calculator.
func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{
		weights:    cfg.Weights,
		thresholds: cfg.Thresholds,
		policy:     cfg.Policy,
	}, nil
}

// scoreScale snaps scores to nine decimal places.
const scoreScale = 1e9

// Health is the calculator output for one account.
type Health struct {
	Score float64
	Band  Band
	// Clamped names the pillars adjusted under the clamp policy.
	Clamped []string
}

// Score computes the weighted health score of rec. Pillars must be present;
// a missing pillar yields an *IncompleteRecordError.
func (c *Calculator) Score(rec account.Record) (Health, error) {
	var missing []string
	if rec.ProductEngagement == nil {
		missing = append(missing, account.FieldProductEngagement)
	}
	if rec.Sentiment == nil {
		missing = append(missing, account.FieldSentiment)
	}
	if rec.SupportVolume == nil {
		missing = append(missing, account.FieldSupportVolume)
	}
	if len(missing) > 0 {
		return Health{}, &IncompleteRecordError{AccountID: rec.AccountID, Fields: missing}
	}

	var h Health
	engagement, err := c.pillar(rec.AccountID, account.FieldProductEngagement, *rec.ProductEngagement, &h)
	if err != nil {
		return Health{}, err
	}
	sentiment, err := c.pillar(rec.AccountID, account.FieldSentiment, *rec.Sentiment, &h)
	if err != nil {
		return Health{}, err
	}
	support, err := c.pillar(rec.AccountID, account.FieldSupportVolume, *rec.SupportVolume, &h)
	if err != nil {
		return Health{}, err
	}

	score := c.weights.ProductEngagement*engagement +
		c.weights.Sentiment*sentiment +
		c.weights.SupportVolume*support
	// Weights may sum to 1.0 only within tolerance, and decimal weights
	// leave float noise; snap before banding so a score of exactly 40 is
	// not read as 39.999999999999993.
	score = math.Round(score*scoreScale) / scoreScale
	h.Score = math.Min(math.Max(score, 0), 100)
	h.Band = c.Band(h.Score)
	return h, nil
}

// Band maps a score to its band using inclusive lower bounds.
func (c *Calculator) Band(score float64) Band {
	switch {
	case score >= c.thresholds.Healthy:
		return BandHealthy
	case score >= c.thresholds.AtRisk:
		return BandAtRisk
	default:
		return BandCritical
	}
}

func (c *Calculator) pillar(accountID, field string, v float64, h *Health) (float64, error) {
	if math.IsNaN(v) {
		return 0, &InvalidInputError{AccountID: accountID, Field: field, Value: v, Reason: "not a number"}
	}
	if v >= 0 && v <= 100 {
		return v, nil
	}
	if c.policy == PolicyClamp {
		h.Clamped = append(h.Clamped, field)
		return math.Min(math.Max(v, 0), 100), nil
	}
	return 0, &InvalidInputError{AccountID: accountID, Field: field, Value: v, Reason: "outside [0,100]"}
}
