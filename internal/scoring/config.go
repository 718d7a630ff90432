package scoring

import (
	"fmt"
	"math"
)

// InputPolicy decides what happens to pillar values outside [0,100].
type InputPolicy string

const (
	PolicyReject InputPolicy = "reject"
	PolicyClamp  InputPolicy = "clamp"
)

// weightTolerance absorbs float noise from decimal weights like 0.3.
const weightTolerance = 1e-9

// Weights are the pillar weights of the health score.
type Weights struct {
	ProductEngagement float64 `yaml:"product_engagement" json:"product_engagement"`
	Sentiment         float64 `yaml:"sentiment" json:"sentiment"`
	SupportVolume     float64 `yaml:"support_volume" json:"support_volume"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.ProductEngagement + w.Sentiment + w.SupportVolume
}

// Validate checks that weights are non-negative and sum to 1.0.
func (w Weights) Validate() error {
	for _, p := range []struct {
		name string
		v    float64
	}{
		{"product_engagement", w.ProductEngagement},
		{"sentiment", w.Sentiment},
		{"support_volume", w.SupportVolume},
	} {
		if p.v < 0 || math.IsNaN(p.v) {
			return &ConfigurationError{Field: "weights." + p.name, Reason: fmt.Sprintf("must be non-negative, got %v", p.v)}
		}
	}
	if math.Abs(w.Sum()-1.0) > weightTolerance {
		return &ConfigurationError{Field: "weights", Reason: fmt.Sprintf("sum to %.4f, must sum to 1.0", w.Sum())}
	}
	return nil
}

// Thresholds are the inclusive lower bounds of the Healthy and At Risk bands.
type Thresholds struct {
	Healthy float64 `yaml:"healthy" json:"healthy"`
	AtRisk  float64 `yaml:"at_risk" json:"at_risk"`
}

// Validate checks that the thresholds are ordered and inside the score range.
func (t Thresholds) Validate() error {
	if t.AtRisk <= 0 || t.Healthy > 100 {
		return &ConfigurationError{Field: "thresholds", Reason: fmt.Sprintf("must lie in (0,100], got at_risk=%v healthy=%v", t.AtRisk, t.Healthy)}
	}
	if t.AtRisk >= t.Healthy {
		return &ConfigurationError{Field: "thresholds", Reason: fmt.Sprintf("at_risk (%v) must be below healthy (%v)", t.AtRisk, t.Healthy)}
	}
	return nil
}

// Config is the parameter set of one computation cycle.
type Config struct {
	Weights         Weights     `yaml:"weights" json:"weights"`
	Thresholds      Thresholds  `yaml:"thresholds" json:"thresholds"`
	HighValueARR    float64     `yaml:"high_value_arr" json:"high_value_arr"`
	SilentChurnDays int         `yaml:"silent_churn_days" json:"silent_churn_days"`
	Policy          InputPolicy `yaml:"policy" json:"policy"`

	// Workers bounds batch parallelism; zero or less means sequential.
	Workers int `yaml:"workers" json:"workers"`
}

// DefaultConfig returns the standard weights and thresholds with the
// reject policy.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			ProductEngagement: 0.40,
			Sentiment:         0.30,
			SupportVolume:     0.30,
		},
		Thresholds: Thresholds{
			Healthy: 70,
			AtRisk:  40,
		},
		HighValueARR:    250_000,
		SilentChurnDays: 90,
		Policy:          PolicyReject,
		Workers:         4,
	}
}

// Validate returns a *ConfigurationError describing the first problem found.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.HighValueARR < 0 || math.IsNaN(c.HighValueARR) {
		return &ConfigurationError{Field: "high_value_arr", Reason: "must be non-negative"}
	}
	if c.SilentChurnDays < 0 {
		return &ConfigurationError{Field: "silent_churn_days", Reason: "must be non-negative"}
	}
	switch c.Policy {
	case PolicyReject, PolicyClamp:
	case "":
		return &ConfigurationError{Field: "policy", Reason: "must be set explicitly to reject or clamp"}
	default:
		return &ConfigurationError{Field: "policy", Reason: fmt.Sprintf("unknown policy %q", c.Policy)}
	}
	return nil
}
