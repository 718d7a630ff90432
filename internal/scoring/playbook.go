package scoring

import (
	"fmt"

	"github.com/refset/account-health/internal/account"
)

// Playbook is a recommended intervention.
type Playbook string

const (
	PlaybookExecutiveSponsorCall   Playbook = "Executive Sponsor Call"
	PlaybookRiskMitigationPlan     Playbook = "Risk Mitigation Plan"
	PlaybookStrategySession        Playbook = "Strategy Session / QBR"
	PlaybookValueRealizationReport Playbook = "Value Realization Report"
)

// Playbooks lists every playbook in severity order, matching the order of
// the default rules.
var Playbooks = []Playbook{
	PlaybookExecutiveSponsorCall,
	PlaybookRiskMitigationPlan,
	PlaybookStrategySession,
	PlaybookValueRealizationReport,
}

// Facts are the inputs a rule predicate may look at.
type Facts struct {
	Band                 Band
	ARR                  float64
	DaysSinceLastContact int
}

// Rule pairs a predicate with the playbook it assigns. A nil Match is a
// catch-all.
type Rule struct {
	Name     string
	Playbook Playbook
	Match    func(Facts) bool
}

// DefaultRules returns the standard rule table. Order is significant:
// critical accounts are routed by ARR tier before the silent-churn check,
// and the silent-churn check runs before the fallback.
func DefaultRules(cfg Config) []Rule {
	highValue := cfg.HighValueARR
	silentDays := cfg.SilentChurnDays
	return []Rule{
		{
			Name:     "critical-high-value",
			Playbook: PlaybookExecutiveSponsorCall,
			Match: func(f Facts) bool {
				return f.Band == BandCritical && f.ARR >= highValue
			},
		},
		{
			Name:     "critical",
			Playbook: PlaybookRiskMitigationPlan,
			Match: func(f Facts) bool {
				return f.Band == BandCritical && f.ARR < highValue
			},
		},
		{
			Name:     "at-risk-or-silent",
			Playbook: PlaybookStrategySession,
			Match: func(f Facts) bool {
				return f.Band == BandAtRisk || f.DaysSinceLastContact > silentDays
			},
		},
		{
			Name:     "fallback",
			Playbook: PlaybookValueRealizationReport,
		},
	}
}

// Selector evaluates rules top to bottom; the first match wins.
type Selector struct {
	rules []Rule
}

// NewSelector returns a selector over rules. The last rule must be a
// catch-all so that every account receives a playbook.
func NewSelector(rules []Rule) (*Selector, error) {
	if len(rules) == 0 {
		return nil, &ConfigurationError{Field: "rules", Reason: "at least one rule is required"}
	}
	for i, r := range rules {
		if r.Playbook == "" {
			return nil, &ConfigurationError{Field: "rules", Reason: fmt.Sprintf("rule %d (%s) has no playbook", i, r.Name)}
		}
		if r.Match == nil && i != len(rules)-1 {
			return nil, &ConfigurationError{Field: "rules", Reason: fmt.Sprintf("catch-all rule %s must be last", r.Name)}
		}
	}
	if rules[len(rules)-1].Match != nil {
		return nil, &ConfigurationError{Field: "rules", Reason: "last rule must be a catch-all"}
	}
	return &Selector{rules: append([]Rule(nil), rules...)}, nil
}

// Select returns the playbook for rec in the given band along with the name
// of the rule that matched.
func (s *Selector) Select(rec account.Record, band Band) (Playbook, string, error) {
	var missing []string
	if rec.ARR == nil {
		missing = append(missing, account.FieldARR)
	}
	if rec.DaysSinceLastContact == nil {
		missing = append(missing, account.FieldDaysSinceLastContact)
	}
	if len(missing) > 0 {
		return "", "", &IncompleteRecordError{AccountID: rec.AccountID, Fields: missing}
	}

	facts := Facts{
		Band:                 band,
		ARR:                  *rec.ARR,
		DaysSinceLastContact: *rec.DaysSinceLastContact,
	}
	for _, r := range s.rules {
		if r.Match == nil || r.Match(facts) {
			return r.Playbook, r.Name, nil
		}
	}
	// unreachable: NewSelector guarantees a trailing catch-all
	return "", "", fmt.Errorf("no rule matched account %s", rec.AccountID)
}
