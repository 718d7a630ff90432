// Package portfolio rolls scored accounts up into portfolio analytics:
// capital at risk per playbook, risk composition per industry, renewal
// timelines and engagement means.
//
// Group order is fixed: playbooks follow severity order (the order of the
// default rule table), industries are sorted alphabetically and renewal
// buckets run from overdue to the open-ended window.
package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/refset/account-health/internal/account"
	"github.com/refset/account-health/internal/scoring"
)

// PlaybookRollup is the capital at risk of one intervention bucket.
type PlaybookRollup struct {
	Playbook   scoring.Playbook `json:"playbook"`
	ARRSum     float64          `json:"arr_sum"`
	Accounts   int              `json:"account_count"`
	Engagement Mean             `json:"engagement"`
}

// RenewalBucket counts accounts renewing within a window of days from AsOf.
// MinDays and MaxDays are inclusive; nil means unbounded.
type RenewalBucket struct {
	Label    string  `json:"label"`
	MinDays  *int    `json:"min_days"`
	MaxDays  *int    `json:"max_days"`
	Accounts int     `json:"account_count"`
	ARR      float64 `json:"arr_sum"`
}

// IndustryEngagement is the mean product engagement of an industry.
type IndustryEngagement struct {
	Industry   string `json:"industry"`
	Engagement Mean   `json:"engagement"`
}

// Summary holds portfolio-wide KPIs.
type Summary struct {
	Accounts      int     `json:"account_count"`
	Skipped       int     `json:"skipped_count"`
	Rejected      int     `json:"rejected_count"`
	TotalARR      float64 `json:"total_arr"`
	ARRAtRisk     float64 `json:"arr_at_risk"`
	AverageHealth Mean    `json:"average_health"`
	RenewalsDue   int     `json:"renewals_due"`
	RenewalWindow int     `json:"renewal_window_days"`
}

// AccountLine is one row of the priority and top-account lists.
type AccountLine struct {
	AccountID            string           `json:"account_id"`
	Name                 string           `json:"name,omitempty"`
	Industry             string           `json:"industry"`
	ARR                  float64          `json:"arr"`
	Score                float64          `json:"health_score"`
	Band                 scoring.Band     `json:"health_band"`
	Playbook             scoring.Playbook `json:"playbook"`
	DaysSinceLastContact int              `json:"days_since_last_contact"`
	DaysToRenewal        int              `json:"days_to_renewal"`
}

// Report is the complete portfolio output of one computation cycle.
type Report struct {
	AsOf                 time.Time            `json:"as_of"`
	Summary              Summary              `json:"summary"`
	ByPlaybook           []PlaybookRollup     `json:"by_playbook"`
	RiskByIndustry       []IndustryRisk       `json:"by_industry_risk"`
	RenewalBuckets       []RenewalBucket      `json:"renewal_buckets"`
	EngagementByIndustry []IndustryEngagement `json:"engagement_by_industry"`
	Priority             []AccountLine        `json:"priority"`
	TopAccounts          []AccountLine        `json:"top_accounts"`
	Skipped              []scoring.Skipped    `json:"skipped"`
	Rejected             []account.Rejection  `json:"rejected"`
}

// Build aggregates a scored batch. Only valid results contribute; skipped
// records are carried through for reporting. The same batch and options
// always produce the same report.
func Build(batch scoring.BatchResult, opts Options) (Report, error) {
	if err := opts.Validate(); err != nil {
		return Report{}, err
	}
	scored := batch.Results
	skipped := batch.Skipped
	if skipped == nil {
		skipped = []scoring.Skipped{}
	}
	rejected := batch.Rejected
	if rejected == nil {
		rejected = []account.Rejection{}
	}

	return Report{
		AsOf:                 opts.AsOf,
		Summary:              summarize(scored, len(batch.Skipped), len(rejected), opts),
		ByPlaybook:           ByPlaybook(scored),
		RiskByIndustry:       RiskComposition(scored, opts.Industries),
		RenewalBuckets:       RenewalBuckets(scored, opts.AsOf, opts.RenewalBuckets),
		EngagementByIndustry: EngagementByIndustry(scored, opts.Industries),
		Priority:             priority(scored, opts),
		TopAccounts:          topAccounts(scored, opts),
		Skipped:              skipped,
		Rejected:             rejected,
	}, nil
}

// ByPlaybook sums ARR and counts accounts per playbook. Every playbook is
// listed, in severity order.
func ByPlaybook(scored []scoring.Scored) []PlaybookRollup {
	type acc struct {
		arr        float64
		accounts   int
		engagement Mean
	}
	g := groupBy(scored, scoring.Playbooks,
		func(s scoring.Scored) scoring.Playbook { return s.Result.Playbook },
		func(a acc, s scoring.Scored) acc {
			a.arr += *s.Record.ARR
			a.accounts++
			a.engagement = a.engagement.add(*s.Record.ProductEngagement)
			return a
		})

	out := make([]PlaybookRollup, 0, len(g.Keys))
	for _, pb := range g.Keys {
		a := g.Values[pb]
		out = append(out, PlaybookRollup{
			Playbook:   pb,
			ARRSum:     a.arr,
			Accounts:   a.accounts,
			Engagement: a.engagement.finish(),
		})
	}
	return out
}

// EngagementByIndustry averages product engagement per industry.
func EngagementByIndustry(scored []scoring.Scored, industries []string) []IndustryEngagement {
	g := groupBy(scored, industries,
		func(s scoring.Scored) string { return s.Record.Industry },
		func(m Mean, s scoring.Scored) Mean { return m.add(*s.Record.ProductEngagement) })

	keys := sortedKeys(g.Keys)
	out := make([]IndustryEngagement, 0, len(keys))
	for _, industry := range keys {
		out = append(out, IndustryEngagement{Industry: industry, Engagement: g.Values[industry].finish()})
	}
	return out
}

// RenewalBuckets groups accounts by days from asOf to their renewal date.
// Boundaries are inclusive upper bounds; renewals before asOf land in the
// overdue bucket.
func RenewalBuckets(scored []scoring.Scored, asOf time.Time, boundaries []int) []RenewalBucket {
	buckets := make([]RenewalBucket, 0, len(boundaries)+2)
	overdueMax := -1
	buckets = append(buckets, RenewalBucket{Label: "overdue", MaxDays: &overdueMax})
	lower := 0
	for _, b := range boundaries {
		lo, hi := lower, b
		buckets = append(buckets, RenewalBucket{Label: fmt.Sprintf("%d-%dd", lo, hi), MinDays: &lo, MaxDays: &hi})
		lower = b + 1
	}
	last := lower
	buckets = append(buckets, RenewalBucket{Label: fmt.Sprintf(">%dd", last-1), MinDays: &last})

	for _, s := range scored {
		days := daysUntil(asOf, *s.Record.RenewalDate)
		i := bucketIndex(days, boundaries)
		buckets[i].Accounts++
		buckets[i].ARR += *s.Record.ARR
	}
	return buckets
}

func bucketIndex(days int, boundaries []int) int {
	if days < 0 {
		return 0
	}
	for i, b := range boundaries {
		if days <= b {
			return i + 1
		}
	}
	return len(boundaries) + 1
}

func summarize(scored []scoring.Scored, skipped, rejected int, opts Options) Summary {
	s := Summary{
		Accounts:      len(scored),
		Skipped:       skipped,
		Rejected:      rejected,
		RenewalWindow: opts.RenewalWindowDays,
	}
	var health Mean
	for _, sc := range scored {
		arr := *sc.Record.ARR
		s.TotalARR += arr
		if sc.Result.Band != scoring.BandHealthy {
			s.ARRAtRisk += arr
		}
		health = health.add(sc.Result.Score)
		if days := daysUntil(opts.AsOf, *sc.Record.RenewalDate); days >= 0 && days <= opts.RenewalWindowDays {
			s.RenewalsDue++
		}
	}
	s.AverageHealth = health.finish()
	return s
}

func priority(scored []scoring.Scored, opts Options) []AccountLine {
	lines := make([]AccountLine, 0)
	for _, s := range scored {
		if s.Result.Band != scoring.BandHealthy {
			lines = append(lines, line(s, opts.AsOf))
		}
	}
	return rankByARR(lines, opts.TopN)
}

func topAccounts(scored []scoring.Scored, opts Options) []AccountLine {
	lines := make([]AccountLine, 0, len(scored))
	for _, s := range scored {
		lines = append(lines, line(s, opts.AsOf))
	}
	return rankByARR(lines, opts.TopN)
}

// rankByARR sorts by ARR descending, ties by account ID, and keeps the first n.
func rankByARR(lines []AccountLine, n int) []AccountLine {
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].ARR != lines[j].ARR {
			return lines[i].ARR > lines[j].ARR
		}
		return lines[i].AccountID < lines[j].AccountID
	})
	if len(lines) > n {
		lines = lines[:n]
	}
	return lines
}

func line(s scoring.Scored, asOf time.Time) AccountLine {
	return AccountLine{
		AccountID:            s.Record.AccountID,
		Name:                 s.Record.Name,
		Industry:             s.Record.Industry,
		ARR:                  *s.Record.ARR,
		Score:                s.Result.Score,
		Band:                 s.Result.Band,
		Playbook:             s.Result.Playbook,
		DaysSinceLastContact: *s.Record.DaysSinceLastContact,
		DaysToRenewal:        daysUntil(asOf, *s.Record.RenewalDate),
	}
}

func sortedKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}
