package portfolio

import "github.com/refset/account-health/internal/scoring"

// BandCounts counts accounts per health band.
type BandCounts struct {
	Healthy  int `json:"healthy"`
	AtRisk   int `json:"at_risk"`
	Critical int `json:"critical"`
}

// BandPercent holds unrounded band percentages.
type BandPercent struct {
	Healthy  float64 `json:"healthy"`
	AtRisk   float64 `json:"at_risk"`
	Critical float64 `json:"critical"`
}

// Sum is the total of the three percentages.
func (p BandPercent) Sum() float64 {
	return p.Healthy + p.AtRisk + p.Critical
}

// IndustryRisk is the health-band distribution of one industry. Percentages
// sum to 100 unless Empty is set, in which case they are all zero.
type IndustryRisk struct {
	Industry string      `json:"industry"`
	Total    int         `json:"total"`
	Counts   BandCounts  `json:"counts"`
	Percent  BandPercent `json:"percent"`
	Empty    bool        `json:"empty"`
}

// RiskComposition computes the band distribution per industry, sorted by
// industry name. Industries listed in known are reported even without
// accounts.
func RiskComposition(scored []scoring.Scored, known []string) []IndustryRisk {
	g := groupBy(scored, known,
		func(s scoring.Scored) string { return s.Record.Industry },
		func(c BandCounts, s scoring.Scored) BandCounts {
			switch s.Result.Band {
			case scoring.BandHealthy:
				c.Healthy++
			case scoring.BandAtRisk:
				c.AtRisk++
			case scoring.BandCritical:
				c.Critical++
			}
			return c
		})

	keys := sortedKeys(g.Keys)
	out := make([]IndustryRisk, 0, len(keys))
	for _, industry := range keys {
		c := g.Values[industry]
		total := c.Healthy + c.AtRisk + c.Critical
		r := IndustryRisk{Industry: industry, Total: total, Counts: c}
		if total == 0 {
			r.Empty = true
		} else {
			n := float64(total)
			r.Percent = BandPercent{
				Healthy:  float64(c.Healthy) / n * 100,
				AtRisk:   float64(c.AtRisk) / n * 100,
				Critical: float64(c.Critical) / n * 100,
			}
		}
		out = append(out, r)
	}
	return out
}
