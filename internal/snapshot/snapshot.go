// Package snapshot defines the published output of one computation cycle.
package snapshot

import (
	"time"

	"github.com/refset/account-health/internal/portfolio"
	"github.com/refset/account-health/internal/scoring"
)

// Snapshot is what readers see of a finished cycle: per-account results and
// the portfolio report.
type Snapshot struct {
	RunID       string           `json:"run_id"`
	AsOf        time.Time        `json:"as_of"`
	GeneratedAt time.Time        `json:"generated_at"`
	Results     []scoring.Result `json:"results"`
	Report      portfolio.Report `json:"report"`
}

// New builds a snapshot from a scored batch and its report.
func New(runID string, generatedAt time.Time, batch scoring.BatchResult, report portfolio.Report) Snapshot {
	results := make([]scoring.Result, 0, len(batch.Results))
	for _, s := range batch.Results {
		results = append(results, s.Result)
	}
	return Snapshot{
		RunID:       runID,
		AsOf:        report.AsOf,
		GeneratedAt: generatedAt,
		Results:     results,
		Report:      report,
	}
}

// Result returns the result for accountID.
func (s Snapshot) Result(accountID string) (scoring.Result, bool) {
	for _, r := range s.Results {
		if r.AccountID == accountID {
			return r, true
		}
	}
	return scoring.Result{}, false
}
