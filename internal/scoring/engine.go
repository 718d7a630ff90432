package scoring

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/refset/account-health/internal/account"
)

// Result is the derived health result of one account. Name and Tier are
// copied from the record for display and filtering.
type Result struct {
	AccountID string   `json:"account_id"`
	Name      string   `json:"name,omitempty"`
	Tier      string   `json:"tier,omitempty"`
	Score     float64  `json:"health_score"`
	Band      Band     `json:"health_band"`
	Playbook  Playbook `json:"playbook"`
	Rule      string   `json:"rule"`
	Clamped   []string `json:"clamped,omitempty"`
}

// Scored pairs an account with its result.
type Scored struct {
	Record account.Record `json:"record"`
	Result Result         `json:"result"`
}

// Skipped describes a record excluded from scoring and aggregation.
type Skipped struct {
	Index     int    `json:"index"`
	AccountID string `json:"account_id"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

// BatchResult holds the valid results and the skipped records of a batch,
// both in input order. Rejected is filled by the caller with input rows
// that never became records.
type BatchResult struct {
	Results  []Scored            `json:"results"`
	Skipped  []Skipped           `json:"skipped"`
	Rejected []account.Rejection `json:"rejected"`
}

// Engine scores accounts with a fixed configuration. It keeps no state
// between calls.
type Engine struct {
	cfg        Config
	calculator *Calculator
	selector   *Selector
}

// NewEngine validates cfg and builds an engine with the default rule table.
func NewEngine(cfg Config) (*Engine, error) {
	return NewEngineWithRules(cfg, DefaultRules(cfg))
}

// NewEngineWithRules is NewEngine with a custom rule table.
func NewEngineWithRules(cfg Config, rules []Rule) (*Engine, error) {
	calc, err := NewCalculator(cfg)
	if err != nil {
		return nil, err
	}
	sel, err := NewSelector(rules)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, calculator: calc, selector: sel}, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Score computes the result for a single record.
func (e *Engine) Score(rec account.Record) (Result, error) {
	if missing := rec.MissingFields(); len(missing) > 0 {
		return Result{}, &IncompleteRecordError{AccountID: rec.AccountID, Fields: missing}
	}
	if arr := *rec.ARR; arr < 0 || math.IsNaN(arr) || math.IsInf(arr, 0) {
		return Result{}, &InvalidInputError{AccountID: rec.AccountID, Field: account.FieldARR, Value: arr, Reason: "must be a non-negative amount"}
	}
	if days := *rec.DaysSinceLastContact; days < 0 {
		return Result{}, &InvalidInputError{AccountID: rec.AccountID, Field: account.FieldDaysSinceLastContact, Value: float64(days), Reason: "must be non-negative"}
	}

	health, err := e.calculator.Score(rec)
	if err != nil {
		return Result{}, err
	}
	playbook, rule, err := e.selector.Select(rec, health.Band)
	if err != nil {
		return Result{}, err
	}
	return Result{
		AccountID: rec.AccountID,
		Name:      rec.Name,
		Tier:      rec.Tier,
		Score:     health.Score,
		Band:      health.Band,
		Playbook:  playbook,
		Rule:      rule,
		Clamped:   health.Clamped,
	}, nil
}

// ScoreBatch scores every record. Bad records are reported in Skipped and
// never abort the batch; the returned error is non-nil only when ctx is
// done. Output order follows input order regardless of parallelism.
func (e *Engine) ScoreBatch(ctx context.Context, records []account.Record) (BatchResult, error) {
	results := make([]Result, len(records))
	errs := make([]error, len(records))

	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.Workers > 0 {
		g.SetLimit(e.cfg.Workers)
	} else {
		g.SetLimit(1)
	}
	for i := range records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = e.Score(records[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}

	batch := BatchResult{
		Results: make([]Scored, 0, len(records)),
		Skipped: []Skipped{},
	}
	// The first occurrence of an ID owns it, whether or not it scored.
	seen := make(map[string]int, len(records))
	for i, rec := range records {
		err := errs[i]
		if first, dup := seen[rec.AccountID]; dup && rec.AccountID != "" {
			if err == nil {
				err = &InvalidInputError{
					AccountID: rec.AccountID,
					Field:     account.FieldAccountID,
					Reason:    fmt.Sprintf("duplicate of record %d", first),
				}
			}
		} else {
			seen[rec.AccountID] = i
		}
		if err != nil {
			batch.Skipped = append(batch.Skipped, Skipped{
				Index:     i,
				AccountID: rec.AccountID,
				Kind:      ErrorKind(err),
				Reason:    err.Error(),
				Err:       err,
			})
			continue
		}
		batch.Results = append(batch.Results, Scored{Record: rec, Result: results[i]})
	}
	return batch, nil
}
