// Package crm pulls account snapshots from the CRM and normalizes them into
// account records.
package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/refset/account-health/internal/account"
)

// Poller pages through CRM accounts updated since the last checkpoint.
// The checkpoint moves only on Commit, so a poll whose records were never
// stored is fetched again.
type Poller struct {
	client       *Client
	pageSize     int
	logger       *zap.Logger
	lastPollTime *time.Time
	pending      *time.Time
}

// NewPoller creates a new CRM poller
func NewPoller(client *Client, pageSize int, logger *zap.Logger) *Poller {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Poller{
		client:   client,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Poll fetches every account updated since the checkpoint. Accounts that
// cannot be converted are returned as rejections. The newest update seen
// becomes the pending checkpoint; call Commit once the records are stored.
func (p *Poller) Poll(ctx context.Context) ([]account.Record, []account.Rejection, error) {
	var (
		records  []account.Record
		rejected []account.Rejection
	)
	newest := p.lastPollTime

	for first := 0; ; first += p.pageSize {
		page, err := p.client.GetAccounts(ctx, p.lastPollTime, first, p.pageSize)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch accounts at offset %d: %w", first, err)
		}

		for _, a := range page {
			rec, err := ToRecord(a)
			if err != nil {
				p.logger.Warn("skipping CRM account", zap.String("account_id", a.ID), zap.Error(err))
				rej := account.Rejection{Source: "crm", AccountID: a.ID, Reason: err.Error()}
				var fe *FieldError
				if errors.As(err, &fe) {
					rej.Field = fe.Field
				}
				rejected = append(rejected, rej)
				continue
			}
			records = append(records, rec)

			updated, err := time.Parse(TimeLayout, a.UpdatedAt)
			if err == nil && (newest == nil || updated.After(*newest)) {
				newest = &updated
			}
		}

		if len(page) < p.pageSize {
			break
		}
	}

	p.pending = newest
	return records, rejected, nil
}

// Commit advances the checkpoint to the newest update of the last Poll.
func (p *Poller) Commit() {
	if p.pending != nil {
		p.lastPollTime = p.pending
		p.pending = nil
	}
}

// SetCheckpoint sets the polling checkpoint
func (p *Poller) SetCheckpoint(t time.Time) {
	p.lastPollTime = &t
	p.pending = nil
}

// GetCheckpoint returns the current polling checkpoint
func (p *Poller) GetCheckpoint() *time.Time {
	return p.lastPollTime
}

// ToRecord converts a CRM account into a record with pillars on the 0..100
// scale. NPS is mapped linearly from -100..100. Missing values stay absent.
func ToRecord(a Account) (account.Record, error) {
	rec := account.Record{
		AccountID:            a.ID,
		Name:                 a.Name,
		Tier:                 a.Tier,
		Owner:                a.Owner,
		Industry:             a.Industry,
		ARR:                  a.ARR,
		ProductEngagement:    a.EngagementScore,
		SupportVolume:        a.SupportScore,
		DaysSinceLastContact: a.DaysSinceLastContact,
	}
	if a.NPS != nil {
		rec.Sentiment = account.Float(NormalizeNPS(*a.NPS))
	}
	if a.RenewalDate != nil && *a.RenewalDate != "" {
		d, err := time.Parse(time.DateOnly, *a.RenewalDate)
		if err != nil {
			return account.Record{}, &FieldError{Field: account.FieldRenewalDate, Err: err}
		}
		rec.RenewalDate = &d
	}
	return rec, nil
}

// FieldError reports a CRM field that could not be converted.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// NormalizeNPS maps a raw net promoter score (-100..100) onto 0..100.
// Out-of-range values are passed through scaled so the engine's input
// policy decides what to do with them.
func NormalizeNPS(nps float64) float64 {
	return (nps + 100) / 2
}
