// Package ingest reads account snapshots from CSV exports.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/refset/account-health/internal/account"
)

// Optional descriptive columns.
const (
	ColumnName  = "name"
	ColumnTier  = "tier"
	ColumnOwner = "owner"
)

// RowError reports a row that could not be parsed. Line is 1-based and
// counts the header.
type RowError struct {
	Line      int
	AccountID string
	Column    string
	Err       error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d (account %s): column %s: %v", e.Line, e.AccountID, e.Column, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Rejection converts the row error for reporting.
func (e *RowError) Rejection() account.Rejection {
	return account.Rejection{
		Source:    "csv",
		Line:      e.Line,
		AccountID: e.AccountID,
		Field:     e.Column,
		Reason:    e.Err.Error(),
	}
}

// Result holds the parsed records and the rows that were rejected.
type Result struct {
	Records []account.Record
	Errors  []RowError
}

// Rejections returns the rejected rows in file order.
func (r Result) Rejections() []account.Rejection {
	out := make([]account.Rejection, 0, len(r.Errors))
	for i := range r.Errors {
		out = append(out, r.Errors[i].Rejection())
	}
	return out
}

// ReadCSV parses account records from r. Columns are matched by header name
// (case-insensitive) in any order and unknown columns are ignored. Empty
// cells leave the field absent so the engine can report the record as
// incomplete. Cells that fail to parse reject the row.
func ReadCSV(r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, errors.New("empty CSV: header row required")
		}
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols[account.FieldAccountID]; !ok {
		return Result{}, fmt.Errorf("missing %s column", account.FieldAccountID)
	}
	// Rows may be ragged; missing trailing cells read as empty.
	reader.FieldsPerRecord = -1

	var res Result
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}

		rec, rowErr := parseRow(row, cols)
		if rowErr != nil {
			rowErr.Line = line
			res.Errors = append(res.Errors, *rowErr)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func parseRow(row []string, cols map[string]int) (account.Record, *RowError) {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := account.Record{
		AccountID: cell(account.FieldAccountID),
		Name:      cell(ColumnName),
		Tier:      cell(ColumnTier),
		Owner:     cell(ColumnOwner),
		Industry:  cell(account.FieldIndustry),
	}
	fail := func(column string, err error) *RowError {
		return &RowError{AccountID: rec.AccountID, Column: column, Err: err}
	}

	floats := []struct {
		column string
		dst    **float64
	}{
		{account.FieldARR, &rec.ARR},
		{account.FieldProductEngagement, &rec.ProductEngagement},
		{account.FieldSentiment, &rec.Sentiment},
		{account.FieldSupportVolume, &rec.SupportVolume},
	}
	for _, f := range floats {
		v := cell(f.column)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			return account.Record{}, fail(f.column, err)
		}
		*f.dst = &n
	}

	if v := cell(account.FieldDaysSinceLastContact); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return account.Record{}, fail(account.FieldDaysSinceLastContact, err)
		}
		rec.DaysSinceLastContact = &n
	}
	if v := cell(account.FieldRenewalDate); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return account.Record{}, fail(account.FieldRenewalDate, err)
		}
		rec.RenewalDate = &d
	}
	return rec, nil
}
