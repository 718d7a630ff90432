package scoring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/refset/account-health/internal/account"
)

// Error kinds as reported in skipped-record lists.
const (
	KindInvalidInput     = "invalid_input"
	KindIncompleteRecord = "incomplete_record"
	KindConfiguration    = "configuration"
	KindUnknown          = "unknown"
)

// InvalidInputError reports a value outside its valid range.
type InvalidInputError struct {
	AccountID string
	Field     string
	Value     float64
	Reason    string
}

func (e *InvalidInputError) Error() string {
	if e.Field == account.FieldAccountID {
		return fmt.Sprintf("account %s: invalid %s: %s", e.AccountID, e.Field, e.Reason)
	}
	return fmt.Sprintf("account %s: invalid %s %v: %s", e.AccountID, e.Field, e.Value, e.Reason)
}

// IncompleteRecordError reports required fields missing from a record.
type IncompleteRecordError struct {
	AccountID string
	Fields    []string
}

func (e *IncompleteRecordError) Error() string {
	id := e.AccountID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("account %s: missing required fields: %s", id, strings.Join(e.Fields, ", "))
}

// ConfigurationError reports a configuration that invalidates every
// computation. It is returned before any record is processed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	var invalid *InvalidInputError
	var incomplete *IncompleteRecordError
	var cfgErr *ConfigurationError
	switch {
	case errors.As(err, &invalid):
		return KindInvalidInput
	case errors.As(err, &incomplete):
		return KindIncompleteRecord
	case errors.As(err, &cfgErr):
		return KindConfiguration
	default:
		return KindUnknown
	}
}
