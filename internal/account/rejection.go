package account

// Rejection is an input row that could not be turned into a Record. It is
// carried into the report so that no rejected row goes unreported.
type Rejection struct {
	// Source names where the row came from, e.g. "csv" or "crm".
	Source    string `json:"source"`
	Line      int    `json:"line,omitempty"`
	AccountID string `json:"account_id"`
	Field     string `json:"field,omitempty"`
	Reason    string `json:"reason"`
}
