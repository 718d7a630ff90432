package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/refset/account-health/internal/account"
)

func fakeCRM(t *testing.T, accounts []Account) (*httptest.Server, *[]string) {
	t.Helper()
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "svc" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusOK)
		case "/accounts":
			queries = append(queries, r.URL.RawQuery)
			first, _ := strconv.Atoi(r.URL.Query().Get("firstResult"))
			size, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
			end := min(first+size, len(accounts))
			page := []Account{}
			if first < len(accounts) {
				page = accounts[first:end]
			}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(page))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &queries
}

func crmAccount(id, updatedAt string) Account {
	return Account{
		ID:                   id,
		Industry:             "FinTech",
		ARR:                  account.Float(100000),
		EngagementScore:      account.Float(80),
		NPS:                  account.Float(20),
		SupportScore:         account.Float(55),
		DaysSinceLastContact: account.Int(10),
		UpdatedAt:            updatedAt,
	}
}

func TestPollPagesUntilShortPage(t *testing.T) {
	accounts := []Account{
		crmAccount("ACC-1", "2026-10-01T09:00:00.000+0000"),
		crmAccount("ACC-2", "2026-10-03T09:00:00.000+0000"),
		crmAccount("ACC-3", "2026-10-02T09:00:00.000+0000"),
	}
	srv, queries := fakeCRM(t, accounts)
	p := NewPoller(NewClient(srv.URL, "svc", "secret"), 2, zap.NewNop())

	records, rejected, err := p.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Empty(t, rejected)
	assert.Len(t, *queries, 2)
	assert.Equal(t, "ACC-1", records[0].AccountID)
	assert.Equal(t, 60.0, *records[0].Sentiment)

	assert.Nil(t, p.GetCheckpoint())
	p.Commit()
	want := time.Date(2026, time.October, 3, 9, 0, 0, 0, time.UTC)
	require.NotNil(t, p.GetCheckpoint())
	assert.True(t, want.Equal(*p.GetCheckpoint()))
}

func TestPollWithoutCommitFetchesAgain(t *testing.T) {
	srv, queries := fakeCRM(t, []Account{crmAccount("ACC-1", "2026-10-01T09:00:00.000+0000")})
	p := NewPoller(NewClient(srv.URL, "svc", "secret"), 10, zap.NewNop())

	records, _, err := p.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	records, _, err = p.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, *queries, 2)
	assert.NotContains(t, (*queries)[1], "updatedAfter")

	p.Commit()
	_, _, err = p.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, *queries, 3)
	assert.Contains(t, (*queries)[2], "updatedAfter=2026-10-01T09%3A00%3A00.000%2B0000")
}

func TestPollSendsCheckpoint(t *testing.T) {
	srv, queries := fakeCRM(t, nil)
	p := NewPoller(NewClient(srv.URL, "svc", "secret"), 50, zap.NewNop())
	checkpoint := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	p.SetCheckpoint(checkpoint)

	records, _, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	require.Len(t, *queries, 1)
	assert.Contains(t, (*queries)[0], "updatedAfter=2026-09-01T00%3A00%3A00.000%2B0000")
	assert.Equal(t, checkpoint, *p.GetCheckpoint())
}

func TestPollSkipsMalformedAccounts(t *testing.T) {
	bad := crmAccount("ACC-BAD", "2026-10-01T09:00:00.000+0000")
	date := "15/01/2027"
	bad.RenewalDate = &date
	srv, _ := fakeCRM(t, []Account{bad, crmAccount("ACC-OK", "2026-10-01T09:00:00.000+0000")})
	p := NewPoller(NewClient(srv.URL, "svc", "secret"), 10, zap.NewNop())

	records, rejected, err := p.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ACC-OK", records[0].AccountID)

	require.Len(t, rejected, 1)
	assert.Equal(t, "crm", rejected[0].Source)
	assert.Equal(t, "ACC-BAD", rejected[0].AccountID)
	assert.Equal(t, account.FieldRenewalDate, rejected[0].Field)
	assert.Contains(t, rejected[0].Reason, "15/01/2027")
}

func TestPollReportsAPIError(t *testing.T) {
	srv, _ := fakeCRM(t, nil)
	p := NewPoller(NewClient(srv.URL, "svc", "wrong"), 10, zap.NewNop())

	_, _, err := p.Poll(context.Background())
	assert.ErrorContains(t, err, "CRM API error 401")
	assert.Nil(t, p.GetCheckpoint())
}

func TestPing(t *testing.T) {
	srv, _ := fakeCRM(t, nil)
	assert.NoError(t, NewClient(srv.URL, "svc", "secret").Ping(context.Background()))
	assert.Error(t, NewClient(srv.URL, "", "").Ping(context.Background()))
}

func TestToRecord(t *testing.T) {
	renewal := "2027-01-15"
	a := Account{ID: "ACC-9", Name: "Initech", Industry: "SaaS", NPS: account.Float(-100), RenewalDate: &renewal}

	rec, err := ToRecord(a)
	require.NoError(t, err)
	assert.Equal(t, "Initech", rec.Name)
	assert.Equal(t, 0.0, *rec.Sentiment)
	assert.Equal(t, *account.Date(2027, time.January, 15), *rec.RenewalDate)
	assert.Nil(t, rec.ARR)
	assert.Contains(t, rec.MissingFields(), account.FieldARR)
}

func TestNormalizeNPS(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeNPS(-100))
	assert.Equal(t, 50.0, NormalizeNPS(0))
	assert.Equal(t, 100.0, NormalizeNPS(100))
	assert.Equal(t, 110.0, NormalizeNPS(120))
}
