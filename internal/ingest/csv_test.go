package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refset/account-health/internal/account"
)

func TestReadCSV(t *testing.T) {
	input := `account_id,name,industry,arr,product_engagement_score,sentiment_score,support_volume_score,days_since_last_contact,renewal_date,csm_notes
ACC-001,Acme Corp,FinTech,"300,000",80,60,50,12,2027-01-15,renewing
ACC-002,Globex,Healthcare,120000,40,,70,95,2026-11-30,
ACC-003,Initech,SaaS,abc,40,50,70,95,2026-11-30,
`
	res, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, res.Records, 2)
	acme := res.Records[0]
	assert.Equal(t, "ACC-001", acme.AccountID)
	assert.Equal(t, "Acme Corp", acme.Name)
	assert.Equal(t, "FinTech", acme.Industry)
	require.NotNil(t, acme.ARR)
	assert.Equal(t, 300000.0, *acme.ARR)
	assert.Equal(t, 80.0, *acme.ProductEngagement)
	assert.Equal(t, 12, *acme.DaysSinceLastContact)
	assert.Equal(t, time.Date(2027, time.January, 15, 0, 0, 0, 0, time.UTC), *acme.RenewalDate)
	assert.Empty(t, acme.MissingFields())

	globex := res.Records[1]
	assert.Nil(t, globex.Sentiment)
	assert.Equal(t, []string{account.FieldSentiment}, globex.MissingFields())

	require.Len(t, res.Errors, 1)
	assert.Equal(t, 4, res.Errors[0].Line)
	assert.Equal(t, "ACC-003", res.Errors[0].AccountID)
	assert.Equal(t, account.FieldARR, res.Errors[0].Column)
	assert.Contains(t, res.Errors[0].Error(), "line 4")
}

func TestReadCSVColumnOrderAndCase(t *testing.T) {
	input := `Renewal_Date,ARR,Account_ID,Industry,Support_Volume_Score,Sentiment_Score,Product_Engagement_Score,Days_Since_Last_Contact
2026-12-01,5000,X-1,Retail,10,20,30,1
`
	res, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "X-1", res.Records[0].AccountID)
	assert.Equal(t, 30.0, *res.Records[0].ProductEngagement)
	assert.Equal(t, 10.0, *res.Records[0].SupportVolume)
}

func TestReadCSVRaggedRows(t *testing.T) {
	input := "account_id,industry,arr\nR-1,Retail\n"
	res, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Nil(t, res.Records[0].ARR)
}

func TestReadCSVHeaderErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("name,arr\nAcme,100\n"))
	assert.ErrorContains(t, err, "account_id")
}

func TestReadCSVBadDate(t *testing.T) {
	input := "account_id,renewal_date\nD-1,15/01/2027\n"
	res, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, account.FieldRenewalDate, res.Errors[0].Column)
}

func TestResultRejections(t *testing.T) {
	input := "account_id,arr,renewal_date\nR-1,abc,2027-01-01\nR-2,100,2027-01-01\nR-3,100,2027-02-30\n"
	res, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rejected := res.Rejections()
	require.Len(t, rejected, 2)
	assert.Equal(t, account.Rejection{Source: "csv", Line: 2, AccountID: "R-1", Field: account.FieldARR, Reason: res.Errors[0].Err.Error()}, rejected[0])
	assert.Equal(t, 4, rejected[1].Line)
	assert.Equal(t, account.FieldRenewalDate, rejected[1].Field)

	assert.NotNil(t, Result{}.Rejections())
}
