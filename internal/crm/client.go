package crm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// TimeLayout is the timestamp format of the CRM API.
const TimeLayout = "2006-01-02T15:04:05.000-0700"

// Client is a CRM REST API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	authHeader string
}

// NewClient creates a new CRM client
func NewClient(baseURL, username, password string) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	if username != "" && password != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		c.authHeader = "Basic " + auth
	}
	return c
}

// Account is an account as exposed by the CRM. Scores arrive in CRM units:
// NPS on -100..100, engagement and support on 0..100.
type Account struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Industry             string   `json:"industry"`
	Tier                 string   `json:"tier"`
	Owner                string   `json:"owner"`
	ARR                  *float64 `json:"arr"`
	EngagementScore      *float64 `json:"engagementScore"`
	NPS                  *float64 `json:"nps"`
	SupportScore         *float64 `json:"supportScore"`
	DaysSinceLastContact *int     `json:"daysSinceLastContact"`
	RenewalDate          *string  `json:"renewalDate"`
	UpdatedAt            string   `json:"updatedAt"`
}

// GetAccounts queries accounts updated after the given time, oldest first
func (c *Client) GetAccounts(ctx context.Context, updatedAfter *time.Time, firstResult, maxResults int) ([]Account, error) {
	q := url.Values{}
	q.Set("sortBy", "updatedAt")
	q.Set("sortOrder", "asc")
	q.Set("firstResult", strconv.Itoa(firstResult))
	q.Set("maxResults", strconv.Itoa(maxResults))
	if updatedAfter != nil {
		q.Set("updatedAfter", updatedAfter.Format(TimeLayout))
	}

	var result []Account
	if err := c.get(ctx, c.baseURL+"/accounts?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) get(ctx context.Context, url string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("CRM API error %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// Ping checks connectivity to the CRM
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return err
	}
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("CRM ping failed with status %d", resp.StatusCode)
	}
	return nil
}
