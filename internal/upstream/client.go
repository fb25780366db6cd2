package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultTimeout = 15 * time.Second

// Client is a thin authenticated client for the processor's REST API.
// It does not retry; callers own retry policy.
type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Credentials authenticate one request. Account, when set, scopes the call to
// a connected upstream account.
type Credentials struct {
	Secret  string
	Account string
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Do performs one API call. GET params go into the query string, any other
// verb encodes them as a form body. A non-2xx response is returned as an
// *APIError; a 401 additionally satisfies errors.Is(err, ErrAuth).
func (c *Client) Do(ctx context.Context, creds Credentials, method, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path

	var body io.Reader

	if len(params) > 0 {
		if method == http.MethodGet {
			endpoint += "?" + params.Encode()
		} else {
			body = strings.NewReader(params.Encode())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+creds.Secret)

	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if creds.Account != "" {
		req.Header.Set("Stripe-Account", creds.Account)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}

		var envelope errorEnvelope
		if err := json.Unmarshal(data, &envelope); err == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}

		return nil, apiErr
	}

	return data, nil
}

// ListChargesParams bound one page of the charge list endpoint.
type ListChargesParams struct {
	Limit         int
	StartingAfter string
	CreatedGte    int64
	CreatedLte    int64
	ExpandIntent  bool
}

// ChargeList is one page of charges. Items are kept raw so the full payload
// can be persisted alongside the mapped row.
type ChargeList struct {
	Data    []json.RawMessage `json:"data"`
	HasMore bool              `json:"has_more"`
}

func (c *Client) ListCharges(ctx context.Context, creds Credentials, p ListChargesParams) (*ChargeList, error) {
	params := url.Values{}

	if p.Limit > 0 {
		params.Set("limit", strconv.Itoa(p.Limit))
	}

	if p.StartingAfter != "" {
		params.Set("starting_after", p.StartingAfter)
	}

	if p.CreatedGte > 0 {
		params.Set("created[gte]", strconv.FormatInt(p.CreatedGte, 10))
	}

	if p.CreatedLte > 0 {
		params.Set("created[lte]", strconv.FormatInt(p.CreatedLte, 10))
	}

	if p.ExpandIntent {
		params.Set("expand[]", "data.payment_intent")
	}

	data, err := c.Do(ctx, creds, http.MethodGet, "/v1/charges", params)
	if err != nil {
		return nil, fmt.Errorf("listing charges: %w", err)
	}

	var list ChargeList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decoding charge list: %w", err)
	}

	return &list, nil
}

// Account is the subset of the account endpoint used for connectivity checks.
type Account struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Country        string `json:"country"`
	ChargesEnabled bool   `json:"charges_enabled"`
}

func (c *Client) GetAccount(ctx context.Context, creds Credentials) (*Account, error) {
	data, err := c.Do(ctx, creds, http.MethodGet, "/v1/account", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}

	var account Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("decoding account: %w", err)
	}

	return &account, nil
}

// BalanceAmount is one currency bucket of the balance endpoint.
type BalanceAmount struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Balance struct {
	Available []BalanceAmount `json:"available"`
	Pending   []BalanceAmount `json:"pending"`
}

func (c *Client) GetBalance(ctx context.Context, creds Credentials) (*Balance, error) {
	data, err := c.Do(ctx, creds, http.MethodGet, "/v1/balance", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching balance: %w", err)
	}

	var balance Balance
	if err := json.Unmarshal(data, &balance); err != nil {
		return nil, fmt.Errorf("decoding balance: %w", err)
	}

	return &balance, nil
}
