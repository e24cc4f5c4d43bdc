package agenthub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. Contract writes wait for a receipt, so it is longer than
// a plain read would need.
const DefaultHTTPTimeout = 90 * time.Second

// Client wraps the HTTP interactions with the AgentHub REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Session mirrors the wallet session state reported by the server.
type Session struct {
	Account         string `json:"account"`
	ChainID         string `json:"chainId,omitempty"`
	IsWrongNetwork  bool   `json:"isWrongNetwork"`
	Status          string `json:"status"`
	HasContract     bool   `json:"hasContract"`
	ContractAddress string `json:"contractAddress,omitempty"`
}

// Notification is the transient user-facing message attached to the session.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionState is returned by every session endpoint.
type SessionState struct {
	Session      Session       `json:"session"`
	Notification *Notification `json:"notification,omitempty"`
	WrongNetwork *bool         `json:"wrongNetwork,omitempty"`
}

// Agent is a marketplace listing read from the registry contract.
type Agent struct {
	ID            uint64   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PricePerMonth *big.Int `json:"price_per_month"`
	Integrations  []string `json:"integrations"`
	Features      []string `json:"features"`
	IsActive      bool     `json:"is_active"`
}

// SubscriptionDetails is the subscription window of one account for one agent.
type SubscriptionDetails struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Active bool      `json:"active"`
}

// SubscribedAgent pairs an agent with the caller's subscription.
type SubscribedAgent struct {
	Agent
	Subscription SubscriptionDetails `json:"subscription"`
}

// Subscription answers whether an account holds an active subscription.
type Subscription struct {
	AgentID uint64               `json:"agentId"`
	Account string               `json:"account"`
	Active  bool                 `json:"active"`
	Details *SubscriptionDetails `json:"details,omitempty"`
}

// FeatureRequest is a community request stored on chain.
type FeatureRequest struct {
	Index        uint64   `json:"index"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	PriceOffered *big.Int `json:"price_offered"`
	Requester    string   `json:"requester"`
	Upvotes      uint64   `json:"upvotes"`
	Status       int      `json:"status"`
	StatusName   string   `json:"status_name"`
	Upvoted      *bool    `json:"upvoted,omitempty"`
}

// NewFeatureRequest is the payload for submitting a feature request.
type NewFeatureRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// TxResult describes a confirmed contract write.
type TxResult struct {
	RecordID    string `json:"recordId,omitempty"`
	Method      string `json:"method"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
}

// Rates holds the latest spot prices.
type Rates struct {
	FlowUSD   decimal.Decimal            `json:"flow_usd"`
	USDTUSD   decimal.Decimal            `json:"usdt_usd"`
	USDTFiat  map[string]decimal.Decimal `json:"usdt_fiat"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// Conversion is the fiat price of an amount paid in FLOW or USDT.
type Conversion struct {
	Amount   decimal.Decimal `json:"amount"`
	Payment  string          `json:"payment"`
	Currency string          `json:"currency"`
	Price    decimal.Decimal `json:"price"`
}

// Transaction is one journaled contract write.
type Transaction struct {
	ID          string `json:"id"`
	Account     string `json:"account"`
	Method      string `json:"method"`
	Args        string `json:"args,omitempty"`
	ValueWei    string `json:"value_wei,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Status      string `json:"status"`
	ErrorCode   string `json:"error_code,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agenthub api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agenthub api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the AgentHub API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// Session returns the current wallet session.
func (c *Client) Session(ctx context.Context) (SessionState, error) {
	var state SessionState
	err := c.get(ctx, "/api/v1/session", nil, &state)
	return state, err
}

// Connect asks the server to request accounts from the wallet.
func (c *Client) Connect(ctx context.Context) (SessionState, error) {
	var state SessionState
	err := c.post(ctx, "/api/v1/session/connect", nil, &state)
	return state, err
}

// Disconnect clears the server side session.
func (c *Client) Disconnect(ctx context.Context) (SessionState, error) {
	var state SessionState
	err := c.post(ctx, "/api/v1/session/disconnect", nil, &state)
	return state, err
}

// CheckNetwork reports whether the wallet is on the wrong chain.
func (c *Client) CheckNetwork(ctx context.Context) (bool, error) {
	var state SessionState
	if err := c.post(ctx, "/api/v1/session/network/check", nil, &state); err != nil {
		return false, err
	}
	if state.WrongNetwork != nil {
		return *state.WrongNetwork, nil
	}
	return state.Session.IsWrongNetwork, nil
}

// SwitchNetwork moves the wallet to the required chain.
func (c *Client) SwitchNetwork(ctx context.Context) (SessionState, error) {
	var state SessionState
	err := c.post(ctx, "/api/v1/session/network/switch", nil, &state)
	return state, err
}

// Notification returns the active notification, or nil when there is none.
func (c *Client) Notification(ctx context.Context) (*Notification, error) {
	var note Notification
	found, err := c.doJSON(ctx, http.MethodGet, "/api/v1/notification", nil, nil, &note)
	if err != nil || !found {
		return nil, err
	}
	return &note, nil
}

// AgentFilter narrows the agent listing.
type AgentFilter struct {
	Query       string
	Integration string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	ActiveOnly  bool
	Size        int
}

func (f AgentFilter) values() url.Values {
	q := url.Values{}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Integration != "" {
		q.Set("integration", f.Integration)
	}
	if f.MinPrice != nil {
		q.Set("min_price", f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		q.Set("max_price", f.MaxPrice.String())
	}
	if f.ActiveOnly {
		q.Set("active", "true")
	}
	if f.Size > 0 {
		q.Set("size", strconv.Itoa(f.Size))
	}
	return q
}

// ListAgents scans the registry and returns the agents matching filter.
func (c *Client) ListAgents(ctx context.Context, filter AgentFilter) ([]Agent, error) {
	var agents []Agent
	err := c.get(ctx, "/api/v1/agents", filter.values(), &agents)
	return agents, err
}

// SubscribedAgents returns the agents the account subscribes to. An empty
// account means the connected wallet.
func (c *Client) SubscribedAgents(ctx context.Context, account string) ([]SubscribedAgent, error) {
	q := url.Values{}
	if account != "" {
		q.Set("account", account)
	}
	var agents []SubscribedAgent
	err := c.get(ctx, "/api/v1/agents/subscribed", q, &agents)
	return agents, err
}

// GetAgent fetches a single agent.
func (c *Client) GetAgent(ctx context.Context, id uint64) (Agent, error) {
	var agent Agent
	err := c.get(ctx, "/api/v1/agents/"+strconv.FormatUint(id, 10), nil, &agent)
	return agent, err
}

// Subscription checks the subscription of account for agent id.
func (c *Client) Subscription(ctx context.Context, id uint64, account string) (Subscription, error) {
	q := url.Values{}
	if account != "" {
		q.Set("account", account)
	}
	var sub Subscription
	err := c.get(ctx, "/api/v1/agents/"+strconv.FormatUint(id, 10)+"/subscription", q, &sub)
	return sub, err
}

// Subscribe purchases a subscription. A nil price pays the listed monthly
// price.
func (c *Client) Subscribe(ctx context.Context, id uint64, price *decimal.Decimal) (TxResult, error) {
	var result TxResult
	body := struct {
		Price *decimal.Decimal `json:"price,omitempty"`
	}{Price: price}
	err := c.post(ctx, "/api/v1/agents/"+strconv.FormatUint(id, 10)+"/subscribe", body, &result)
	return result, err
}

// GetFeatureRequest fetches a feature request by index.
func (c *Client) GetFeatureRequest(ctx context.Context, index uint64) (FeatureRequest, error) {
	var req FeatureRequest
	err := c.get(ctx, "/api/v1/feature-requests/"+strconv.FormatUint(index, 10), nil, &req)
	return req, err
}

// SubmitFeatureRequest submits a feature request with the offered price.
func (c *Client) SubmitFeatureRequest(ctx context.Context, req NewFeatureRequest) (TxResult, error) {
	var result TxResult
	err := c.post(ctx, "/api/v1/feature-requests", req, &result)
	return result, err
}

// Upvote upvotes a feature request.
func (c *Client) Upvote(ctx context.Context, index uint64) (TxResult, error) {
	var result TxResult
	err := c.post(ctx, "/api/v1/feature-requests/"+strconv.FormatUint(index, 10)+"/upvote", nil, &result)
	return result, err
}

// Prices returns the latest cached rates.
func (c *Client) Prices(ctx context.Context) (Rates, error) {
	var rates Rates
	err := c.get(ctx, "/api/v1/prices", nil, &rates)
	return rates, err
}

// Convert prices amount of payment in the given fiat currency.
func (c *Client) Convert(ctx context.Context, amount decimal.Decimal, payment, currency string) (Conversion, error) {
	q := url.Values{}
	q.Set("amount", amount.String())
	if payment != "" {
		q.Set("payment", payment)
	}
	if currency != "" {
		q.Set("currency", currency)
	}
	var conv Conversion
	err := c.get(ctx, "/api/v1/prices/convert", q, &conv)
	return conv, err
}

// OnrampURL builds the fiat on-ramp link for address. An empty address uses
// the connected wallet.
func (c *Client) OnrampURL(ctx context.Context, address string, amount decimal.Decimal, redirectURL string) (string, error) {
	q := url.Values{}
	if address != "" {
		q.Set("address", address)
	}
	if amount.IsPositive() {
		q.Set("amount", amount.String())
	}
	if redirectURL != "" {
		q.Set("redirect_url", redirectURL)
	}
	var out struct {
		URL string `json:"url"`
	}
	err := c.get(ctx, "/api/v1/onramp", q, &out)
	return out.URL, err
}

// TransactionFilter narrows the transaction journal query.
type TransactionFilter struct {
	Account  string
	Method   string
	Statuses []string
	Limit    int
	Offset   int
}

// Transactions lists journaled contract writes.
func (c *Client) Transactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	q := url.Values{}
	if filter.Account != "" {
		q.Set("account", filter.Account)
	}
	if filter.Method != "" {
		q.Set("method", filter.Method)
	}
	if len(filter.Statuses) > 0 {
		q.Set("status", strings.Join(filter.Statuses, ","))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}
	var records []Transaction
	err := c.get(ctx, "/api/v1/transactions", q, &records)
	return records, err
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	_, err := c.doJSON(ctx, http.MethodPost, endpoint, nil, payload, out)
	return err
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	_, err := c.doJSON(ctx, http.MethodGet, endpoint, query, nil, out)
	return err
}

// doJSON reports false when the server answered 204 No Content.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, query url.Values, payload any, out any) (bool, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return false, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return false, &apiErr
	}
	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return true, nil
}
