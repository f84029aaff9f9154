package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vault-scanner/internal/types"
)

// Log lines carrying decoded program events. The gateway service decodes
// program events from raw transaction data and re-emits them as prefixed
// JSON lines, one event per line.
const (
	depositorEventPrefix = "vault_depositor_event: "
	depositEventPrefix   = "protocol_deposit_event: "
	protocolErrorPrefix  = "protocol_error: "
)

// GatewayClient talks to the program gateway, the HTTP service that wraps
// the on-chain program SDK. It implements LogSource, both event parsers and
// VaultReader.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGatewayClient creates a gateway client for the given base URL.
func NewGatewayClient(baseURL string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchLogs returns one page of transaction logs for an address, newest
// first. beforeTx and untilTx are optional exclusive bounds.
func (c *GatewayClient) FetchLogs(ctx context.Context, address, beforeTx, untilTx string) (*LogPage, error) {
	query := url.Values{}
	if beforeTx != "" {
		query.Set("before", beforeTx)
	}
	if untilTx != "" {
		query.Set("until", untilTx)
	}

	var page LogPage
	endpoint := fmt.Sprintf("/addresses/%s/logs", url.PathEscape(address))
	if err := c.get(ctx, endpoint, query, &page); err != nil {
		return nil, fmt.Errorf("failed to fetch logs for %s: %w", address, err)
	}

	return &page, nil
}

// ParseDepositorEvents decodes vault depositor events from a transaction
// log. Lines that are not depositor events are skipped; malformed event
// lines are skipped too, since other programs can emit arbitrary log text.
func (c *GatewayClient) ParseDepositorEvents(log TransactionLog) []DepositorEvent {
	var events []DepositorEvent
	for _, line := range log.Logs {
		payload, ok := strings.CutPrefix(line, depositorEventPrefix)
		if !ok {
			continue
		}

		var event DepositorEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		event.TxSig = log.TxSig
		event.Slot = log.Slot
		event.Ts = log.Ts
		events = append(events, event)
	}
	return events
}

// ParseDepositEvents decodes base-protocol deposit events from a transaction
// log. A protocol error line fails the whole parse and carries the raw error
// text, which callers inspect for the stale-oracle marker.
func (c *GatewayClient) ParseDepositEvents(log TransactionLog) ([]DepositEvent, error) {
	var events []DepositEvent
	for _, line := range log.Logs {
		if payload, ok := strings.CutPrefix(line, protocolErrorPrefix); ok {
			return nil, fmt.Errorf("protocol event decode failed: %s", payload)
		}

		payload, ok := strings.CutPrefix(line, depositEventPrefix)
		if !ok {
			continue
		}

		var event DepositEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("malformed deposit event in %s: %w", log.TxSig, err)
		}
		events = append(events, event)
	}
	return events, nil
}

// GetVaultState returns the vault account data and the slot it was read at.
func (c *GatewayClient) GetVaultState(ctx context.Context, vaultPubkey string) (*VaultState, error) {
	var state VaultState
	endpoint := fmt.Sprintf("/vaults/%s/state", url.PathEscape(vaultPubkey))
	if err := c.get(ctx, endpoint, nil, &state); err != nil {
		return nil, fmt.Errorf("failed to read vault state for %s: %w", vaultPubkey, err)
	}
	return &state, nil
}

// GetVaultEquity returns the vault's total account value in quote raw units.
func (c *GatewayClient) GetVaultEquity(ctx context.Context, vaultPubkey string) (decimal.Decimal, error) {
	var resp struct {
		Equity decimal.Decimal `json:"equity"`
	}
	endpoint := fmt.Sprintf("/vaults/%s/equity", url.PathEscape(vaultPubkey))
	if err := c.get(ctx, endpoint, nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to read vault equity for %s: %w", vaultPubkey, err)
	}
	return resp.Equity, nil
}

// GetOraclePrice returns the live oracle price for a market at price
// precision. The quote market always prices at one.
func (c *GatewayClient) GetOraclePrice(ctx context.Context, marketIndex int) (decimal.Decimal, error) {
	if marketIndex == types.QuoteMarketIndex {
		return types.UnitPrice(), nil
	}

	var resp struct {
		Price decimal.Decimal `json:"price"`
	}
	endpoint := fmt.Sprintf("/markets/%d/oracle-price", marketIndex)
	if err := c.get(ctx, endpoint, nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to read oracle price for market %d: %w", marketIndex, err)
	}
	return resp.Price, nil
}

// GetUserNetQuoteDeposits returns cumulative deposits minus withdraws in
// quote units for a base-protocol user account.
func (c *GatewayClient) GetUserNetQuoteDeposits(ctx context.Context, userPubkey string) (decimal.Decimal, error) {
	var resp struct {
		NetQuoteDeposits decimal.Decimal `json:"netQuoteDeposits"`
	}
	endpoint := fmt.Sprintf("/users/%s/net-quote-deposits", url.PathEscape(userPubkey))
	if err := c.get(ctx, endpoint, nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to read net quote deposits for %s: %w", userPubkey, err)
	}
	return resp.NetQuoteDeposits, nil
}

func (c *GatewayClient) get(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
