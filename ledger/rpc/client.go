// Package rpc implements ledger.Reader over the ledger's JSON-RPC HTTP
// endpoints (account fetch and filtered program scan).
//
// The client carries timeout policy only. Retry policy belongs to callers;
// every transport-level failure is surfaced wrapped in ledger.ErrUnavailable
// so callers can apply backoff without misreading an outage as absence.
package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mr-tron/base58"

	"tensormart.io/market/ledger"
)

const defaultTimeout = 10 * time.Second

// Client talks to a single RPC endpoint for a single program.
type Client struct {
	endpoint string
	program  ledger.Address
	http     *http.Client

	// Timeout applies per call when the caller's context has no earlier
	// deadline.
	Timeout time.Duration
}

type Options struct {
	// HTTPClient overrides the transport. Nil uses http.DefaultClient.
	HTTPClient *http.Client

	// Timeout applies per RPC when non-zero. Default 10s.
	Timeout time.Duration
}

func New(endpoint string, program ledger.Address, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	t := opts.Timeout
	if t <= 0 {
		t = defaultTimeout
	}
	return &Client{endpoint: endpoint, program: program, http: hc, Timeout: t}
}

var _ ledger.Reader = (*Client)(nil)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type accountInfoResult struct {
	Value *accountValue `json:"value"`
}

type accountValue struct {
	Data []string `json:"data"`
}

type programAccount struct {
	Pubkey  string       `json:"pubkey"`
	Account accountValue `json:"account"`
}

func (c *Client) GetByAddress(ctx context.Context, addr ledger.Address) ([]byte, error) {
	var res accountInfoResult
	err := c.call(ctx, "getAccountInfo", []any{
		addr.String(),
		map[string]any{"encoding": "base64", "commitment": "confirmed"},
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, ledger.ErrNotFound
	}
	return decodeAccountData(res.Value.Data)
}

func (c *Client) Scan(ctx context.Context, filters []ledger.MemcmpFilter) ([]ledger.Entry, error) {
	rpcFilters := make([]any, 0, len(filters))
	for _, f := range filters {
		rpcFilters = append(rpcFilters, map[string]any{
			"memcmp": map[string]any{
				"offset": f.Offset,
				"bytes":  base58.Encode(f.Bytes),
			},
		})
	}

	var res []programAccount
	err := c.call(ctx, "getProgramAccounts", []any{
		c.program.String(),
		map[string]any{
			"encoding":   "base64",
			"commitment": "confirmed",
			"filters":    rpcFilters,
		},
	}, &res)
	if err != nil {
		return nil, err
	}

	entries := make([]ledger.Entry, 0, len(res))
	for _, acct := range res {
		addr, err := ledger.ParseAddress(acct.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("%w: scan returned bad address: %v", ledger.ErrUnavailable, err)
		}
		data, err := decodeAccountData(acct.Account.Data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ledger.Entry{Address: addr, Data: data})
	}
	return entries, nil
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%w: encode %s request: %v", ledger.ErrUnavailable, method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build %s request: %v", ledger.ErrUnavailable, method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ledger.ErrUnavailable, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: endpoint returned %s", ledger.ErrUnavailable, method, resp.Status)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", ledger.ErrUnavailable, method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%w: %s: rpc error %d: %s", ledger.ErrUnavailable, method, envelope.Error.Code, envelope.Error.Message)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("%w: %s: decode result: %v", ledger.ErrUnavailable, method, err)
	}
	return nil
}

// decodeAccountData unpacks the ["<base64>", "base64"] tuple the RPC
// endpoint uses for account bytes.
func decodeAccountData(data []string) ([]byte, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: account data missing", ledger.ErrUnavailable)
	}
	if len(data) >= 2 && data[1] != "base64" {
		return nil, fmt.Errorf("%w: unexpected account encoding %q", ledger.ErrUnavailable, data[1])
	}
	raw, err := base64.StdEncoding.DecodeString(data[0])
	if err != nil {
		return nil, fmt.Errorf("%w: account data base64: %v", ledger.ErrUnavailable, err)
	}
	return raw, nil
}
