// Package indexer implements explorer HTTP APIs that report native balances.
package indexer

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

const (
	// DefaultSolscanURL public Solscan API.
	DefaultSolscanURL = "https://public-api.solscan.io"

	defaultTimeout = 10 * time.Second
	maxBodySize    = 2 << 20
)

// SolscanClient reads lamport balances from a Solscan-style `GET /account?address=` endpoint.
type SolscanClient struct {
	baseURL string
	client  *http.Client
}

// NewSolscanClient creates a client. A nil httpClient uses a 10s timeout.
func NewSolscanClient(baseURL string, httpClient *http.Client) *SolscanClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultSolscanURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &SolscanClient{baseURL: baseURL, client: httpClient}
}

type solscanAccountResp struct {
	Lamports *json.Number `json:"lamports"`
}

// Balance returns the lamport balance of the address.
func (c *SolscanClient) Balance(ctx context.Context, address string) (*big.Int, error) {
	u := c.baseURL + "/account?address=" + url.QueryEscape(address)

	body, err := getJSON(ctx, c.client, u)
	if err != nil {
		return nil, err
	}

	var out solscanAccountResp
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.Wrapf(domain.ErrIndexerUnavailable, "decode solscan json: %v", err)
	}
	if out.Lamports == nil {
		return nil, errors.Wrap(domain.ErrIndexerUnavailable, "solscan response has no lamports field")
	}

	return parseUnits(out.Lamports.String())
}

func getJSON(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build indexer request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrIndexerUnavailable, "indexer request: %v", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrapf(domain.ErrIndexerUnavailable, "read indexer body: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrapf(domain.ErrIndexerUnavailable, "indexer http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	return b, nil
}

// parseUnits accepts only non-negative base-10 integers.
func parseUnits(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Wrapf(domain.ErrIndexerUnavailable, "malformed balance %q", s)
	}
	if n.Sign() < 0 {
		return nil, errors.Wrapf(domain.ErrIndexerUnavailable, "negative balance %q", s)
	}
	return n, nil
}
