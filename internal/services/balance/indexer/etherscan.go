package indexer

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// DefaultEtherscanURL public Etherscan API.
const DefaultEtherscanURL = "https://api.etherscan.io"

// EtherscanClient reads wei balances from the Etherscan account module.
type EtherscanClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewEtherscanClient creates a client. apiKey may be empty for the keyless tier.
func NewEtherscanClient(baseURL, apiKey string, httpClient *http.Client) *EtherscanClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultEtherscanURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &EtherscanClient{baseURL: baseURL, apiKey: apiKey, client: httpClient}
}

type etherscanBalanceResp struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// Balance returns the wei balance of the address.
func (c *EtherscanClient) Balance(ctx context.Context, address string) (*big.Int, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "balance")
	q.Set("address", address)
	q.Set("tag", "latest")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	body, err := getJSON(ctx, c.client, c.baseURL+"/api?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var out etherscanBalanceResp
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.Wrapf(domain.ErrIndexerUnavailable, "decode etherscan json: %v", err)
	}
	// status "0" carries rate limit or key errors in result
	if out.Status != "1" {
		return nil, errors.Wrapf(domain.ErrIndexerUnavailable, "etherscan status %q: %s %s", out.Status, out.Message, out.Result)
	}

	return parseUnits(out.Result)
}
