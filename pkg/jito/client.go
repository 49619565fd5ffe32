// Package jito reads MEV reward data from the Jito Kobe API and derives
// staking APY figures from it.
package jito

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the mainnet Kobe API.
const DefaultBaseURL = "https://kobe.mainnet.jito.network/api/v1"

// ErrMalformedResponse is returned when a response cannot be decoded.
var ErrMalformedResponse = errors.New("malformed kobe response")

// StatusError is returned for a non-200 response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kobe %s: http status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// NetworkRewards is the network-wide MEV summary of an epoch.
type NetworkRewards struct {
	Epoch                   uint64   `json:"epoch"`
	TotalNetworkMEVLamports float64  `json:"total_network_mev_lamports"`
	JitoStakeWeightLamports float64  `json:"jito_stake_weight_lamports"`
	MEVRewardPerLamport     *float64 `json:"mev_reward_per_lamport"`
}

// ValidatorRewards is one validator's MEV record for an epoch.
type ValidatorRewards struct {
	VoteAccount      string  `json:"vote_account"`
	ActiveStake      float64 `json:"active_stake"`
	MEVRewards       float64 `json:"mev_rewards"`
	MEVCommissionBps float64 `json:"mev_commission_bps"`
	RunningJito      bool    `json:"running_jito"`
}

type validatorsResponse struct {
	Validators []ValidatorRewards `json:"validators"`
}

type epochRequest struct {
	Epoch uint64 `json:"epoch"`
}

// Client talks to the Kobe API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// LatestRewards returns the most recent network summary. Its Epoch is the
// last completed epoch the API knows about.
func (c *Client) LatestRewards(ctx context.Context) (*NetworkRewards, error) {
	var out NetworkRewards
	if err := c.do(ctx, http.MethodGet, "mev_rewards", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NetworkRewards returns the network summary for epoch.
func (c *Client) NetworkRewards(ctx context.Context, epoch uint64) (*NetworkRewards, error) {
	var out NetworkRewards
	if err := c.do(ctx, http.MethodPost, "mev_rewards", epochRequest{Epoch: epoch}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validators returns every validator's MEV record for epoch.
func (c *Client) Validators(ctx context.Context, epoch uint64) ([]ValidatorRewards, error) {
	var out validatorsResponse
	if err := c.do(ctx, http.MethodPost, "validators", epochRequest{Epoch: epoch}, &out); err != nil {
		return nil, err
	}
	return out.Validators, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, result interface{}) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kobe %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kobe %s: read response: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		b := string(respBody)
		if len(b) > 256 {
			b = b[:256] + "..."
		}
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: b}
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("kobe %s: %w: %v", endpoint, ErrMalformedResponse, err)
	}
	return nil
}
