package rpcfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fortiblox/stratus-reports/internal/types"
)

// RPCClient handles JSON-RPC requests to Solana endpoints.
type RPCClient struct {
	httpClient *http.Client
	pool       Pool
	nextID     atomic.Int64
}

// NewRPCClient creates a new RPC client with the given pool.
func NewRPCClient(pool Pool, timeout time.Duration) *RPCClient {
	return &RPCClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		pool: pool,
	}
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC error.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// call makes one JSON-RPC call on the pool's current endpoint.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	endpoint, err := c.pool.Next(ctx)
	if err != nil {
		return fmt.Errorf("get endpoint: %w", err)
	}

	start := time.Now()

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.pool.Failed(endpoint.URL, err)
		return fmt.Errorf("%s: http request: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.pool.Failed(endpoint.URL, err)
		return fmt.Errorf("%s: read response: %w", method, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.pool.Failed(endpoint.URL, fmt.Errorf("status %d", resp.StatusCode))
		return &HTTPError{Method: method, StatusCode: resp.StatusCode, Body: truncate(respBody, 256)}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		c.pool.Failed(endpoint.URL, err)
		return fmt.Errorf("%s: %w: %v", method, ErrMalformedResponse, err)
	}

	if rpcResp.Error != nil {
		// RPC errors are not endpoint health issues
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%s: %w: %v", method, ErrMalformedResponse, err)
		}
	}

	c.pool.Succeeded(endpoint.URL, time.Since(start))
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func commitmentConfig(commitment string) map[string]interface{} {
	if commitment == "" {
		commitment = "finalized"
	}
	return map[string]interface{}{"commitment": commitment}
}

// GetSlot fetches the current slot from the cluster.
func (c *RPCClient) GetSlot(ctx context.Context, commitment string) (uint64, error) {
	params := []interface{}{commitmentConfig(commitment)}

	var slot uint64
	if err := c.call(ctx, "getSlot", params, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// GetBlock fetches a block by slot with full transaction details and rewards.
func (c *RPCClient) GetBlock(ctx context.Context, slot uint64) (*Block, error) {
	params := []interface{}{
		slot,
		map[string]interface{}{
			"encoding":                       "json",
			"transactionDetails":             "full",
			"maxSupportedTransactionVersion": 0,
			"rewards":                        true,
		},
	}

	var blockResp *blockResponse
	if err := c.call(ctx, "getBlock", params, &blockResp); err != nil {
		return nil, err
	}

	if blockResp == nil {
		return nil, ErrSlotSkipped
	}

	return convertBlockResponse(slot, blockResp)
}

// GetSlotLeaders returns the leaders for limit slots starting at start.
func (c *RPCClient) GetSlotLeaders(ctx context.Context, start, limit uint64) ([]types.Pubkey, error) {
	var raw []string
	if err := c.call(ctx, "getSlotLeaders", []interface{}{start, limit}, &raw); err != nil {
		return nil, err
	}

	leaders := make([]types.Pubkey, len(raw))
	for i, s := range raw {
		pk, err := types.PubkeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("getSlotLeaders: %w: leader %d: %v", ErrMalformedResponse, i, err)
		}
		leaders[i] = pk
	}
	return leaders, nil
}

// EpochInfo is the getEpochInfo result.
type EpochInfo struct {
	AbsoluteSlot     uint64 `json:"absoluteSlot"`
	BlockHeight      uint64 `json:"blockHeight"`
	Epoch            uint64 `json:"epoch"`
	SlotIndex        uint64 `json:"slotIndex"`
	SlotsInEpoch     uint64 `json:"slotsInEpoch"`
	TransactionCount uint64 `json:"transactionCount"`
}

// GetEpochInfo fetches the current epoch position.
func (c *RPCClient) GetEpochInfo(ctx context.Context, commitment string) (*EpochInfo, error) {
	var info EpochInfo
	if err := c.call(ctx, "getEpochInfo", []interface{}{commitmentConfig(commitment)}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetEpochSchedule fetches the cluster's epoch schedule.
func (c *RPCClient) GetEpochSchedule(ctx context.Context) (*EpochSchedule, error) {
	var sched EpochSchedule
	if err := c.call(ctx, "getEpochSchedule", nil, &sched); err != nil {
		return nil, err
	}
	return &sched, nil
}

// GetLeaderSchedule returns the slot offsets, relative to the first slot of the
// epoch containing slot, at which identity is leader.
func (c *RPCClient) GetLeaderSchedule(ctx context.Context, slot uint64, identity types.Pubkey) ([]uint64, error) {
	params := []interface{}{
		slot,
		map[string]interface{}{"identity": identity.String()},
	}

	var sched map[string][]uint64
	if err := c.call(ctx, "getLeaderSchedule", params, &sched); err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, ErrLeaderScheduleNotFound
	}
	return sched[identity.String()], nil
}

// ClusterNode is one entry of getClusterNodes.
type ClusterNode struct {
	Pubkey       string  `json:"pubkey"`
	Gossip       *string `json:"gossip"`
	TPU          *string `json:"tpu"`
	TPUQUIC      *string `json:"tpuQuic"`
	RPC          *string `json:"rpc"`
	Version      *string `json:"version"`
	FeatureSet   *uint32 `json:"featureSet"`
	ShredVersion *uint16 `json:"shredVersion"`
}

// GetClusterNodes lists the nodes participating in the cluster.
func (c *RPCClient) GetClusterNodes(ctx context.Context) ([]ClusterNode, error) {
	var nodes []ClusterNode
	if err := c.call(ctx, "getClusterNodes", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}
