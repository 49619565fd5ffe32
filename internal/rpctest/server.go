// Package rpctest provides a mock JSON-RPC server for tests.
package rpctest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Error is returned by a handler to produce a JSON-RPC error with a code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

// Handler answers one JSON-RPC call.
type Handler func(method string, params []interface{}) (interface{}, error)

// Server is a mock JSON-RPC endpoint that counts calls per method.
type Server struct {
	*httptest.Server

	mu    sync.Mutex
	calls map[string]int
}

// NewServer starts a mock server and closes it when the test ends.
func NewServer(t testing.TB, handler Handler) *Server {
	t.Helper()

	s := &Server{calls: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string        `json:"jsonrpc"`
			ID      int64         `json:"id"`
			Method  string        `json:"method"`
			Params  []interface{} `json:"params"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.calls[req.Method]++
		s.mu.Unlock()

		result, err := handler(req.Method, req.Params)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}

		if err != nil {
			code := -32000
			var rpcErr *Error
			if errors.As(err, &rpcErr) {
				code = rpcErr.Code
			}
			resp["error"] = map[string]interface{}{
				"code":    code,
				"message": err.Error(),
			}
		} else {
			resp["result"] = result
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(s.Close)
	return s
}

// Calls returns how many times method was called.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Uint reads params[i] as an unsigned integer.
func Uint(params []interface{}, i int) uint64 {
	if i >= len(params) {
		return 0
	}
	if f, ok := params[i].(float64); ok {
		return uint64(f)
	}
	return 0
}

// Tx builds a getBlock transaction entry.
func Tx(signature string, computeUnits uint64, accountKeys ...string) map[string]interface{} {
	return map[string]interface{}{
		"transaction": map[string]interface{}{
			"signatures": []string{signature},
			"message": map[string]interface{}{
				"accountKeys":     accountKeys,
				"recentBlockhash": "11111111111111111111111111111111",
				"instructions":    []interface{}{},
			},
		},
		"meta": map[string]interface{}{
			"err":                  nil,
			"fee":                  5000,
			"computeUnitsConsumed": computeUnits,
		},
	}
}

// Reward builds a getBlock reward entry.
func Reward(pubkey string, lamports int64, rewardType string) map[string]interface{} {
	return map[string]interface{}{
		"pubkey":      pubkey,
		"lamports":    lamports,
		"postBalance": 1_000_000,
		"rewardType":  rewardType,
		"commission":  nil,
	}
}

// Block builds a getBlock result.
func Block(parent uint64, txs []map[string]interface{}, rewards []map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"blockhash":         "11111111111111111111111111111111",
		"previousBlockhash": "11111111111111111111111111111111",
		"parentSlot":        parent,
		"blockTime":         1700000000,
		"blockHeight":       parent + 1,
		"transactions":      txs,
		"rewards":           rewards,
	}
}
