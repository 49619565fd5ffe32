// Package rpcfetch is the JSON-RPC boundary of the reports.
//
// RPCClient issues single JSON-RPC 2.0 calls (getSlot, getBlock,
// getSlotLeaders, getEpochInfo, getEpochSchedule, getLeaderSchedule,
// getClusterNodes) against a Pool of endpoints. It does not retry or pace
// calls itself; callers wrap each call in retry.Do with the run's shared
// limiter. With several rpc_urls, FailoverPool keeps using the first one
// until it fails three times in a row, then moves down the list.
//
// # Connecting
//
// Dial builds a client and runs the connectivity probe: up to ten getSlot
// attempts with a two second pause after each failure. A probe that never
// succeeds yields a *ConnectivityError, which is the one error that aborts a
// report.
//
//	caller := retry.NewCaller(limiter, retry.DefaultPolicy(), logger)
//	client, slot, err := rpcfetch.Dial(ctx, urls, 30*time.Second, caller, rpcfetch.ProbeConfig{}, logger)
//	if err != nil {
//	    return err
//	}
//
// # Error classification
//
// IsSlotSkipped recognises ErrSlotSkipped and the -32009, -32007 and -32004
// RPC codes. Those mean the block does not exist and are reported as missing
// data rather than retried.
package rpcfetch
