package jito

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAPY(t *testing.T) {
	require.Equal(t, 0.0, APY(100, 0))
	require.Equal(t, 0.0, APY(0, 1e9))

	want := math.Round((math.Pow(1.001, EpochsPerYear)-1)*1e4) / 1e4
	require.Equal(t, want, APY(1e6, 1e9))
}

func TestTrueAPY(t *testing.T) {
	require.Equal(t, APY(1e6, 1e9), TrueAPY(1e6, 1e9, 0))
	require.Equal(t, APY(9e5, 1e9), TrueAPY(1e6, 1e9, 1000))
	require.Equal(t, 0.0, TrueAPY(1e6, 1e9, BpsDenominator))
	require.Equal(t, 0.0, TrueAPY(1e6, 0, 500))
}

func TestMedian(t *testing.T) {
	require.Equal(t, 0.0, Median(nil))
	require.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	require.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))

	in := []float64{3, 1, 2}
	Median(in)
	require.Equal(t, []float64{3, 1, 2}, in)
}

func TestNetworkAPY(t *testing.T) {
	_, ok := NetworkAPY(nil)
	require.False(t, ok)

	got, ok := NetworkAPY([]float64{0.0000412, 0.00005, 0.0000398})
	require.True(t, ok)
	// The median 0.0000412 is rounded to 0.00004 before compounding.
	require.InDelta(t, math.Pow(1.00004, EpochsPerYear)-1, got, 1e-12)
}

func TestClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/v1/mev_rewards" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"epoch":701,"total_network_mev_lamports":1.5e12,"jito_stake_weight_lamports":3e17,"mev_reward_per_lamport":5e-6}`))
		case r.URL.Path == "/api/v1/mev_rewards" && r.Method == http.MethodPost:
			var req epochRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.Epoch == 1 {
				_, _ = w.Write([]byte(`{"epoch":1,"mev_reward_per_lamport":null}`))
				return
			}
			_, _ = w.Write([]byte(`{"epoch":700,"mev_reward_per_lamport":4e-6}`))
		case r.URL.Path == "/api/v1/validators" && r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"validators":[{"vote_account":"v1","active_stake":1000,"mev_rewards":5,"mev_commission_bps":800,"running_jito":true}]}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/v1/", 5*time.Second)
	ctx := context.Background()

	latest, err := c.LatestRewards(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(701), latest.Epoch)
	require.NotNil(t, latest.MEVRewardPerLamport)

	nr, err := c.NetworkRewards(ctx, 700)
	require.NoError(t, err)
	require.Equal(t, 4e-6, *nr.MEVRewardPerLamport)

	nr, err = c.NetworkRewards(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, nr.MEVRewardPerLamport)

	vs, err := c.Validators(ctx, 700)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	require.Equal(t, 800.0, vs[0].MEVCommissionBps)
}

func TestClientErrors(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "try later", status)
			return
		}
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	_, err := c.LatestRewards(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.True(t, IsRetryable(err))

	status = http.StatusBadRequest
	_, err = c.LatestRewards(context.Background())
	require.False(t, IsRetryable(err))

	status = http.StatusOK
	_, err = c.Validators(context.Background(), 1)
	require.ErrorIs(t, err, ErrMalformedResponse)
	require.False(t, IsRetryable(err))
}
