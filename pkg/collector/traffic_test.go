package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-reports/pkg/metricsdb"
	"github.com/fortiblox/stratus-reports/pkg/rpcfetch"
)

func TestCollectTraffic(t *testing.T) {
	dir := t.TempDir()
	chain := &fakeChain{
		getClusterNodes: func(context.Context) ([]rpcfetch.ClusterNode, error) {
			return []rpcfetch.ClusterNode{
				{Pubkey: hostPubkey},
				{Pubkey: stakePubkey},
				{Pubkey: "not-a-key"},
			}, nil
		},
	}
	metrics := &fakeMetrics{
		series: map[string]*metricsdb.Series{
			metricsdb.MeasurementQuicForwards + `" WHERE "host_id"='` + hostPubkey: {
				Columns: []string{"time", "host_id", "forwarded"},
				Values: [][]interface{}{
					{1724506671000.0, hostPubkey, 12.0},
					{1724506672000.0, hostPubkey, 7.0},
				},
			},
			metricsdb.MeasurementSigverify + `" WHERE "host_id"='` + hostPubkey: {
				Columns: []string{"time", "host_id", "total_packets", "total_valid_packets"},
				Values:  [][]interface{}{{1724506671000.0, hostPubkey, 100.0, 98.0}},
			},
		},
	}

	since := time.UnixMilli(1724506671000)
	results, err := CollectTraffic(context.Background(), newSources(chain, metrics), TrafficConfig{
		Since:   since,
		Dir:     dir,
		Workers: 2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, StatusOK, results[0].Status)
	require.Equal(t, 2, results[0].QuicRows)
	require.Equal(t, 1, results[0].SigverifyRows)
	require.Equal(t, filepath.Join(dir, hostPubkey+".csv"), results[0].Path)

	require.Equal(t, StatusMissing, results[1].Status)
	require.Empty(t, results[1].Path)

	data, err := os.ReadFile(results[0].Path)
	require.NoError(t, err)
	require.Equal(t, strings.Join([]string{
		"time,host_id,forwarded",
		"1724506671000," + hostPubkey + ",12",
		"1724506672000," + hostPubkey + ",7",
		"time,host_id,total_packets,total_valid_packets",
		"1724506671000," + hostPubkey + ",100,98",
		"",
	}, "\n"), string(data))

	_, err = os.Stat(filepath.Join(dir, stakePubkey+".csv"))
	require.True(t, os.IsNotExist(err))

	for _, q := range metrics.queries {
		require.Contains(t, q, `"time">=1724506671000ms`)
	}
}

func TestCollectTrafficFailedNode(t *testing.T) {
	metrics := &fakeMetrics{fail: &metricsdb.StatusError{StatusCode: 502}}
	results, err := CollectTraffic(context.Background(), newSources(&fakeChain{}, metrics), TrafficConfig{
		Dir:        t.TempDir(),
		Identities: leaders(hostPubkey),
	})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, results[0].Status)
	// Two series, three attempts each.
	require.Len(t, metrics.queries, 6)
}

func TestCollectTrafficNodesUnavailable(t *testing.T) {
	chain := &fakeChain{
		getClusterNodes: func(context.Context) ([]rpcfetch.ClusterNode, error) {
			return nil, errors.New("down")
		},
	}
	_, err := CollectTraffic(context.Background(), newSources(chain, &fakeMetrics{}), TrafficConfig{Dir: t.TempDir()})
	require.ErrorContains(t, err, "get cluster nodes")
}
