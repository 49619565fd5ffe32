package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPubkeyRoundTrip(t *testing.T) {
	const vote = "Vote111111111111111111111111111111111111111"

	p, err := PubkeyFromBase58(vote)
	require.NoError(t, err)
	require.Equal(t, vote, p.String())
	require.True(t, IsVoteProgram(p))
	require.False(t, p.IsZero())
}

func TestPubkeyFromBase58Errors(t *testing.T) {
	_, err := PubkeyFromBase58("0OIl")
	require.Error(t, err)

	_, err = PubkeyFromBase58("1111")
	require.ErrorIs(t, err, ErrInvalidPubkey)
}

func TestZeroPubkey(t *testing.T) {
	p, err := PubkeyFromBase58("11111111111111111111111111111111")
	require.NoError(t, err)
	require.True(t, p.IsZero())
	require.False(t, IsVoteProgram(p))
}

func TestLamportsToSOL(t *testing.T) {
	require.Equal(t, 0.000005, LamportsToSOL(5000))
	require.Equal(t, 1.5, LamportsToSOL(1_500_000_000))
}
