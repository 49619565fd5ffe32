package types

// VoteProgramAddr is the Vote Program address. Any transaction that
// references it is counted as a vote transaction.
var VoteProgramAddr = MustPubkeyFromBase58("Vote111111111111111111111111111111111111111")

// IsVoteProgram reports whether p is the vote program.
func IsVoteProgram(p Pubkey) bool {
	return p == VoteProgramAddr
}
