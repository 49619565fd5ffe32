package rpcfetch

import (
	"encoding/json"
	"fmt"

	"github.com/fortiblox/stratus-reports/internal/types"
)

// RewardType classifies a block reward.
type RewardType string

// Reward types reported by getBlock.
const (
	RewardTypeFee         RewardType = "Fee"
	RewardTypeRent        RewardType = "Rent"
	RewardTypeStaking     RewardType = "Staking"
	RewardTypeVoting      RewardType = "Voting"
	RewardTypeUnspecified RewardType = ""
)

// Block is the part of a confirmed block the reports consume.
type Block struct {
	Slot         uint64
	ParentSlot   uint64
	Blockhash    types.Hash
	BlockTime    *int64
	BlockHeight  *uint64
	Transactions []Transaction
	Rewards      []Reward
}

// Transaction is a confirmed transaction with execution metadata.
type Transaction struct {
	Signature            string
	AccountKeys          []types.Pubkey
	Fee                  uint64
	ComputeUnitsConsumed uint64
	Failed               bool
	IsVote               bool
}

// Reward is a lamport credit recorded in a block.
type Reward struct {
	Pubkey      types.Pubkey
	Lamports    int64
	PostBalance uint64
	RewardType  RewardType
	Commission  *uint8
}

// blockResponse represents the getBlock RPC response.
type blockResponse struct {
	Blockhash         string                `json:"blockhash"`
	PreviousBlockhash string                `json:"previousBlockhash"`
	ParentSlot        uint64                `json:"parentSlot"`
	Transactions      []transactionWithMeta `json:"transactions"`
	Rewards           []rewardInfo          `json:"rewards"`
	BlockTime         *int64                `json:"blockTime"`
	BlockHeight       *uint64               `json:"blockHeight"`
}

// transactionWithMeta represents a transaction with execution metadata.
type transactionWithMeta struct {
	Transaction json.RawMessage `json:"transaction"`
	Meta        *txMeta         `json:"meta"`
	Version     interface{}     `json:"version"`
}

// txMeta represents transaction execution metadata.
type txMeta struct {
	Err                  interface{}      `json:"err"`
	Fee                  uint64           `json:"fee"`
	LoadedAddresses      *loadedAddresses `json:"loadedAddresses"`
	ComputeUnitsConsumed *uint64          `json:"computeUnitsConsumed"`
}

// loadedAddresses contains addresses loaded from lookup tables.
type loadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

// rewardInfo represents a block reward.
type rewardInfo struct {
	Pubkey      string `json:"pubkey"`
	Lamports    int64  `json:"lamports"`
	PostBalance uint64 `json:"postBalance"`
	RewardType  string `json:"rewardType"`
	Commission  *uint8 `json:"commission"`
}

// parsedTransaction represents a parsed transaction from JSON encoding.
type parsedTransaction struct {
	Signatures []string      `json:"signatures"`
	Message    parsedMessage `json:"message"`
}

// parsedMessage represents a parsed transaction message.
type parsedMessage struct {
	AccountKeys []interface{} `json:"accountKeys"`
}

// convertBlockResponse converts an RPC block response to a Block.
func convertBlockResponse(slot uint64, resp *blockResponse) (*Block, error) {
	block := &Block{
		Slot:        slot,
		ParentSlot:  resp.ParentSlot,
		BlockTime:   resp.BlockTime,
		BlockHeight: resp.BlockHeight,
	}

	if resp.Blockhash != "" {
		hash, err := types.HashFromBase58(resp.Blockhash)
		if err != nil {
			return nil, fmt.Errorf("%w: blockhash: %v", ErrMalformedResponse, err)
		}
		block.Blockhash = hash
	}

	block.Transactions = make([]Transaction, len(resp.Transactions))
	for i, txWithMeta := range resp.Transactions {
		tx, err := convertTransaction(txWithMeta)
		if err != nil {
			return nil, fmt.Errorf("%w: transaction %d: %v", ErrMalformedResponse, i, err)
		}
		block.Transactions[i] = tx
	}

	block.Rewards = make([]Reward, len(resp.Rewards))
	for i, r := range resp.Rewards {
		reward, err := convertReward(r)
		if err != nil {
			return nil, fmt.Errorf("%w: reward %d: %v", ErrMalformedResponse, i, err)
		}
		block.Rewards[i] = reward
	}

	return block, nil
}

// convertTransaction extracts the account keys and metadata of a transaction.
func convertTransaction(txm transactionWithMeta) (Transaction, error) {
	var tx Transaction

	var parsed parsedTransaction
	if err := json.Unmarshal(txm.Transaction, &parsed); err != nil {
		return tx, fmt.Errorf("parse transaction: %w", err)
	}
	if len(parsed.Signatures) > 0 {
		tx.Signature = parsed.Signatures[0]
	}

	// Account keys can be strings or objects
	tx.AccountKeys = make([]types.Pubkey, 0, len(parsed.Message.AccountKeys))
	for i, keyData := range parsed.Message.AccountKeys {
		var keyStr string
		switch k := keyData.(type) {
		case string:
			keyStr = k
		case map[string]interface{}:
			keyStr, _ = k["pubkey"].(string)
		}
		if keyStr == "" {
			continue
		}
		pubkey, err := types.PubkeyFromBase58(keyStr)
		if err != nil {
			return tx, fmt.Errorf("parse account key %d: %w", i, err)
		}
		tx.AccountKeys = append(tx.AccountKeys, pubkey)
	}

	if m := txm.Meta; m != nil {
		tx.Fee = m.Fee
		tx.Failed = m.Err != nil
		if m.ComputeUnitsConsumed != nil {
			tx.ComputeUnitsConsumed = *m.ComputeUnitsConsumed
		}
		if m.LoadedAddresses != nil {
			for _, addr := range append(m.LoadedAddresses.Writable, m.LoadedAddresses.Readonly...) {
				if pubkey, err := types.PubkeyFromBase58(addr); err == nil {
					tx.AccountKeys = append(tx.AccountKeys, pubkey)
				}
			}
		}
	}

	tx.IsVote = isVoteTransaction(tx.AccountKeys)
	return tx, nil
}

// convertReward converts a reward.
func convertReward(r rewardInfo) (Reward, error) {
	reward := Reward{
		Lamports:    r.Lamports,
		PostBalance: r.PostBalance,
		Commission:  r.Commission,
	}

	if r.Pubkey != "" {
		pubkey, err := types.PubkeyFromBase58(r.Pubkey)
		if err != nil {
			return reward, fmt.Errorf("parse reward pubkey: %w", err)
		}
		reward.Pubkey = pubkey
	}

	switch r.RewardType {
	case "fee", "Fee":
		reward.RewardType = RewardTypeFee
	case "rent", "Rent":
		reward.RewardType = RewardTypeRent
	case "staking", "Staking":
		reward.RewardType = RewardTypeStaking
	case "voting", "Voting":
		reward.RewardType = RewardTypeVoting
	default:
		reward.RewardType = RewardTypeUnspecified
	}

	return reward, nil
}

// isVoteTransaction reports whether any account key is the vote program.
// A transaction counts once no matter how many vote instructions it carries.
func isVoteTransaction(keys []types.Pubkey) bool {
	for _, k := range keys {
		if types.IsVoteProgram(k) {
			return true
		}
	}
	return false
}
