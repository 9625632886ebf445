package adapter

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/tx-ledger/internal/types"
)

// TransferEventTopic is keccak256("Transfer(address,address,uint256)")
var TransferEventTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// ParseTokenTransfers extracts ERC-20 transfers from receipt logs
func ParseTokenTransfers(logs []*ethtypes.Log) []types.TokenTransfer {
	var transfers []types.TokenTransfer

	for _, log := range logs {
		if log == nil || len(log.Topics) < 3 || log.Topics[0] != TransferEventTopic {
			continue
		}

		from := common.BytesToAddress(log.Topics[1].Bytes()).Hex()
		to := common.BytesToAddress(log.Topics[2].Bytes()).Hex()
		value := new(big.Int).SetBytes(log.Data)

		transfers = append(transfers, types.TokenTransfer{
			Token: log.Address.Hex(),
			From:  from,
			To:    to,
			Value: value.String(),
		})
	}

	return transfers
}

// TransfersTouching keeps the transfers where the address is sender or recipient
func TransfersTouching(transfers []types.TokenTransfer, address string) []types.TokenTransfer {
	var out []types.TokenTransfer
	for _, t := range transfers {
		if strings.EqualFold(t.From, address) || strings.EqualFold(t.To, address) {
			out = append(out, t)
		}
	}
	return out
}

// Sender recovers the signer of a transaction. Pre-EIP-155 transactions carry
// no chain id, so the chain's own id is used for the signer in that case.
func Sender(tx *ethtypes.Transaction, chainID types.ChainID) (common.Address, error) {
	id := tx.ChainId()
	if id == nil || id.Sign() == 0 {
		id = new(big.Int).SetUint64(uint64(chainID))
	}
	return ethtypes.Sender(ethtypes.LatestSignerForChainID(id), tx)
}
