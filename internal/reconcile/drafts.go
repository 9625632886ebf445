package reconcile

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tx-ledger/internal/adapter"
	"github.com/tx-ledger/internal/pricing"
	"github.com/tx-ledger/internal/types"
)

// Placeholders for fields discovery could not derive
const (
	PlaceholderToken  = "UNKNOWN"
	PlaceholderAmount = "0"
	PlaceholderValue  = "$0.00"
)

const nativeDecimals = 18

// ApplyStatus merges a resolved status into a pending record. Pending results
// and settled records are returned unchanged.
func ApplyStatus(tx types.Transaction, res types.StatusResult) types.Transaction {
	if tx.Status != types.StatusPending || !res.Status.Settled() {
		return tx
	}

	tx.Status = res.Status
	if res.BlockNumber != 0 {
		tx.BlockNumber = res.BlockNumber
	}
	if res.GasUsed != "" {
		tx.GasUsed = res.GasUsed
	}
	if res.GasPrice != "" {
		tx.GasPrice = res.GasPrice
	}
	if res.Timestamp != 0 {
		tx.Metadata = tx.Metadata.Merge(&types.Metadata{ConfirmedAt: res.Timestamp})
	}
	return tx
}

// StatusPatch returns the update that moves stored to reconciled, and false
// when the status did not change
func StatusPatch(stored, reconciled types.Transaction) (*types.TransactionPatch, bool) {
	if stored.Status == reconciled.Status {
		return nil, false
	}

	status := reconciled.Status
	patch := &types.TransactionPatch{Status: &status}
	if reconciled.BlockNumber != stored.BlockNumber {
		bn := reconciled.BlockNumber
		patch.BlockNumber = &bn
	}
	if reconciled.GasUsed != stored.GasUsed {
		gu := reconciled.GasUsed
		patch.GasUsed = &gu
	}
	if reconciled.GasPrice != stored.GasPrice {
		gp := reconciled.GasPrice
		patch.GasPrice = &gp
	}
	if reconciled.Metadata != nil && reconciled.Metadata.ConfirmedAt != 0 {
		patch.Metadata = &types.Metadata{ConfirmedAt: reconciled.Metadata.ConfirmedAt}
	}
	return patch, true
}

// ConfirmationPatch settles a freshly added discovered record with the
// receipt state already known from discovery
func ConfirmationPatch(ct types.ChainTransaction) *types.TransactionPatch {
	if !ct.Status.Settled() {
		return nil
	}
	status := ct.Status
	bn := ct.BlockNumber
	patch := &types.TransactionPatch{Status: &status, BlockNumber: &bn}
	if ct.GasUsed != "" {
		gu := ct.GasUsed
		patch.GasUsed = &gu
	}
	if ct.GasPrice != "" {
		gp := ct.GasPrice
		patch.GasPrice = &gp
	}
	if ct.Timestamp != 0 {
		patch.Metadata = &types.Metadata{ConfirmedAt: ct.Timestamp}
	}
	return patch
}

// ToLedgerDraft maps a discovered transaction onto the ledger's shape. The
// second result is false when the decoded method records no ledger operation,
// e.g. plain transfers, approvals and unknown calls.
//
// Token and amount come from the first ERC-20 transfer touching the user, or
// from the native value. Fields that cannot be derived keep their placeholder
// and the draft is flagged unverified.
func (r *Reconciler) ToLedgerDraft(ctx context.Context, ct types.ChainTransaction, user string, chainID types.ChainID) (types.TransactionDraft, bool) {
	method, ok := adapter.LookupMethod(ct.Method)
	if !ok || method.Type == "" {
		return types.TransactionDraft{}, false
	}
	if chainID == 0 {
		chainID = ct.ChainID
	}

	draft := types.TransactionDraft{
		Type:        method.Type,
		Action:      types.ActionLabel(method.Type, false),
		Token:       PlaceholderToken,
		Amount:      PlaceholderAmount,
		Value:       PlaceholderValue,
		Timestamp:   ct.Timestamp,
		TxHash:      ct.Hash,
		UserAddress: user,
		ChainID:     chainID,
		PoolAddress: ct.To,
	}
	md := &types.Metadata{DecodedMethod: method.Name, BridgeProtocol: method.BridgeProtocol}
	if method.Type == types.TypeBridge {
		draft.FromChain = chainID.Name()
	}

	amount, symbol, derived := r.deriveAmount(ct, user, chainID, md)
	if derived {
		draft.Token = symbol
		draft.Amount = pricing.FormatAmount(amount)

		if value, ok := pricing.Value(ctx, r.oracle, symbol, chainID, amount); ok {
			draft.Value = pricing.FormatUSD(value)
		} else {
			md.Unverified = true
		}
	} else {
		md.Unverified = true
	}

	draft.Metadata = md
	return draft, true
}

func (r *Reconciler) deriveAmount(ct types.ChainTransaction, user string, chainID types.ChainID, md *types.Metadata) (decimal.Decimal, string, bool) {
	for _, transfer := range ct.TokenTransfers {
		if !strings.EqualFold(transfer.From, user) && !strings.EqualFold(transfer.To, user) {
			continue
		}
		token, ok := r.registry.TokenByHex(chainID, transfer.Token)
		if !ok {
			if md.Extra == nil {
				md.Extra = make(map[string]interface{})
			}
			md.Extra["tokenAddress"] = transfer.Token
			md.Extra["rawAmount"] = transfer.Value
			return decimal.Zero, "", false
		}
		amount, err := pricing.ScaleAmount(transfer.Value, token.Decimals)
		if err != nil {
			return decimal.Zero, "", false
		}
		return amount, token.Symbol, true
	}

	if ct.Value != "" && ct.Value != "0" {
		amount, err := pricing.ScaleAmount(ct.Value, nativeDecimals)
		if err == nil && amount.IsPositive() {
			return amount, chainID.NativeAsset(), true
		}
	}
	return decimal.Zero, "", false
}
