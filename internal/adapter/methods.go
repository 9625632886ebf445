package adapter

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tx-ledger/internal/types"
)

// MethodUnknown is the decoded name of call data that matches no known selector
const MethodUnknown = "unknown"

// Method is one entry of the known operation signature table
type Method struct {
	Name      string
	Signature string
	Selector  [4]byte
	// Type is the ledger operation the call records; empty for calls that
	// move no position, such as plain token transfers and approvals
	Type types.TransactionType
	// BridgeProtocol is set for cross-chain entry points
	BridgeProtocol string
}

// SelectorHex returns the 0x-prefixed method id
func (m Method) SelectorHex() string {
	return "0x" + hex.EncodeToString(m.Selector[:])
}

// Known reports whether the method was matched in the table
func (m Method) Known() bool {
	return m.Name != MethodUnknown && m.Name != ""
}

var methodTable = buildMethodTable([]Method{
	{Name: "transfer", Signature: "transfer(address,uint256)"},
	{Name: "approve", Signature: "approve(address,uint256)"},
	{Name: "supply", Signature: "supply(address,uint256,address,uint16)", Type: types.TypeDeposit},
	{Name: "deposit", Signature: "deposit(address,uint256,address,uint16)", Type: types.TypeDeposit},
	{Name: "depositETH", Signature: "depositETH(address,address,uint16)", Type: types.TypeDeposit},
	{Name: "withdraw", Signature: "withdraw(address,uint256,address)", Type: types.TypeWithdraw},
	{Name: "withdrawETH", Signature: "withdrawETH(address,uint256,address)", Type: types.TypeWithdraw},
	{Name: "borrow", Signature: "borrow(address,uint256,uint256,uint16,address)", Type: types.TypeBorrow},
	{Name: "repay", Signature: "repay(address,uint256,uint256,address)", Type: types.TypeRepay},
	{Name: "repayWithATokens", Signature: "repayWithATokens(address,uint256,uint256)", Type: types.TypeRepay},
	{Name: "liquidationCall", Signature: "liquidationCall(address,address,address,uint256,bool)", Type: types.TypeLiquidation},
	{Name: "depositForBurn", Signature: "depositForBurn(uint256,uint32,bytes32,address)", Type: types.TypeBridge, BridgeProtocol: "cctp"},
	{Name: "bridge", Signature: "bridge(address,uint256,uint256)", Type: types.TypeBridge, BridgeProtocol: "native"},
	{Name: "stake", Signature: "stake(uint256)", Type: types.TypeStake},
	{Name: "unstake", Signature: "unstake(uint256)", Type: types.TypeUnstake},
})

func buildMethodTable(methods []Method) map[[4]byte]Method {
	table := make(map[[4]byte]Method, len(methods))
	for _, m := range methods {
		copy(m.Selector[:], crypto.Keccak256([]byte(m.Signature))[:4])
		table[m.Selector] = m
	}
	return table
}

// DecodeMethod matches the leading four bytes of call data against the
// signature table. Short or unmatched input decodes to MethodUnknown.
func DecodeMethod(data []byte) Method {
	if len(data) < 4 {
		return Method{Name: MethodUnknown}
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	if m, ok := methodTable[sel]; ok {
		return m
	}
	return Method{Name: MethodUnknown, Selector: sel}
}

// LookupMethod finds a table entry by its decoded name
func LookupMethod(name string) (Method, bool) {
	for _, m := range methodTable {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Method{}, false
}
