package savings

import (
	"context"
	"math/big"
	"strings"

	"github.com/bbayazit16/l2savings/common"
	"github.com/bbayazit16/l2savings/fetch"
)

// signatureModel prices classic (pre-Nitro) Arbitrum transactions. ArbGas is
// its own unit with no fixed L1 conversion, so the L1 gas estimate comes from
// the decoded function name via the rule table, falling back to a piecewise
// formula over the ArbGas amount. The actual L2 fee is the sum of the paid
// fields in the receipt's feeStats.
type signatureModel struct {
	rules []SignatureRule
}

// Relevant drops receipts without feeStats; only classic receipts carry them.
func (m *signatureModel) Relevant(tx TxWithReceipt) bool {
	return tx.Receipt.FeeStats != nil
}

func (m *signatureModel) Prepare(context.Context, []TxWithReceipt) error { return nil }

func (m *signatureModel) TxCost(_ context.Context, tx TxWithReceipt) (TxCost, error) {
	gasUsed := fetch.HexUint64(tx.Receipt.GasUsed)
	stats := tx.Receipt.FeeStats

	l2FeeWei := new(big.Int)
	for _, paid := range []string{
		stats.Paid.L1Transaction,
		stats.Paid.L1Calldata,
		stats.Paid.L2Storage,
		stats.Paid.L2Computation,
	} {
		l2FeeWei.Add(l2FeeWei, fetch.HexQuantity(paid))
	}

	l1Gas := m.l1GasEstimate(tx.Tx, gasUsed)
	l1FeeWei := mulUint64(fetch.HexQuantity(stats.Prices.L1Calldata), l1Gas)

	return TxCost{
		L2Fee: common.WeiToEther(l2FeeWei),
		L1Fee: common.WeiToEther(l1FeeWei),
		L2Gas: gasUsed,
		L1Gas: l1Gas,
	}, nil
}

// l1GasEstimate resolves the L1 gas for a transaction from its decoded
// function name, or from the ArbGas amount when no rule matches.
func (m *signatureModel) l1GasEstimate(tx common.Transaction, arbGas uint64) uint64 {
	if tx.Input == "" || tx.Input == "0x" {
		return common.RefGasEthTransfer
	}

	name := methodName(tx.FunctionName)
	if name != "" {
		for _, rule := range m.rules {
			if rule.Substring != "" && strings.Contains(name, rule.Substring) {
				return rule.Gas
			}
			if rule.Exact != "" && name == rule.Exact {
				return rule.Gas
			}
		}
	}

	switch {
	case arbGas <= 450_000:
		return 21_000
	case arbGas <= 750_000:
		return 50_000 + arbGas/100
	default:
		return arbGas/8 + 21_000
	}
}

// methodName strips the parameter list from an explorer functionName field,
// e.g. "swapExactTokensForTokens(uint256 amountIn, ...)".
func methodName(functionName string) string {
	if idx := strings.IndexByte(functionName, '('); idx >= 0 {
		return strings.TrimSpace(functionName[:idx])
	}
	return strings.TrimSpace(functionName)
}
