package savings

import (
	"context"
	"math/big"

	"github.com/bbayazit16/l2savings/common"
	"github.com/bbayazit16/l2savings/ethfees"
	"github.com/bbayazit16/l2savings/fetch"
)

// nitroModel prices Arbitrum Nitro transactions. Nitro bills L1 calldata in
// L2 gas units (gasUsedForL1), so the compute-only share of gasUsed is what
// the transaction would have cost on L1, priced at the L1 fee per gas of the
// block the batch posted in.
type nitroModel struct {
	fees *ethfees.Oracle

	// L1 block number -> fee per gas, resolved once in Prepare.
	blockFees map[uint64]*big.Int
}

// Relevant drops receipts without an L1 block number. These are retryables
// and other system transactions the model has no baseline for.
func (m *nitroModel) Relevant(tx TxWithReceipt) bool {
	return tx.Receipt.L1BlockNumber != "" && tx.Receipt.L1BlockNumber != "0x0"
}

func (m *nitroModel) Prepare(ctx context.Context, txs []TxWithReceipt) error {
	blocks := make([]string, 0, len(txs))
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if !seen[tx.Receipt.L1BlockNumber] {
			seen[tx.Receipt.L1BlockNumber] = true
			blocks = append(blocks, tx.Receipt.L1BlockNumber)
		}
	}

	fees, err := m.fees.GasFeesAtBlocks(ctx, blocks, nil)
	if err != nil {
		return err
	}
	m.blockFees = fees
	return nil
}

func (m *nitroModel) TxCost(ctx context.Context, tx TxWithReceipt) (TxCost, error) {
	gasUsed := fetch.HexUint64(tx.Receipt.GasUsed)
	gasUsedForL1 := fetch.HexUint64(tx.Receipt.GasUsedForL1)
	gasPrice := fetch.HexQuantity(tx.Receipt.EffectiveGasPrice)

	// gasUsedForL1 covering all of gasUsed leaves no compute share to price.
	var l1Gas uint64
	if gasUsedForL1 < gasUsed {
		l1Gas = gasUsed - gasUsedForL1
	}

	var l1Fee float64
	if feePerGas, ok := m.blockFees[fetch.HexUint64(tx.Receipt.L1BlockNumber)]; ok {
		l1Fee = common.WeiToEther(mulUint64(feePerGas, l1Gas))
	} else {
		var err error
		l1Fee, err = m.fees.AverageDailyFeeForGas(ctx, tx.Timestamp(), l1Gas)
		if err != nil {
			return TxCost{}, err
		}
	}

	return TxCost{
		L2Fee: common.WeiToEther(mulUint64(gasPrice, gasUsed)),
		L1Fee: l1Fee,
		L2Gas: gasUsed,
		L1Gas: l1Gas,
	}, nil
}

func mulUint64(price *big.Int, gas uint64) *big.Int {
	return new(big.Int).Mul(price, new(big.Int).SetUint64(gas))
}
