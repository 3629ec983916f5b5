package savings

import (
	"context"

	"github.com/bbayazit16/l2savings/common"
	"github.com/bbayazit16/l2savings/ethfees"
	"github.com/bbayazit16/l2savings/fetch"
)

// averageModel prices chains with no per-transaction L1 fee signal (Linea).
// The L1-equivalent cost is the day's average swap fee on mainnet, scaled to
// the transaction's gas.
type averageModel struct {
	fees *ethfees.Oracle
}

func (m *averageModel) Relevant(TxWithReceipt) bool { return true }

// Prepare prefetches the daily fee baseline for every distinct day touched,
// collapsing what would be a subgraph query per transaction into one.
func (m *averageModel) Prepare(ctx context.Context, txs []TxWithReceipt) error {
	timestamps := make([]int64, len(txs))
	for i, tx := range txs {
		timestamps[i] = tx.Timestamp()
	}
	return m.fees.CacheDailyFees(ctx, timestamps)
}

func (m *averageModel) TxCost(ctx context.Context, tx TxWithReceipt) (TxCost, error) {
	gasUsed := fetch.HexUint64(tx.Receipt.GasUsed)
	gasPrice := fetch.HexQuantity(tx.Receipt.EffectiveGasPrice)

	l1Fee, err := m.fees.AverageDailyFeeForGas(ctx, tx.Timestamp(), gasUsed)
	if err != nil {
		return TxCost{}, err
	}

	return TxCost{
		L2Fee: common.WeiToEther(mulUint64(gasPrice, gasUsed)),
		L1Fee: l1Fee,
		L2Gas: gasUsed,
		L1Gas: gasUsed,
	}, nil
}
