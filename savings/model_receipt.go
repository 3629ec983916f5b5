package savings

import (
	"context"

	"github.com/bbayazit16/l2savings/common"
	"github.com/bbayazit16/l2savings/ethfees"
	"github.com/bbayazit16/l2savings/fetch"
)

// receiptModel prices OP-stack transactions. The receipt carries both the L1
// data fee actually paid and the L1 gas price at the time, so the
// L1-equivalent cost is gasUsed priced at that gas price, with no external
// lookups in the common case.
type receiptModel struct {
	fees *ethfees.Oracle
}

func (m *receiptModel) Relevant(TxWithReceipt) bool { return true }

func (m *receiptModel) Prepare(context.Context, []TxWithReceipt) error { return nil }

func (m *receiptModel) TxCost(ctx context.Context, tx TxWithReceipt) (TxCost, error) {
	gasUsed := fetch.HexUint64(tx.Receipt.GasUsed)
	gasPrice := fetch.HexQuantity(tx.Receipt.EffectiveGasPrice)
	l1DataFee := fetch.HexQuantity(tx.Receipt.L1Fee)
	l1GasPrice := fetch.HexQuantity(tx.Receipt.L1GasPrice)

	l2FeeWei := mulUint64(gasPrice, gasUsed)
	l2FeeWei.Add(l2FeeWei, l1DataFee)

	var l1Fee float64
	if l1GasPrice.Sign() > 0 {
		l1Fee = common.WeiToEther(mulUint64(l1GasPrice, gasUsed))
	} else {
		// Pre-bedrock receipts omit l1GasPrice; the day-average baseline
		// scaled to the transaction's gas stands in.
		var err error
		l1Fee, err = m.fees.AverageDailyFeeForGas(ctx, tx.Timestamp(), gasUsed)
		if err != nil {
			return TxCost{}, err
		}
	}

	return TxCost{
		L2Fee: common.WeiToEther(l2FeeWei),
		L1Fee: l1Fee,
		L2Gas: gasUsed,
		L1Gas: gasUsed,
	}, nil
}
