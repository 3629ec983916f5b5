package savings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bbayazit16/l2savings/common"
	"github.com/bbayazit16/l2savings/ethfees"
	"github.com/bbayazit16/l2savings/metrics"
)

// zkSyncLite estimates savings on zkSync Lite. The chain is not
// EVM-compatible: transactions have operation types instead of calldata, fees
// can be paid in any supported token, and batched transfers share a single
// fee on the closing transaction. The L1 baseline is the day-average mainnet
// fee for the operation's category.
type zkSyncLite struct {
	deps       Deps
	cfg        ChainConfig
	address    string
	onProgress ProgressFunc
}

func newZkSyncLite(cfg ChainConfig, deps Deps, address string, onProgress ProgressFunc) *zkSyncLite {
	return &zkSyncLite{deps: deps, cfg: cfg, address: address, onProgress: onProgress}
}

func (z *zkSyncLite) Chain() common.Chain { return z.cfg.Chain }

func (z *zkSyncLite) progress(phase common.Phase, current, total int) {
	if z.onProgress != nil {
		z.onProgress(common.CalcProgress{Phase: phase, Current: current, Total: total})
	}
}

type zkOp struct {
	Type     string `json:"type"`
	From     string `json:"from"`
	To       string `json:"to"`
	Token    int    `json:"token"`
	FeeToken *int   `json:"feeToken"`
	Fee      string `json:"fee"`
}

type zkTransaction struct {
	TxHash    string    `json:"txHash"`
	BatchID   *int64    `json:"batchId"`
	CreatedAt time.Time `json:"createdAt"`
	Op        zkOp      `json:"op"`
}

type zkTxListResponse struct {
	Status string `json:"status"`
	Result struct {
		List []zkTransaction `json:"list"`
	} `json:"result"`
}

const zkPageSize = 100

// fetchTransactions pages through the account's history with the explorer's
// cursor API, newest first, up to cfg.MaxTransactions. The returned slice is
// oldest first so batches resolve in the order they were built.
func (z *zkSyncLite) fetchTransactions(ctx context.Context) ([]zkTransaction, error) {
	from := "latest"
	var all []zkTransaction

	for len(all) < z.cfg.MaxTransactions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		url := fmt.Sprintf("%s/accounts/%s/transactions?from=%s&limit=%d&direction=older",
			z.cfg.ExplorerAPIURL, z.address, from, zkPageSize)

		var resp zkTxListResponse
		if err := z.deps.Client.GetJSON(ctx, url, &resp); err != nil {
			return nil, err
		}

		all = append(all, resp.Result.List...)
		if len(resp.Result.List) < zkPageSize {
			break
		}
		from = resp.Result.List[len(resp.Result.List)-1].TxHash
	}

	return common.Reverse(all), nil
}

// opKind classifies an operation into a fee category and its gas entry, or
// returns false for operation types outside the model (deposits, withdrawals,
// key changes).
func (z *zkSyncLite) opKind(tx zkTransaction) (ethfees.FeeKind, ZkGasEntry, bool) {
	switch tx.Op.Type {
	case "Transfer":
		// Only outgoing transfers; incoming ones show up in the list too.
		if !strings.EqualFold(tx.Op.From, z.address) {
			return 0, ZkGasEntry{}, false
		}
		if tx.Op.Token == 0 {
			return ethfees.FeeKindEthTransfer, z.cfg.ZkGas.EthTransfer, true
		}
		return ethfees.FeeKindErc20Transfer, z.cfg.ZkGas.Erc20Transfer, true
	case "Swap":
		return ethfees.FeeKindSwap, z.cfg.ZkGas.Swap, true
	case "MintNFT":
		return ethfees.FeeKindMint, z.cfg.ZkGas.MintNFT, true
	default:
		return 0, ZkGasEntry{}, false
	}
}

// feeEther converts a fee paid in an arbitrary token into ether. Token ids at
// most 6 are all stablecoins (USDC and USDT hold 6 decimals, the rest 18);
// ids of 500 and above are NFTs mislabeled as tokens, also priced through the
// day's ETH price. Unknown token ids fall back to a flat estimate.
func (z *zkSyncLite) feeEther(ctx context.Context, tokenID int, fee float64, timestamp int64, expensive bool) (float64, error) {
	if tokenID == 0 {
		return fee, nil
	}

	if tokenID <= 6 || tokenID >= 500 {
		if tokenID == 2 || tokenID == 4 {
			fee *= 1e12
		}
		price, err := z.deps.Fees.EthPriceAt(ctx, timestamp)
		if err != nil {
			return 0, err
		}
		return fee / price, nil
	}

	z.deps.Log.Warnw("fee paid in unsupported token, using flat estimate",
		"tokenID", tokenID, "expensive", expensive)
	if expensive {
		return z.cfg.ZkGas.FlatFeeExpensive, nil
	}
	return z.cfg.ZkGas.FlatFee, nil
}

func (z *zkSyncLite) CalculateSavings(ctx context.Context) (common.Savings, error) {
	txs, err := z.fetchTransactions(ctx)
	if err != nil {
		return common.Savings{}, err
	}
	z.deps.Log.Infow("fetched transaction list", "chain", z.cfg.Chain, "transactions", humanize.Comma(int64(len(txs))))

	// Pre-scan for the exact number of detail entries so progress totals do
	// not drift: one entry per relevant transaction, with zero-fee batch
	// members folding into the nonzero-fee transaction closing the batch.
	total := 0
	timestamps := make([]int64, 0, len(txs))
	for _, tx := range txs {
		_, _, ok := z.opKind(tx)
		if !ok {
			continue
		}
		timestamps = append(timestamps, tx.CreatedAt.Unix())
		if tx.Op.Type == "Transfer" && tx.BatchID != nil && isZeroFee(tx.Op.Fee) {
			continue
		}
		total++
	}

	z.progress(common.PhaseFetchingReceipts, 0, total)

	if len(txs) == 0 {
		z.progress(common.PhaseDone, 0, 0)
		return common.NoSavings(), nil
	}

	if err := z.deps.Fees.CacheDailyFees(ctx, timestamps); err != nil {
		return common.Savings{}, err
	}

	z.progress(common.PhaseCalculatingFees, 0, total)

	var totalL1Fees, totalL2Fees float64
	var totalL1Gas, totalL2Gas uint64
	details := make([]common.TransactionSavings, 0, total)

	batchSize := uint64(0)
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return common.Savings{}, err
		}

		kind, gasEntry, ok := z.opKind(tx)
		if !ok {
			continue
		}

		timestamp := tx.CreatedAt.Unix()
		feeTokenEther := common.WeiToEther(common.ParseWeiString(tx.Op.Fee))

		multiplier := uint64(1)
		if tx.Op.Type == "Transfer" && tx.BatchID != nil {
			if feeTokenEther == 0 {
				// Batch members pay no fee of their own; the closing
				// transaction covers them all.
				batchSize++
				continue
			}
			if batchSize == 0 {
				batchSize = 1
			}
			multiplier = batchSize
			batchSize = 0
		}

		// Fees default to ETH unless the operation names a fee token; for
		// transfers the transferred token itself covers the fee.
		feeToken := 0
		if tx.Op.FeeToken != nil {
			feeToken = *tx.Op.FeeToken
		}
		if feeToken == 0 && tx.Op.Type == "Transfer" {
			feeToken = tx.Op.Token
		}
		expensive := kind == ethfees.FeeKindSwap || kind == ethfees.FeeKindMint

		l2Fee, err := z.feeEther(ctx, feeToken, feeTokenEther, timestamp, expensive)
		if err != nil {
			return common.Savings{}, err
		}

		dayFee, err := z.deps.Fees.AverageDailyFee(ctx, timestamp, kind)
		if err != nil {
			return common.Savings{}, err
		}
		l1Fee := dayFee * float64(multiplier)

		totalL2Fees += l2Fee
		totalL1Fees += l1Fee
		totalL2Gas += gasEntry.NativeGas * multiplier
		totalL1Gas += gasEntry.L1Gas * multiplier

		timesCheaper := 0.0
		if l2Fee != 0 {
			timesCheaper = l1Fee / l2Fee
		}
		details = append(details, common.TransactionSavings{
			L2:           z.cfg.Chain,
			Hash:         tx.TxHash,
			L2Fee:        l2Fee,
			L1Fee:        l1Fee,
			Saved:        l1Fee - l2Fee,
			TimesCheaper: timesCheaper,
		})

		z.progress(common.PhaseCalculatingFees, len(details), total)
	}

	z.progress(common.PhaseDone, len(details), len(details))

	totalL1FeesUsd, err := z.deps.Fees.EthToUsd(ctx, totalL1Fees)
	if err != nil {
		return common.Savings{}, err
	}
	totalL2FeesUsd, err := z.deps.Fees.EthToUsd(ctx, totalL2Fees)
	if err != nil {
		return common.Savings{}, err
	}

	timesCheaper := 0.0
	if totalL2Fees != 0 {
		timesCheaper = totalL1Fees / totalL2Fees
	}

	metrics.IncSavingsCalculated(string(z.cfg.Chain))
	return common.Savings{
		L1: common.L1Summary{
			GasSpent:  totalL1Gas,
			FeesSpent: common.FeesSpent{Ether: totalL1Fees, USD: totalL1FeesUsd},
		},
		L2: common.L2Summary{
			TransactionsSent: len(details),
			GasSpent:         totalL2Gas,
			FeesSpent:        common.FeesSpent{Ether: totalL2Fees, USD: totalL2FeesUsd},
		},
		Saved: common.SavedSummary{
			Ether:        totalL1Fees - totalL2Fees,
			USD:          totalL1FeesUsd - totalL2FeesUsd,
			TimesCheaper: timesCheaper,
		},
		Details: details,
	}, nil
}

func isZeroFee(fee string) bool {
	wei := common.ParseWeiString(fee)
	return wei.Sign() == 0
}
