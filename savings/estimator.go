// Package savings implements the per-L2 fee estimators, the cost models
// behind them, and the aggregation of their results.
package savings

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/bbayazit16/l2savings/common"
	"github.com/bbayazit16/l2savings/ethfees"
	"github.com/bbayazit16/l2savings/fetch"
	"github.com/bbayazit16/l2savings/metrics"
)

// Calculator computes the savings for one chain and one address.
type Calculator interface {
	Chain() common.Chain
	CalculateSavings(ctx context.Context) (common.Savings, error)
}

// ProgressFunc receives progress events during a calculation. May be nil.
type ProgressFunc func(common.CalcProgress)

// TxWithReceipt pairs an explorer transaction record with its fetched
// receipt.
type TxWithReceipt struct {
	Tx      common.Transaction
	Receipt *fetch.TxReceipt
}

// Timestamp returns the transaction's unix timestamp.
func (t TxWithReceipt) Timestamp() int64 {
	ts, _ := strconv.ParseInt(t.Tx.TimeStamp, 10, 64)
	return ts
}

// TxCost is one transaction priced under a model: actual L2 cost and the
// L1-equivalent estimate, in ether, plus the gas amounts for both layers.
type TxCost struct {
	L2Fee float64
	L1Fee float64
	L2Gas uint64
	L1Gas uint64
}

// FeeModel is the chain-specific strategy plugged into the generic estimator
// pipeline.
type FeeModel interface {
	// Relevant filters receipts the model cannot price (e.g. Nitro receipts
	// without an L1 block number).
	Relevant(tx TxWithReceipt) bool

	// Prepare runs once before pricing, for bulk lookups (L1 fee history,
	// daily fee prefetch).
	Prepare(ctx context.Context, txs []TxWithReceipt) error

	TxCost(ctx context.Context, tx TxWithReceipt) (TxCost, error)
}

// Deps are the shared collaborators injected into every estimator. The fee
// oracle is the only cross-estimator shared state.
type Deps struct {
	Log    *zap.SugaredLogger
	Client *fetch.Client
	Fees   *ethfees.Oracle
}

// Estimator runs the common pipeline: fetch transaction list, filter, fetch
// receipts in throttled chunks, price every transaction under the model, and
// aggregate into a Savings.
type Estimator struct {
	deps       Deps
	cfg        ChainConfig
	address    string
	model      FeeModel
	onProgress ProgressFunc
}

// New constructs the Calculator for a chain. The zkSync Lite model has its
// own pipeline (cursor pagination, batch collapsing); everything else shares
// the generic one.
func New(cfg ChainConfig, deps Deps, address string, onProgress ProgressFunc) (Calculator, error) {
	if cfg.Model == ModelZkSyncLite {
		return newZkSyncLite(cfg, deps, address, onProgress), nil
	}

	est := &Estimator{deps: deps, cfg: cfg, address: address, onProgress: onProgress}
	switch cfg.Model {
	case ModelReceipt:
		est.model = &receiptModel{fees: deps.Fees}
	case ModelNitro:
		est.model = &nitroModel{fees: deps.Fees}
	case ModelSignature:
		est.model = &signatureModel{rules: cfg.SignatureRules}
	case ModelAverage:
		est.model = &averageModel{fees: deps.Fees}
	default:
		return nil, fmt.Errorf("unknown fee model %q for chain %s", cfg.Model, cfg.Chain)
	}
	return est, nil
}

func (e *Estimator) Chain() common.Chain { return e.cfg.Chain }

func (e *Estimator) progress(phase common.Phase, current, total int) {
	if e.onProgress != nil {
		e.onProgress(common.CalcProgress{Phase: phase, Current: current, Total: total})
	}
}

func (e *Estimator) CalculateSavings(ctx context.Context) (common.Savings, error) {
	txs, err := e.fetchTransactions(ctx)
	if err != nil {
		return common.Savings{}, err
	}
	e.deps.Log.Infow("fetched transaction list", "chain", e.cfg.Chain, "transactions", humanize.Comma(int64(len(txs))))

	e.progress(common.PhaseFetchingReceipts, 0, len(txs))

	if len(txs) == 0 {
		e.progress(common.PhaseDone, 0, 0)
		return common.NoSavings(), nil
	}

	pairs, err := e.fetchReceipts(ctx, txs)
	if err != nil {
		return common.Savings{}, err
	}

	relevant := pairs[:0]
	for _, pair := range pairs {
		if pair.Receipt != nil && e.model.Relevant(pair) {
			relevant = append(relevant, pair)
		}
	}

	e.progress(common.PhaseCalculatingFees, 0, len(relevant))

	if err := e.model.Prepare(ctx, relevant); err != nil {
		return common.Savings{}, err
	}

	var totalL1Fees, totalL2Fees float64
	var totalL1Gas, totalL2Gas uint64
	details := make([]common.TransactionSavings, 0, len(relevant))

	for i, pair := range relevant {
		if err := ctx.Err(); err != nil {
			return common.Savings{}, err
		}

		cost, err := e.model.TxCost(ctx, pair)
		if err != nil {
			return common.Savings{}, fmt.Errorf("pricing tx %s: %w", common.TruncateHash(pair.Tx.Hash), err)
		}

		// Inf does not survive JSON encoding, so a free transaction reports 0.
		txTimesCheaper := 0.0
		if cost.L2Fee != 0 {
			txTimesCheaper = cost.L1Fee / cost.L2Fee
		}
		details = append(details, common.TransactionSavings{
			L2:           e.cfg.Chain,
			Hash:         pair.Tx.Hash,
			L2Fee:        cost.L2Fee,
			L1Fee:        cost.L1Fee,
			Saved:        cost.L1Fee - cost.L2Fee,
			TimesCheaper: txTimesCheaper,
		})

		totalL1Fees += cost.L1Fee
		totalL2Fees += cost.L2Fee
		totalL1Gas += cost.L1Gas
		totalL2Gas += cost.L2Gas

		e.progress(common.PhaseCalculatingFees, i+1, len(relevant))
	}

	e.progress(common.PhaseDone, len(relevant), len(relevant))

	totalL1FeesUsd, err := e.deps.Fees.EthToUsd(ctx, totalL1Fees)
	if err != nil {
		return common.Savings{}, err
	}
	totalL2FeesUsd, err := e.deps.Fees.EthToUsd(ctx, totalL2Fees)
	if err != nil {
		return common.Savings{}, err
	}

	timesCheaper := 0.0
	if totalL2Fees != 0 {
		timesCheaper = totalL1Fees / totalL2Fees
	}

	metrics.IncSavingsCalculated(string(e.cfg.Chain))
	return common.Savings{
		L1: common.L1Summary{
			GasSpent:  totalL1Gas,
			FeesSpent: common.FeesSpent{Ether: totalL1Fees, USD: totalL1FeesUsd},
		},
		L2: common.L2Summary{
			TransactionsSent: len(txs),
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

// explorer txlist responses carry the result as an array on success and as a
// plain string on errors
type txListResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (e *Estimator) txListURL() string {
	url := fmt.Sprintf("%s?module=account&action=txlist&address=%s&sort=desc", e.cfg.ExplorerAPIURL, e.address)
	if e.cfg.StartBlock > 0 {
		url += fmt.Sprintf("&startblock=%d", e.cfg.StartBlock)
	}
	if e.cfg.ExplorerAPIKey != "" {
		url += "&apikey=" + e.cfg.ExplorerAPIKey
	}
	return url
}

func (e *Estimator) fetchTransactions(ctx context.Context) ([]common.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var resp txListResponse
	if err := e.deps.Client.GetJSON(ctx, e.txListURL(), &resp); err != nil {
		return nil, err
	}

	var all []common.Transaction
	if err := json.Unmarshal(resp.Result, &all); err != nil {
		return nil, fmt.Errorf("explorer error for %s: %s", e.cfg.Chain, resp.Message)
	}

	// Keep only fee-relevant outgoing transactions: drop incoming, failed,
	// and zero-gas (deposit-type) entries.
	filtered := make([]common.Transaction, 0, len(all))
	for _, tx := range all {
		if !strings.EqualFold(tx.From, e.address) {
			continue
		}
		if tx.ReceiptStatus == "0" {
			continue
		}
		if tx.GasUsed == "0" {
			continue
		}
		if e.cfg.FilterZeroGasPrice && tx.GasPrice == "0" {
			continue
		}
		filtered = append(filtered, tx)
	}
	return filtered, nil
}

// fetchReceipts resolves receipts for all transactions in provider-friendly
// chunks with inter-chunk delays, retrying each chunk up to the configured
// limit. Missing receipts surface as nil entries unless StrictReceipts is
// set, in which case the chunk is retried and eventually fails.
func (e *Estimator) fetchReceipts(ctx context.Context, txs []common.Transaction) ([]TxWithReceipt, error) {
	chunks := common.Chunk(txs, e.cfg.ChunkSize)
	retryLimit := e.cfg.ChunkRetryLimit
	if retryLimit <= 0 {
		retryLimit = 1
	}

	pairs := make([]TxWithReceipt, 0, len(txs))
	for _, txChunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hashes := make([]string, len(txChunk))
		for i, tx := range txChunk {
			hashes[i] = tx.Hash
		}

		var receipts []*fetch.TxReceipt
		var err error
		for retries := 0; retries < retryLimit; retries++ {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if e.cfg.StrictReceipts {
				receipts, err = fetch.BatchReceiptsStrict(ctx, e.deps.Client, e.cfg.RPCURL, hashes)
			} else {
				receipts, err = fetch.BatchReceipts(ctx, e.deps.Client, e.cfg.RPCURL, hashes)
			}
			if err == nil {
				break
			}
			e.deps.Log.Errorw("error fetching receipt chunk, retrying",
				"chain", e.cfg.Chain, "err", err, "retry", retries+1)
			select {
			case <-time.After(e.cfg.ChunkDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch receipts after %d retries: %w", retryLimit, err)
		}

		for i, receipt := range receipts {
			pairs = append(pairs, TxWithReceipt{Tx: txChunk[i], Receipt: receipt})
		}
		e.progress(common.PhaseFetchingReceipts, len(pairs), len(txs))

		select {
		case <-time.After(e.cfg.ChunkDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return pairs, nil
}
