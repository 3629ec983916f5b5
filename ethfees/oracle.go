// Package ethfees provides current and historical L1 fee data: Chainlink-style
// oracle reads for current values and a day-bucketed cache over an external
// average-fee index for historical ones.
package ethfees

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/bbayazit16/l2savings/common"
	"github.com/bbayazit16/l2savings/fetch"
	"github.com/bbayazit16/l2savings/metrics"
)

// FeeKind is a transaction category whose L1 cost is derived from the daily
// average swap fee with a fixed multiplier. The approximation assumes all
// categories move proportionally to swap fees day to day.
type FeeKind int

const (
	FeeKindEthTransfer FeeKind = iota
	FeeKindErc20Transfer
	FeeKindSwap
	FeeKindMint
)

func (k FeeKind) String() string {
	switch k {
	case FeeKindEthTransfer:
		return "ethTransfer"
	case FeeKindErc20Transfer:
		return "erc20Transfer"
	case FeeKindSwap:
		return "swap"
	case FeeKindMint:
		return "mint"
	}
	return "unknown"
}

func (k FeeKind) scale(swapFee float64) float64 {
	switch k {
	case FeeKindEthTransfer:
		return swapFee / 5
	case FeeKindErc20Transfer:
		return swapFee / 2.1
	case FeeKindMint:
		return swapFee * 2
	default:
		return swapFee
	}
}

var (
	ethUsdOracleAddress   = ethcommon.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	gasPriceOracleAddress = ethcommon.HexToAddress("0x169E633A2D1E6c10dD91238Ba11c4A708dfEF37C")

	// latestAnswer()
	latestAnswerCalldata = hexutil.MustDecode("0x50d25bcd")
)

type OracleOpts struct {
	Log    *zap.SugaredLogger
	Client *fetch.Client

	// EthRPC is an L1 JSON-RPC endpoint, used for the price/gas oracle calls
	// and for batched eth_feeHistory lookups.
	EthRPC string

	// SubgraphURL is the day-bucketed average-fee index endpoint.
	SubgraphURL string

	// Overridable for tests.
	FeeHistoryChunkSize  int
	FeeHistoryChunkDelay time.Duration
	FeeHistoryRetryLimit int
}

// Oracle caches current oracle answers for the process lifetime and daily
// values per day bucket, never evicting within a session. One Oracle instance
// is shared by all estimators; maps are mutex-guarded since estimators run in
// separate goroutines.
type Oracle struct {
	log       *zap.SugaredLogger
	client    *fetch.Client
	ethRPC    string
	subgraph  string
	ethClient *ethclient.Client

	feeHistoryChunkSize  int
	feeHistoryChunkDelay time.Duration
	feeHistoryRetryLimit int

	mu             sync.Mutex
	feeCache       map[int64]float64 // day bucket -> average swap fee in ether
	priceCache     map[int64]float64 // day bucket -> ETH/USD
	currentEthUsd  float64
	currentFastGas float64 // ether per gas unit
}

func NewOracle(opts OracleOpts) (*Oracle, error) {
	ethClient, err := ethclient.Dial(opts.EthRPC)
	if err != nil {
		return nil, fmt.Errorf("dial eth rpc: %w", err)
	}
	if opts.FeeHistoryChunkSize == 0 {
		opts.FeeHistoryChunkSize = 10
	}
	if opts.FeeHistoryChunkDelay == 0 {
		opts.FeeHistoryChunkDelay = 500 * time.Millisecond
	}
	if opts.FeeHistoryRetryLimit == 0 {
		opts.FeeHistoryRetryLimit = 4
	}
	return &Oracle{
		log:                  opts.Log,
		client:               opts.Client,
		ethRPC:               opts.EthRPC,
		subgraph:             opts.SubgraphURL,
		ethClient:            ethClient,
		feeHistoryChunkSize:  opts.FeeHistoryChunkSize,
		feeHistoryChunkDelay: opts.FeeHistoryChunkDelay,
		feeHistoryRetryLimit: opts.FeeHistoryRetryLimit,
		feeCache:             make(map[int64]float64),
		priceCache:           make(map[int64]float64),
	}, nil
}

func (o *Oracle) latestAnswer(ctx context.Context, contract ethcommon.Address) (*big.Int, error) {
	res, err := o.ethClient.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: latestAnswerCalldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle call %s: %w", contract.Hex(), err)
	}
	return new(big.Int).SetBytes(res), nil
}

// CurrentEthUsdPrice returns the ETH/USD price from the on-chain oracle,
// queried once per process lifetime.
func (o *Oracle) CurrentEthUsdPrice(ctx context.Context) (float64, error) {
	o.mu.Lock()
	cached := o.currentEthUsd
	o.mu.Unlock()
	if cached != 0 {
		return cached, nil
	}

	answer, err := o.latestAnswer(ctx, ethUsdOracleAddress)
	if err != nil {
		return 0, err
	}
	price := float64(answer.Int64()) / 1e8 // oracle answers with 8 decimals

	o.mu.Lock()
	o.currentEthUsd = price
	o.mu.Unlock()
	return price, nil
}

// CurrentFastGasPrice returns the current fast gas price in ether per gas
// unit, queried once per process lifetime.
func (o *Oracle) CurrentFastGasPrice(ctx context.Context) (float64, error) {
	o.mu.Lock()
	cached := o.currentFastGas
	o.mu.Unlock()
	if cached != 0 {
		return cached, nil
	}

	answer, err := o.latestAnswer(ctx, gasPriceOracleAddress)
	if err != nil {
		return 0, err
	}
	gasPrice := common.WeiToEther(answer)

	o.mu.Lock()
	o.currentFastGas = gasPrice
	o.mu.Unlock()
	return gasPrice, nil
}

func (o *Oracle) EthToUsd(ctx context.Context, amountEther float64) (float64, error) {
	price, err := o.CurrentEthUsdPrice(ctx)
	if err != nil {
		return 0, err
	}
	return amountEther * price, nil
}

type dayStat struct {
	AverageSwapCostETH string `json:"averageSwapCostETH"`
	AverageSwapCostUSD string `json:"averageSwapCostUSD"`
}

type graphRequest struct {
	Query string `json:"query"`
}

func (o *Oracle) queryDayStat(ctx context.Context, query string, out any) error {
	var resp struct {
		Data map[string]*dayStat `json:"data"`
	}
	if err := o.client.PostJSON(ctx, o.subgraph, graphRequest{Query: query}, &resp); err != nil {
		return err
	}
	switch v := out.(type) {
	case *map[string]*dayStat:
		*v = resp.Data
	default:
		return fmt.Errorf("unsupported decode target %T", out)
	}
	return nil
}

// swapFeeAt returns the cached day-average swap fee in ether for the bucket,
// querying the index on first touch and degrading to fastGas * 105000 when
// the day is absent or the index is down. Only a failing fallback is an
// error.
func (o *Oracle) swapFeeAt(ctx context.Context, timestamp int64) (float64, error) {
	bucket := common.DayBucket(timestamp)

	o.mu.Lock()
	if fee, ok := o.feeCache[bucket]; ok {
		o.mu.Unlock()
		metrics.IncFeeCacheHits()
		return fee, nil
	}
	o.mu.Unlock()
	metrics.IncFeeCacheMisses()

	var swapFee float64
	var data map[string]*dayStat
	query := fmt.Sprintf("{dayStat(id:%d){averageSwapCostETH}}", bucket)
	err := o.queryDayStat(ctx, query, &data)
	if err == nil && data["dayStat"] != nil {
		swapFee, err = strconv.ParseFloat(data["dayStat"].AverageSwapCostETH, 64)
	}
	if err != nil || swapFee == 0 {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		o.log.Warnw("average daily fee not found, using current fee", "dayBucket", bucket, "err", err)
		metrics.IncFeeFallbacks()
		fastGas, gasErr := o.CurrentFastGasPrice(ctx)
		if gasErr != nil {
			return 0, gasErr
		}
		swapFee = fastGas * common.RefGasSwap
	}

	o.mu.Lock()
	o.feeCache[bucket] = swapFee
	o.mu.Unlock()
	return swapFee, nil
}

// AverageDailyFee returns the day's average fee for the category, in ether.
func (o *Oracle) AverageDailyFee(ctx context.Context, timestamp int64, kind FeeKind) (float64, error) {
	swapFee, err := o.swapFeeAt(ctx, timestamp)
	if err != nil {
		return 0, err
	}
	return kind.scale(swapFee), nil
}

// AverageDailyFeeForGas scales the day's swap-fee baseline proportionally to
// an arbitrary gas amount.
func (o *Oracle) AverageDailyFeeForGas(ctx context.Context, timestamp int64, gas uint64) (float64, error) {
	swapFee, err := o.swapFeeAt(ctx, timestamp)
	if err != nil {
		return 0, err
	}
	return swapFee / common.RefGasSwap * float64(gas), nil
}

// EthPriceAt returns the implied ETH/USD price for the day of timestamp,
// derived from the index's swap cost in both denominations. Falls back to the
// current oracle price, which is also cached for the bucket.
func (o *Oracle) EthPriceAt(ctx context.Context, timestamp int64) (float64, error) {
	bucket := common.DayBucket(timestamp)

	o.mu.Lock()
	if price, ok := o.priceCache[bucket]; ok {
		o.mu.Unlock()
		metrics.IncFeeCacheHits()
		return price, nil
	}
	o.mu.Unlock()
	metrics.IncFeeCacheMisses()

	var price float64
	var data map[string]*dayStat
	query := fmt.Sprintf("{dayStat(id:%d){averageSwapCostETH\naverageSwapCostUSD}}", bucket)
	err := o.queryDayStat(ctx, query, &data)
	if err == nil && data["dayStat"] != nil {
		var costEth, costUsd float64
		costEth, err = strconv.ParseFloat(data["dayStat"].AverageSwapCostETH, 64)
		if err == nil {
			costUsd, err = strconv.ParseFloat(data["dayStat"].AverageSwapCostUSD, 64)
		}
		if err == nil && costEth != 0 {
			price = costUsd / costEth
		}
	}
	if err != nil || price == 0 {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		o.log.Warnw("ether price not found for day, using current price", "dayBucket", bucket, "err", err)
		metrics.IncFeeFallbacks()
		price, err = o.CurrentEthUsdPrice(ctx)
		if err != nil {
			return 0, err
		}
	}

	o.mu.Lock()
	o.priceCache[bucket] = price
	o.mu.Unlock()
	return price, nil
}

// CacheDailyFees prefetches the swap-fee baseline for every distinct day
// bucket in timestamps with one combined query, saving the zk estimator a
// subgraph round-trip per transaction. Failure of the combined query is not
// fatal; lookups then fall back individually.
func (o *Oracle) CacheDailyFees(ctx context.Context, timestamps []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("{")
	seen := make(map[int64]bool)
	o.mu.Lock()
	for _, timestamp := range timestamps {
		bucket := common.DayBucket(timestamp)
		if seen[bucket] {
			continue
		}
		if _, ok := o.feeCache[bucket]; ok {
			continue
		}
		seen[bucket] = true
		fmt.Fprintf(&sb, "x%d: dayStat(id: %d) {averageSwapCostETH}", bucket, bucket)
	}
	o.mu.Unlock()
	sb.WriteString("}")

	if len(seen) == 0 {
		return nil
	}

	var data map[string]*dayStat
	if err := o.queryDayStat(ctx, sb.String(), &data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.log.Warnw("error caching average daily fees, proceeding without prefetch", "err", err)
		return nil
	}

	for key, stat := range data {
		bucket, err := strconv.ParseInt(strings.TrimPrefix(key, "x"), 10, 64)
		if err != nil {
			continue
		}
		var swapFee float64
		if stat != nil {
			swapFee, _ = strconv.ParseFloat(stat.AverageSwapCostETH, 64)
		}
		if swapFee == 0 {
			fastGas, err := o.CurrentFastGasPrice(ctx)
			if err != nil {
				return err
			}
			swapFee = fastGas * common.RefGasSwap
		}
		o.mu.Lock()
		o.feeCache[bucket] = swapFee
		o.mu.Unlock()
	}
	return nil
}

// GasFeesAtBlocks looks up the L1 fee per gas (base fee + median priority
// fee) at each block, batched and chunked to stay under provider limits.
// onProgress, when set, receives the number of blocks fetched so far.
func (o *Oracle) GasFeesAtBlocks(ctx context.Context, blockNumbersHex []string, onProgress func(current int)) (map[uint64]*big.Int, error) {
	fees := make(map[uint64]*big.Int, len(blockNumbersHex))

	chunks := common.Chunk(blockNumbersHex, o.feeHistoryChunkSize)
	fetched := 0
	for _, blockChunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var chunkFees map[uint64]*big.Int
		var err error
		for retries := 0; retries < o.feeHistoryRetryLimit; retries++ {
			chunkFees, err = fetch.BatchFeeHistory(ctx, o.client, o.ethRPC, blockChunk)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.log.Errorw("error fetching fee history chunk", "err", err, "retry", retries+1)
		}
		if err != nil {
			return nil, fmt.Errorf("fee history after %d retries: %w", o.feeHistoryRetryLimit, err)
		}

		for block, fee := range chunkFees {
			fees[block] = fee
		}
		fetched += len(blockChunk)
		if onProgress != nil {
			onProgress(fetched)
		}

		select {
		case <-time.After(o.feeHistoryChunkDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return fees, nil
}
