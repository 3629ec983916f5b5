package ethfees

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bbayazit16/l2savings/common"
	"github.com/bbayazit16/l2savings/fetch"
)

var testLog = common.GetLogger(true, false)

// oracleStub answers eth_call with 2500 * 1e8 for the ETH/USD feed and
// 30 gwei for the gas price feed.
func oracleStub(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "eth_call", req.Method)
		if calls != nil {
			*calls++
		}

		var msg struct {
			To string `json:"to"`
		}
		require.NoError(t, json.Unmarshal(req.Params[0], &msg))

		result := "0x" + strings.Repeat("0", 55) + "6fc23ac00" // 30 gwei
		if strings.EqualFold(msg.To, ethUsdOracleAddress.Hex()) {
			result = "0x" + strings.Repeat("0", 54) + "3a35294400" // 2500e8
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": json.RawMessage(req.ID), "result": result}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestOracle(t *testing.T, ethRPC, subgraphURL string) *Oracle {
	t.Helper()
	oracle, err := NewOracle(OracleOpts{
		Log:                  testLog,
		Client:               fetch.NewClient(fetch.ClientOpts{Log: testLog, BaseDelay: time.Millisecond, FailureRetryLimit: 1, RateLimitRetryLimit: 1}),
		EthRPC:               ethRPC,
		SubgraphURL:          subgraphURL,
		FeeHistoryChunkSize:  2,
		FeeHistoryChunkDelay: time.Millisecond,
		FeeHistoryRetryLimit: 2,
	})
	require.NoError(t, err)
	return oracle
}

func TestCurrentPricesMemoized(t *testing.T) {
	var calls int
	srv := oracleStub(t, &calls)
	defer srv.Close()

	oracle := newTestOracle(t, srv.URL, srv.URL)
	ctx := context.Background()

	price, err := oracle.CurrentEthUsdPrice(ctx)
	require.NoError(t, err)
	require.Equal(t, 2500.0, price)

	gas, err := oracle.CurrentFastGasPrice(ctx)
	require.NoError(t, err)
	require.InEpsilon(t, 3e-8, gas, 1e-12)

	_, err = oracle.CurrentEthUsdPrice(ctx)
	require.NoError(t, err)
	_, err = oracle.CurrentFastGasPrice(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	usd, err := oracle.EthToUsd(ctx, 2.0)
	require.NoError(t, err)
	require.Equal(t, 5000.0, usd)
}

func subgraphStub(t *testing.T, hits *int, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			*hits++
		}
		w.Write([]byte(response))
	}))
}

func TestAverageDailyFee(t *testing.T) {
	var hits int
	subgraph := subgraphStub(t, &hits, `{"data":{"dayStat":{"averageSwapCostETH":"0.0105"}}}`)
	defer subgraph.Close()
	rpc := oracleStub(t, nil)
	defer rpc.Close()

	oracle := newTestOracle(t, rpc.URL, subgraph.URL)
	ctx := context.Background()
	timestamp := int64(1_619_712_000)

	fee, err := oracle.AverageDailyFee(ctx, timestamp, FeeKindSwap)
	require.NoError(t, err)
	require.Equal(t, 0.0105, fee)

	fee, err = oracle.AverageDailyFee(ctx, timestamp, FeeKindEthTransfer)
	require.NoError(t, err)
	require.InEpsilon(t, 0.0021, fee, 1e-12)

	fee, err = oracle.AverageDailyFee(ctx, timestamp, FeeKindErc20Transfer)
	require.NoError(t, err)
	require.InEpsilon(t, 0.005, fee, 1e-12)

	fee, err = oracle.AverageDailyFee(ctx, timestamp, FeeKindMint)
	require.NoError(t, err)
	require.InEpsilon(t, 0.021, fee, 1e-12)

	// same bucket, all served from cache
	require.Equal(t, 1, hits)

	scaled, err := oracle.AverageDailyFeeForGas(ctx, timestamp, 210_000)
	require.NoError(t, err)
	require.InEpsilon(t, 0.021, scaled, 1e-12)
}

func TestAverageDailyFeeFallsBackToFastGas(t *testing.T) {
	subgraph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer subgraph.Close()
	rpc := oracleStub(t, nil)
	defer rpc.Close()

	oracle := newTestOracle(t, rpc.URL, subgraph.URL)

	// 30 gwei * 105000 gas
	fee, err := oracle.AverageDailyFee(context.Background(), 1_619_712_000, FeeKindSwap)
	require.NoError(t, err)
	require.InEpsilon(t, 0.00315, fee, 1e-9)
}

func TestEthPriceAt(t *testing.T) {
	subgraph := subgraphStub(t, nil, `{"data":{"dayStat":{"averageSwapCostETH":"0.01","averageSwapCostUSD":"25.0"}}}`)
	defer subgraph.Close()
	rpc := oracleStub(t, nil)
	defer rpc.Close()

	oracle := newTestOracle(t, rpc.URL, subgraph.URL)

	price, err := oracle.EthPriceAt(context.Background(), 1_619_712_000)
	require.NoError(t, err)
	require.Equal(t, 2500.0, price)
}

func TestEthPriceAtFallsBackToCurrent(t *testing.T) {
	subgraph := subgraphStub(t, nil, `{"data":{"dayStat":null}}`)
	defer subgraph.Close()
	rpc := oracleStub(t, nil)
	defer rpc.Close()

	oracle := newTestOracle(t, rpc.URL, subgraph.URL)

	price, err := oracle.EthPriceAt(context.Background(), 1_619_712_000)
	require.NoError(t, err)
	require.Equal(t, 2500.0, price)
}

func TestCacheDailyFees(t *testing.T) {
	var hits int
	subgraph := subgraphStub(t, &hits, `{"data":{"x18746":{"averageSwapCostETH":"0.012"},"x18747":null}}`)
	defer subgraph.Close()
	rpc := oracleStub(t, nil)
	defer rpc.Close()

	oracle := newTestOracle(t, rpc.URL, subgraph.URL)
	ctx := context.Background()

	// two distinct buckets plus a duplicate
	err := oracle.CacheDailyFees(ctx, []int64{18746 * 86_400, 18747 * 86_400, 18746*86_400 + 7})
	require.NoError(t, err)
	require.Equal(t, 1, hits)

	fee, err := oracle.AverageDailyFee(ctx, 18746*86_400, FeeKindSwap)
	require.NoError(t, err)
	require.Equal(t, 0.012, fee)

	// absent day was cached with the fast-gas fallback
	fee, err = oracle.AverageDailyFee(ctx, 18747*86_400, FeeKindSwap)
	require.NoError(t, err)
	require.InEpsilon(t, 0.00315, fee, 1e-9)

	// all served from cache, no further subgraph hits
	require.Equal(t, 1, hits)
}

func TestCacheDailyFeesAllCached(t *testing.T) {
	var hits int
	subgraph := subgraphStub(t, &hits, `{"data":{}}`)
	defer subgraph.Close()
	rpc := oracleStub(t, nil)
	defer rpc.Close()

	oracle := newTestOracle(t, rpc.URL, subgraph.URL)
	oracle.feeCache[18746] = 0.01

	require.NoError(t, oracle.CacheDailyFees(context.Background(), []int64{18746 * 86_400}))
	require.Equal(t, 0, hits)
}

func TestGasFeesAtBlocks(t *testing.T) {
	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []struct {
			ID     int   `json:"id"`
			Params []any `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqs))

		resps := make([]map[string]any, 0, len(reqs))
		for _, req := range reqs {
			resps = append(resps, map[string]any{"id": req.ID, "result": map[string]any{
				"oldestBlock":   req.Params[1].(string),
				"baseFeePerGas": []string{"0x6fc23ac00"},
				"reward":        [][]string{{"0x3b9aca00"}},
			}})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resps))
	}))
	defer rpc.Close()

	oracle := newTestOracle(t, rpc.URL, rpc.URL)

	var progress []int
	fees, err := oracle.GasFeesAtBlocks(context.Background(), []string{"0x10", "0x20", "0x30"}, func(current int) {
		progress = append(progress, current)
	})
	require.NoError(t, err)
	require.Len(t, fees, 3)
	require.Equal(t, int64(31_000_000_000), fees[16].Int64())
	require.Equal(t, []int{2, 3}, progress)
}

func TestGasFeesAtBlocksCancelled(t *testing.T) {
	rpc := oracleStub(t, nil)
	defer rpc.Close()

	oracle := newTestOracle(t, rpc.URL, rpc.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := oracle.GasFeesAtBlocks(ctx, []string{"0x10"}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
