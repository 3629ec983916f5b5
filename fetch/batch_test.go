package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// rpcStub answers receipt batches with gasUsed == the request id, echoing out
// of order to exercise the id-based mapping. Hashes listed in missing get a
// null result.
func rpcStub(t *testing.T, missing map[string]bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqs))

		resps := make([]map[string]any, 0, len(reqs))
		for i := len(reqs) - 1; i >= 0; i-- { // reversed on purpose
			req := reqs[i]
			hash := req.Params[0].(string)
			if missing[hash] {
				resps = append(resps, map[string]any{"id": req.ID, "result": nil})
				continue
			}
			resps = append(resps, map[string]any{"id": req.ID, "result": map[string]any{
				"transactionHash": hash,
				"gasUsed":         fmt.Sprintf("0x%x", req.ID),
			}})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resps))
	}))
}

func TestBatchReceiptsOrder(t *testing.T) {
	srv := rpcStub(t, nil)
	defer srv.Close()

	hashes := []string{"0xaa", "0xbb", "0xcc"}
	receipts, err := BatchReceipts(context.Background(), newTestClient(nil), srv.URL, hashes)
	require.NoError(t, err)
	require.Len(t, receipts, 3)
	for i, receipt := range receipts {
		require.NotNil(t, receipt)
		require.Equal(t, hashes[i], receipt.TransactionHash)
		require.Equal(t, uint64(i), HexUint64(receipt.GasUsed))
	}
}

func TestBatchReceiptsNilForMissing(t *testing.T) {
	srv := rpcStub(t, map[string]bool{"0xbb": true})
	defer srv.Close()

	receipts, err := BatchReceipts(context.Background(), newTestClient(nil), srv.URL, []string{"0xaa", "0xbb", "0xcc"})
	require.NoError(t, err)
	require.NotNil(t, receipts[0])
	require.Nil(t, receipts[1])
	require.NotNil(t, receipts[2])
}

func TestBatchReceiptsStrict(t *testing.T) {
	srv := rpcStub(t, map[string]bool{"0xbb": true})
	defer srv.Close()

	_, err := BatchReceiptsStrict(context.Background(), newTestClient(nil), srv.URL, []string{"0xaa", "0xbb"})
	require.ErrorIs(t, err, ErrMissingReceipt)
}

func TestBatchFeeHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqs))

		resps := make([]map[string]any, 0, len(reqs))
		for _, req := range reqs {
			blockHex := req.Params[1].(string)
			resps = append(resps, map[string]any{"id": req.ID, "result": map[string]any{
				"oldestBlock":   blockHex,
				"baseFeePerGas": []string{"0x6fc23ac00"}, // 30 gwei
				"reward":        [][]string{{"0x3b9aca00"}}, // 1 gwei
			}})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resps))
	}))
	defer srv.Close()

	fees, err := BatchFeeHistory(context.Background(), newTestClient(nil), srv.URL, []string{"0x10", "0x20"})
	require.NoError(t, err)
	require.Len(t, fees, 2)
	require.Equal(t, big.NewInt(31_000_000_000), fees[16])
	require.Equal(t, big.NewInt(31_000_000_000), fees[32])
}

func TestHexQuantity(t *testing.T) {
	require.Equal(t, big.NewInt(255), HexQuantity("0xff"))
	require.Equal(t, int64(0), HexQuantity("").Int64())
	require.Equal(t, int64(0), HexQuantity("junk").Int64())
	require.Equal(t, uint64(21000), HexUint64("0x5208"))
}
