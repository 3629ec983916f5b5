package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/bbayazit16/l2savings/metrics"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrMissingReceipt means a batch response entry had no result. Providers do
// this both for deposit-type transactions and when throttling silently, which
// is why estimators choose between the strict and the filtering variant.
var ErrMissingReceipt = errors.New("missing receipt in batch response")

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// FeeStatsPaid and FeeStatsPrices are the classic (pre-Nitro) Arbitrum
// receipt fee breakdown.
type FeeStatsPaid struct {
	L1Transaction string `json:"l1Transaction"`
	L1Calldata    string `json:"l1Calldata"`
	L2Storage     string `json:"l2Storage"`
	L2Computation string `json:"l2Computation"`
}

type FeeStatsPrices struct {
	L1Calldata string `json:"l1Calldata"`
}

type FeeStats struct {
	Paid   FeeStatsPaid   `json:"paid"`
	Prices FeeStatsPrices `json:"prices"`
}

// TxReceipt carries the union of receipt fields the cost models read. All
// quantities are hex strings as returned by eth_getTransactionReceipt.
type TxReceipt struct {
	TransactionHash   string `json:"transactionHash"`
	Status            string `json:"status"`
	GasUsed           string `json:"gasUsed"`
	EffectiveGasPrice string `json:"effectiveGasPrice"`

	// OP-stack chains
	L1Fee      string `json:"l1Fee"`
	L1GasPrice string `json:"l1GasPrice"`
	L1GasUsed  string `json:"l1GasUsed"`

	// Arbitrum Nitro
	GasUsedForL1  string `json:"gasUsedForL1"`
	L1BlockNumber string `json:"l1BlockNumber"`

	// Arbitrum classic
	FeeStats *FeeStats `json:"feeStats,omitempty"`
}

// BatchReceipts issues a single JSON-RPC batch of eth_getTransactionReceipt
// calls and maps the responses back to input order via the request id. Absent
// results come back as nil entries; callers decide whether that is filterable
// noise or fatal (see BatchReceiptsStrict).
func BatchReceipts(ctx context.Context, client *Client, rpcURL string, hashes []string) ([]*TxReceipt, error) {
	if len(hashes) == 0 {
		return []*TxReceipt{}, nil
	}

	reqs := make([]rpcRequest, len(hashes))
	for i, hash := range hashes {
		reqs[i] = rpcRequest{JSONRPC: "2.0", Method: "eth_getTransactionReceipt", Params: []any{hash}, ID: i}
	}

	var resps []rpcResponse
	if err := client.PostJSON(ctx, rpcURL, reqs, &resps); err != nil {
		return nil, err
	}
	metrics.IncReceiptBatches()

	receipts := make([]*TxReceipt, len(hashes))
	for _, resp := range resps {
		if resp.ID < 0 || resp.ID >= len(hashes) {
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("receipt batch entry %d: rpc error %d: %s", resp.ID, resp.Error.Code, resp.Error.Message)
		}
		if len(resp.Result) == 0 || string(resp.Result) == "null" {
			continue
		}
		receipt := new(TxReceipt)
		if err := json.Unmarshal(resp.Result, receipt); err != nil {
			return nil, fmt.Errorf("decode receipt %d: %w", resp.ID, err)
		}
		receipts[resp.ID] = receipt
	}
	return receipts, nil
}

// BatchReceiptsStrict is BatchReceipts for chains that treat a missing result
// as a provider limit rather than filterable noise.
func BatchReceiptsStrict(ctx context.Context, client *Client, rpcURL string, hashes []string) ([]*TxReceipt, error) {
	receipts, err := BatchReceipts(ctx, client, rpcURL, hashes)
	if err != nil {
		return nil, err
	}
	for i, receipt := range receipts {
		if receipt == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingReceipt, hashes[i])
		}
	}
	return receipts, nil
}

type feeHistoryResult struct {
	OldestBlock   string     `json:"oldestBlock"`
	BaseFeePerGas []string   `json:"baseFeePerGas"`
	Reward        [][]string `json:"reward"`
}

// BatchFeeHistory fetches eth_feeHistory for each block in one batch call and
// returns blockNumber -> (baseFee + median priority fee) in wei.
func BatchFeeHistory(ctx context.Context, client *Client, rpcURL string, blockNumbersHex []string) (map[uint64]*big.Int, error) {
	if len(blockNumbersHex) == 0 {
		return map[uint64]*big.Int{}, nil
	}

	reqs := make([]rpcRequest, len(blockNumbersHex))
	for i, blockHex := range blockNumbersHex {
		reqs[i] = rpcRequest{JSONRPC: "2.0", Method: "eth_feeHistory", Params: []any{1, blockHex, []int{50}}, ID: i}
	}

	var resps []rpcResponse
	if err := client.PostJSON(ctx, rpcURL, reqs, &resps); err != nil {
		return nil, err
	}

	fees := make(map[uint64]*big.Int, len(blockNumbersHex))
	for _, resp := range resps {
		if resp.Error != nil {
			return nil, fmt.Errorf("fee history entry %d: rpc error %d: %s", resp.ID, resp.Error.Code, resp.Error.Message)
		}
		var result feeHistoryResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("decode fee history %d: %w", resp.ID, err)
		}
		if len(result.BaseFeePerGas) == 0 || len(result.Reward) == 0 || len(result.Reward[0]) == 0 {
			return nil, fmt.Errorf("fee history entry %d: empty response", resp.ID)
		}
		blockNumber, err := hexutil.DecodeUint64(result.OldestBlock)
		if err != nil {
			return nil, fmt.Errorf("decode fee history block number: %w", err)
		}
		baseFee, err := hexutil.DecodeBig(result.BaseFeePerGas[0])
		if err != nil {
			return nil, fmt.Errorf("decode base fee: %w", err)
		}
		reward, err := hexutil.DecodeBig(result.Reward[0][0])
		if err != nil {
			return nil, fmt.Errorf("decode priority fee: %w", err)
		}
		fees[blockNumber] = new(big.Int).Add(baseFee, reward)
	}
	return fees, nil
}

// HexQuantity parses a 0x-prefixed hex quantity into a big.Int, tolerating
// empty fields (returns zero).
func HexQuantity(s string) *big.Int {
	if s == "" {
		return new(big.Int)
	}
	n, err := hexutil.DecodeBig(s)
	if err != nil {
		return new(big.Int)
	}
	return n
}

// HexUint64 is HexQuantity for values that fit a uint64 (gas amounts).
func HexUint64(s string) uint64 {
	if s == "" {
		return 0
	}
	n, err := hexutil.DecodeUint64(s)
	if err != nil {
		return 0
	}
	return n
}
