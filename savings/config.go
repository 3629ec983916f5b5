package savings

import (
	"time"

	"github.com/bbayazit16/l2savings/common"
)

// Model selects the cost model an estimator runs with.
type Model string

const (
	// ModelReceipt: OP-stack chains where both the L1 data fee and the L1 gas
	// price at transaction time are in the receipt.
	ModelReceipt Model = "receipt"

	// ModelNitro: Arbitrum after the Nitro upgrade, gas-equivalent accounting
	// with the L1 calldata share reported in the receipt.
	ModelNitro Model = "nitro"

	// ModelSignature: classic (pre-Nitro) Arbitrum, function-signature
	// heuristics over a native gas unit with no fixed L1 conversion.
	ModelSignature Model = "signature"

	// ModelAverage: gas-equivalent chains with no per-transaction L1 fee
	// signal at all; the day-average baseline stands in.
	ModelAverage Model = "average"

	// ModelZkSyncLite: token- and batch-aware zk rollup accounting.
	ModelZkSyncLite Model = "zksynclite"
)

// SignatureRule maps a decoded function name to a hard-coded L1 gas estimate.
// Rules are evaluated in order; a Substring rule fires when the method name
// contains it, an Exact rule on full equality.
type SignatureRule struct {
	Substring string
	Exact     string
	Gas       uint64
}

// DefaultSignatureRules is the classic-Arbitrum lookup table. Substring rules
// come first so that e.g. "swapExactTokensForTokens" resolves without its own
// entry.
func DefaultSignatureRules() []SignatureRule {
	return []SignatureRule{
		{Substring: "transfer", Gas: 50_000},
		{Substring: "stake", Gas: 150_000},
		{Substring: "swap", Gas: 105_000},
		{Substring: "withdraw", Gas: 100_000},
		{Exact: "approve", Gas: 50_000},
		{Exact: "purchase", Gas: 200_000},
		{Exact: "deposit", Gas: 100_000},
		{Exact: "multicall", Gas: 150_000},
		{Exact: "addLiquidity", Gas: 200_000},
		{Exact: "addLiquidityETH", Gas: 200_000},
		{Exact: "addTokenLiquidity", Gas: 200_000},
		{Exact: "closePosition", Gas: 200_000},
		{Exact: "removeLiquidity", Gas: 200_000},
		{Exact: "removeLiquidityETH", Gas: 200_000},
		{Exact: "removeLiquidityWithPermit", Gas: 200_000},
		{Exact: "removeLiquidityETHWithPermit", Gas: 200_000},
		{Exact: "removeLiquidityETHSupportingFeeOnTransferTokens", Gas: 200_000},
		{Exact: "removeLiquidityETHWithPermitSupportingFeeOnTransferTokens", Gas: 200_000},
	}
}

// ZkGasEntry pairs the rollup-native gas amount with the L1 gas estimate for
// one zkSync Lite operation type.
type ZkGasEntry struct {
	NativeGas uint64
	L1Gas     uint64
}

// ZkGasTable holds the zkSync Lite per-type gas estimates and the flat fee
// fallbacks used when fees were paid in an unrecognized token.
type ZkGasTable struct {
	EthTransfer   ZkGasEntry
	Erc20Transfer ZkGasEntry
	Swap          ZkGasEntry
	MintNFT       ZkGasEntry

	FlatFee          float64 // assumed fee in ether for cheap operations
	FlatFeeExpensive float64 // assumed fee in ether for swaps and mints
}

func DefaultZkGasTable() ZkGasTable {
	return ZkGasTable{
		EthTransfer:   ZkGasEntry{NativeGas: 1_045, L1Gas: 21_000},
		Erc20Transfer: ZkGasEntry{NativeGas: 1_045, L1Gas: 50_000},
		Swap:          ZkGasEntry{NativeGas: 2_350, L1Gas: 105_000},
		MintNFT:       ZkGasEntry{NativeGas: 2_874, L1Gas: 210_000},

		FlatFee:          0.0001,
		FlatFeeExpensive: 0.0002,
	}
}

// ChainConfig is everything chain-specific about an estimator run. Chunk
// sizes and delays are tuned per provider; the throttling is the estimator's
// responsibility, not the batch client's.
type ChainConfig struct {
	Chain common.Chain
	Model Model

	ExplorerAPIURL string
	ExplorerAPIKey string
	RPCURL         string

	// StartBlock excludes transactions before a migration entirely (Nitro).
	StartBlock uint64

	ChunkSize       int
	ChunkDelay      time.Duration
	ChunkRetryLimit int

	// StrictReceipts treats a missing batch result as a provider limit worth
	// retrying the chunk for; otherwise missing results are filtered out.
	StrictReceipts bool

	// FilterZeroGasPrice additionally drops gasPrice == "0" transactions
	// (OP-stack deposits show up this way).
	FilterZeroGasPrice bool

	// MaxTransactions caps cursor-paginated fetching (zkSync Lite).
	MaxTransactions int

	SignatureRules []SignatureRule
	ZkGas          ZkGasTable
}

// DefaultConfigs returns the supported chains with their explorer endpoints,
// API keys and RPC URLs taken from the environment.
func DefaultConfigs() map[common.Chain]ChainConfig {
	arbitrumModel := ModelNitro
	arbitrumStartBlock := uint64(22_213_298) // Nitro migration (+- 4 hours)
	if common.GetEnv("ARBITRUM_MODEL", "") == "classic" {
		arbitrumModel = ModelSignature
		arbitrumStartBlock = 0
	}

	return map[common.Chain]ChainConfig{
		common.ChainOptimism: {
			Chain:              common.ChainOptimism,
			Model:              ModelReceipt,
			ExplorerAPIURL:     common.GetEnv("OPTIMISM_EXPLORER_API", "https://api-optimistic.etherscan.io/api"),
			ExplorerAPIKey:     common.GetEnv("OPTIMISTIC_ETHERSCAN_API_KEY", ""),
			RPCURL:             common.GetEnv("OPTIMISM_RPC", "https://mainnet.optimism.io"),
			ChunkSize:          20,
			ChunkDelay:         200 * time.Millisecond,
			ChunkRetryLimit:    16,
			StrictReceipts:     true,
			FilterZeroGasPrice: true,
		},
		common.ChainBase: {
			Chain:              common.ChainBase,
			Model:              ModelReceipt,
			ExplorerAPIURL:     common.GetEnv("BASE_EXPLORER_API", "https://api.basescan.org/api"),
			ExplorerAPIKey:     common.GetEnv("BASESCAN_API_KEY", ""),
			RPCURL:             common.GetEnv("BASE_RPC", "https://mainnet.base.org"),
			ChunkSize:          20,
			ChunkDelay:         200 * time.Millisecond,
			ChunkRetryLimit:    16,
			StrictReceipts:     true,
			FilterZeroGasPrice: true,
		},
		common.ChainArbitrum: {
			Chain:           common.ChainArbitrum,
			Model:           arbitrumModel,
			ExplorerAPIURL:  common.GetEnv("ARBITRUM_EXPLORER_API", "https://api.arbiscan.io/api"),
			ExplorerAPIKey:  common.GetEnv("ARBISCAN_API_KEY", ""),
			RPCURL:          common.GetEnv("ARBITRUM_RPC", "https://arb1.arbitrum.io/rpc"),
			StartBlock:      arbitrumStartBlock,
			ChunkSize:       10,
			ChunkDelay:      200 * time.Millisecond,
			ChunkRetryLimit: 4,
			SignatureRules:  DefaultSignatureRules(),
		},
		common.ChainLinea: {
			Chain:           common.ChainLinea,
			Model:           ModelAverage,
			ExplorerAPIURL:  common.GetEnv("LINEA_EXPLORER_API", "https://api.lineascan.build/api"),
			ExplorerAPIKey:  common.GetEnv("LINEASCAN_API_KEY", ""),
			RPCURL:          common.GetEnv("LINEA_RPC", "https://rpc.linea.build"),
			ChunkSize:       10,
			ChunkDelay:      375 * time.Millisecond,
			ChunkRetryLimit: 6,
			StrictReceipts:  true,
		},
		common.ChainZkSyncLite: {
			Chain:           common.ChainZkSyncLite,
			Model:           ModelZkSyncLite,
			ExplorerAPIURL:  common.GetEnv("ZKSYNC_LITE_API", "https://api.zksync.io/api/v0.2"),
			MaxTransactions: 1_000,
			ZkGas:           DefaultZkGasTable(),
		},
	}
}
