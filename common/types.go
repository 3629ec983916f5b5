package common

// Chain identifies a supported L2 (or the "all" aggregate bucket).
type Chain string

const (
	ChainAll        Chain = "all"
	ChainOptimism   Chain = "optimism"
	ChainArbitrum   Chain = "arbitrum"
	ChainZkSyncLite Chain = "zkSyncLite"
	ChainLinea      Chain = "linea"
	ChainBase       Chain = "base"
)

// EstimatorChains are the chains with an estimator behind them, i.e. every
// chain except the aggregate bucket.
var EstimatorChains = []Chain{ChainOptimism, ChainArbitrum, ChainZkSyncLite, ChainLinea, ChainBase}

func (c Chain) DisplayName() string {
	switch c {
	case ChainAll:
		return "All L2s"
	case ChainOptimism:
		return "Optimism"
	case ChainArbitrum:
		return "Arbitrum"
	case ChainZkSyncLite:
		return "ZkSync Lite"
	case ChainLinea:
		return "Linea"
	case ChainBase:
		return "Base"
	}
	return string(c)
}

func (c Chain) ExplorerURI() string {
	switch c {
	case ChainOptimism:
		return "https://optimistic.etherscan.io"
	case ChainArbitrum:
		return "https://arbiscan.io"
	case ChainZkSyncLite:
		return "https://zkscan.io"
	case ChainLinea:
		return "https://lineascan.build"
	case ChainBase:
		return "https://basescan.org"
	}
	return "https://blockscan.com"
}

// Phase is the stage an estimator run is in. Consumers must treat
// current==total as completion only when the phase is PhaseDone.
type Phase string

const (
	PhaseFetchingReceipts Phase = "fetching-receipts"
	PhaseCalculatingFees  Phase = "calculating-fees"
	PhaseDone             Phase = "done"
)

// CalcProgress is one progress event of an estimator run. Total is -1 while
// the amount of work is not yet known.
type CalcProgress struct {
	Phase   Phase `json:"phase"`
	Current int   `json:"current"`
	Total   int   `json:"total"`
}

// Transaction is one record of an explorer txlist API response. All numeric
// fields arrive as decimal strings (etherscan convention).
type Transaction struct {
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"`
	Input         string `json:"input"`
	Nonce         string `json:"nonce"`
	GasUsed       string `json:"gasUsed"`
	GasPrice      string `json:"gasPrice"`
	TimeStamp     string `json:"timeStamp"`
	BlockNumber   string `json:"blockNumber"`
	FunctionName  string `json:"functionName"`
	ReceiptStatus string `json:"txreceipt_status"`
}

// TransactionSavings is the per-transaction result. Invariant:
// Saved == L1Fee - L2Fee. TimesCheaper is 0 when L2Fee is zero, keeping the
// struct JSON-encodable.
type TransactionSavings struct {
	L2           Chain   `json:"L2"`
	Hash         string  `json:"hash"`
	L2Fee        float64 `json:"L2Fee"`
	L1Fee        float64 `json:"L1Fee"`
	Saved        float64 `json:"saved"`
	TimesCheaper float64 `json:"timesCheaper"`
}

type FeesSpent struct {
	Ether float64 `json:"ether"`
	USD   float64 `json:"usd"`
}

type L1Summary struct {
	GasSpent  uint64    `json:"gasSpent"`
	FeesSpent FeesSpent `json:"feesSpent"`
}

type L2Summary struct {
	TransactionsSent int       `json:"transactionsSent"`
	GasSpent         uint64    `json:"gasSpent"`
	FeesSpent        FeesSpent `json:"feesSpent"`
}

type SavedSummary struct {
	Ether        float64 `json:"ether"`
	USD          float64 `json:"usd"`
	TimesCheaper float64 `json:"timesCheaper"`
}

// Savings is the result for one chain, or the aggregate of several chains.
type Savings struct {
	L1      L1Summary            `json:"L1"`
	L2      L2Summary            `json:"L2"`
	Saved   SavedSummary         `json:"saved"`
	Details []TransactionSavings `json:"details"`
}

// NoSavings is the canonical zero-value result (fresh Details slice so
// callers can append without aliasing).
func NoSavings() Savings {
	return Savings{Details: []TransactionSavings{}}
}

// AllSavings holds one Savings per estimator chain plus the "all" aggregate.
type AllSavings map[Chain]Savings

// Localized mirrors of the result types, every numeric leaf stringified for
// display.

type TransactionSavingsLocalized struct {
	L2           Chain  `json:"L2"`
	Hash         string `json:"hash"`
	L2Fee        string `json:"L2Fee"`
	L1Fee        string `json:"L1Fee"`
	Saved        string `json:"saved"`
	TimesCheaper string `json:"timesCheaper"`
}

type FeesSpentLocalized struct {
	Ether string `json:"ether"`
	USD   string `json:"usd"`
}

type L1SummaryLocalized struct {
	GasSpent  string             `json:"gasSpent"`
	FeesSpent FeesSpentLocalized `json:"feesSpent"`
}

type L2SummaryLocalized struct {
	TransactionsSent string             `json:"transactionsSent"`
	GasSpent         string             `json:"gasSpent"`
	FeesSpent        FeesSpentLocalized `json:"feesSpent"`
}

type SavedSummaryLocalized struct {
	Ether        string `json:"ether"`
	USD          string `json:"usd"`
	TimesCheaper string `json:"timesCheaper"`
}

type LocalizedSavings struct {
	L1      L1SummaryLocalized            `json:"L1"`
	L2      L2SummaryLocalized            `json:"L2"`
	Saved   SavedSummaryLocalized         `json:"saved"`
	Details []TransactionSavingsLocalized `json:"details"`
}

type AllSavingsLocalized map[Chain]LocalizedSavings

// PendingValue marks a result that has not been fetched yet in localized
// output. Distinguishable from a genuine zero, which renders as "0.0000".
const PendingValue = "..."

// NoSavingsLocalized is the pre-fetch placeholder shown before any data
// arrives.
func NoSavingsLocalized() LocalizedSavings {
	return LocalizedSavings{
		L1: L1SummaryLocalized{
			GasSpent:  PendingValue,
			FeesSpent: FeesSpentLocalized{Ether: PendingValue, USD: PendingValue},
		},
		L2: L2SummaryLocalized{
			TransactionsSent: PendingValue,
			GasSpent:         PendingValue,
			FeesSpent:        FeesSpentLocalized{Ether: PendingValue, USD: PendingValue},
		},
		Saved: SavedSummaryLocalized{
			Ether:        PendingValue,
			USD:          PendingValue,
			TimesCheaper: PendingValue,
		},
		Details: []TransactionSavingsLocalized{},
	}
}
