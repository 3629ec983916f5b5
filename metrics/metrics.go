package metrics

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

var (
	fetchRequests    = metrics.NewCounter("fetch_requests_total")
	fetchRateLimited = metrics.NewCounter("fetch_rate_limited_total")
	fetchFailures    = metrics.NewCounter("fetch_failures_total")
	receiptBatches   = metrics.NewCounter("receipt_batches_total")
	feeCacheHits     = metrics.NewCounter("fee_cache_hits_total")
	feeCacheMisses   = metrics.NewCounter("fee_cache_misses_total")
	feeFallbacks     = metrics.NewCounter("fee_fallbacks_total")
)

const (
	savingsCalculatedChainLabel = `savings_calculated_total{chain="%s"}`
	estimatorFailedChainLabel   = `estimator_failed_total{chain="%s"}`
)

func IncFetchRequests() { fetchRequests.Inc() }

func IncFetchRateLimited() { fetchRateLimited.Inc() }

func IncFetchFailures() { fetchFailures.Inc() }

func IncReceiptBatches() { receiptBatches.Inc() }

func IncFeeCacheHits() { feeCacheHits.Inc() }

func IncFeeCacheMisses() { feeCacheMisses.Inc() }

func IncFeeFallbacks() { feeFallbacks.Inc() }

func IncSavingsCalculated(chain string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(savingsCalculatedChainLabel, chain)).Inc()
}

func IncEstimatorFailed(chain string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(estimatorFailedChainLabel, chain)).Inc()
}
