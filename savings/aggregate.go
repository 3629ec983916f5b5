package savings

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/bbayazit16/l2savings/common"
)

// Combine merges per-chain results into one Savings: numeric leaves sum,
// detail lists concatenate, and the aggregate ratio is recomputed from the
// summed fees. A zero L2 fee total yields a ratio of 0, never Inf.
func Combine(savingsList ...common.Savings) common.Savings {
	var total common.Savings
	for _, s := range savingsList {
		total.L1.GasSpent += s.L1.GasSpent
		total.L1.FeesSpent.Ether += s.L1.FeesSpent.Ether
		total.L1.FeesSpent.USD += s.L1.FeesSpent.USD

		total.L2.TransactionsSent += s.L2.TransactionsSent
		total.L2.GasSpent += s.L2.GasSpent
		total.L2.FeesSpent.Ether += s.L2.FeesSpent.Ether
		total.L2.FeesSpent.USD += s.L2.FeesSpent.USD

		total.Saved.Ether += s.Saved.Ether
		total.Saved.USD += s.Saved.USD

		total.Details = append(total.Details, s.Details...)
	}

	if total.L2.FeesSpent.Ether != 0 {
		total.Saved.TimesCheaper = total.L1.FeesSpent.Ether / total.L2.FeesSpent.Ether
	}
	return total
}

// Localize renders a Savings for display: fees and ratios with four decimals,
// counters with thousands separators. It never mutates its input, so calling
// it twice formats identically.
func Localize(s common.Savings) common.LocalizedSavings {
	p := common.Printer

	details := make([]common.TransactionSavingsLocalized, len(s.Details))
	for i, d := range s.Details {
		details[i] = common.TransactionSavingsLocalized{
			L2:           d.L2,
			Hash:         d.Hash,
			L2Fee:        p.Sprintf("%.4f", d.L2Fee),
			L1Fee:        p.Sprintf("%.4f", d.L1Fee),
			Saved:        p.Sprintf("%.4f", d.Saved),
			TimesCheaper: p.Sprintf("%.4f", d.TimesCheaper),
		}
	}

	return common.LocalizedSavings{
		L1: common.L1SummaryLocalized{
			GasSpent: p.Sprintf("%d", s.L1.GasSpent),
			FeesSpent: common.FeesSpentLocalized{
				Ether: p.Sprintf("%.4f", s.L1.FeesSpent.Ether),
				USD:   p.Sprintf("%.4f", s.L1.FeesSpent.USD),
			},
		},
		L2: common.L2SummaryLocalized{
			TransactionsSent: p.Sprintf("%d", s.L2.TransactionsSent),
			GasSpent:         p.Sprintf("%d", s.L2.GasSpent),
			FeesSpent: common.FeesSpentLocalized{
				Ether: p.Sprintf("%.4f", s.L2.FeesSpent.Ether),
				USD:   p.Sprintf("%.4f", s.L2.FeesSpent.USD),
			},
		},
		Saved: common.SavedSummaryLocalized{
			Ether:        p.Sprintf("%.4f", s.Saved.Ether),
			USD:          p.Sprintf("%.4f", s.Saved.USD),
			TimesCheaper: p.Sprintf("%.4f", s.Saved.TimesCheaper),
		},
		Details: details,
	}
}

// LocalizeAll localizes every chain's result. A nil map yields the pending
// placeholder for every displayable chain, distinguishable from a genuine
// all-zero result.
func LocalizeAll(all common.AllSavings) common.AllSavingsLocalized {
	localized := make(common.AllSavingsLocalized, len(common.EstimatorChains)+1)
	if all == nil {
		for _, chain := range common.EstimatorChains {
			localized[chain] = common.NoSavingsLocalized()
		}
		localized[common.ChainAll] = common.NoSavingsLocalized()
		return localized
	}
	for chain, s := range all {
		localized[chain] = Localize(s)
	}
	return localized
}

// PrepareExport serializes the full result for download, percent-encoded.
// The aggregate bucket's details duplicate every per-chain entry, so they
// are stripped to bound the export size; per-chain details stay intact.
func PrepareExport(all common.AllSavings) (string, error) {
	stripped := make(common.AllSavings, len(all))
	for chain, s := range all {
		if chain == common.ChainAll {
			s.Details = []common.TransactionSavings{}
		}
		stripped[chain] = s
	}

	encoded, err := json.Marshal(stripped)
	if err != nil {
		return "", fmt.Errorf("marshal savings export: %w", err)
	}
	return url.QueryEscape(string(encoded)), nil
}
