package savings

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/bbayazit16/l2savings/common"
	"github.com/bbayazit16/l2savings/ethfees"
	"github.com/bbayazit16/l2savings/fetch"
	"github.com/bbayazit16/l2savings/metrics"
)

// ChainProgress tags a progress event with the chain it came from, for
// fan-out consumers watching all estimators at once.
type ChainProgress struct {
	Chain    common.Chain        `json:"chain"`
	Progress common.CalcProgress `json:"progress"`
}

type ServiceOpts struct {
	Log     *zap.SugaredLogger
	Client  *fetch.Client
	Fees    *ethfees.Oracle
	Configs map[common.Chain]ChainConfig
}

// Service runs every configured estimator for an address concurrently and
// combines the results. One chain's outage degrades to a zero contribution
// instead of failing the whole report.
type Service struct {
	log     *zap.SugaredLogger
	deps    Deps
	configs map[common.Chain]ChainConfig
}

func NewService(opts ServiceOpts) *Service {
	return &Service{
		log:     opts.Log,
		deps:    Deps{Log: opts.Log, Client: opts.Client, Fees: opts.Fees},
		configs: opts.Configs,
	}
}

// Chains returns the chains the service will estimate, in display order.
func (s *Service) Chains() []common.Chain {
	chains := make([]common.Chain, 0, len(s.configs))
	for _, chain := range common.EstimatorChains {
		if _, ok := s.configs[chain]; ok {
			chains = append(chains, chain)
		}
	}
	return chains
}

// CalculateAll fans out to all configured estimators and waits for every one
// of them. The returned map holds one entry per configured chain plus the
// combined "all" bucket. onProgress, when set, is called from the estimator
// goroutines and must be safe for concurrent use.
func (s *Service) CalculateAll(ctx context.Context, address string, onProgress func(ChainProgress)) (common.AllSavings, error) {
	address, err := common.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	chains := s.Chains()
	results := make([]common.Savings, len(chains))

	var wg sync.WaitGroup
	for i, chain := range chains {
		wg.Add(1)
		go func(i int, chain common.Chain) {
			defer wg.Done()
			results[i] = s.calculateChain(ctx, chain, address, onProgress)
		}(i, chain)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all := make(common.AllSavings, len(chains)+1)
	for i, chain := range chains {
		all[chain] = results[i]
	}
	all[common.ChainAll] = Combine(results...)
	return all, nil
}

func (s *Service) calculateChain(ctx context.Context, chain common.Chain, address string, onProgress func(ChainProgress)) common.Savings {
	var progress ProgressFunc
	if onProgress != nil {
		progress = func(p common.CalcProgress) {
			onProgress(ChainProgress{Chain: chain, Progress: p})
		}
	}

	calculator, err := New(s.configs[chain], s.deps, address, progress)
	if err != nil {
		s.log.Errorw("could not construct estimator", "chain", chain, "err", err)
		metrics.IncEstimatorFailed(string(chain))
		return common.NoSavings()
	}

	savings, err := calculator.CalculateSavings(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Errorw("estimator failed, counting chain as zero contribution",
				"chain", chain, "address", address, "err", err)
		}
		metrics.IncEstimatorFailed(string(chain))
		return common.NoSavings()
	}
	return savings
}
