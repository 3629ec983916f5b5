// Calculates the savings for one address and prints a summary table, the raw
// JSON report, or a percent-encoded export snapshot
package cmd_calc //nolint:stylecheck

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/bbayazit16/l2savings/common"
	"github.com/bbayazit16/l2savings/ethfees"
	"github.com/bbayazit16/l2savings/fetch"
	"github.com/bbayazit16/l2savings/savings"
)

var (
	log *zap.SugaredLogger

	cliFlags = []cli.Flag{
		&cli.BoolFlag{
			Name:     "debug",
			EnvVars:  []string{"DEBUG"},
			Usage:    "enable debug logging",
			Category: "Calculator Configuration",
		},
		&cli.StringFlag{
			Name:     "address",
			Aliases:  []string{"a"},
			EnvVars:  []string{"ADDRESS"},
			Required: true,
			Usage:    "address to calculate savings for",
			Category: "Calculator Configuration",
		},
		&cli.StringSliceFlag{
			Name:     "chain",
			Aliases:  []string{"chains"},
			EnvVars:  []string{"CHAINS"},
			Usage:    "chains to include (default: all supported)",
			Category: "Calculator Configuration",
		},

		// Data sources
		&cli.StringFlag{
			Name:     "eth-rpc",
			EnvVars:  []string{"ETH_RPC"},
			Value:    "https://cloudflare-eth.com",
			Usage:    "L1 JSON-RPC endpoint (oracle reads and fee history)",
			Category: "Data Sources",
		},
		&cli.StringFlag{
			Name:     "fee-subgraph",
			EnvVars:  []string{"FEE_SUBGRAPH"},
			Value:    "https://api.thegraph.com/subgraphs/name/dmihal/ethereum-average-fees",
			Usage:    "average daily fee index endpoint",
			Category: "Data Sources",
		},

		// Output
		&cli.BoolFlag{
			Name:     "json",
			Usage:    "print the raw report as JSON instead of a table",
			Category: "Output",
		},
		&cli.BoolFlag{
			Name:     "localized",
			Usage:    "with --json, print display-formatted strings instead of numbers",
			Category: "Output",
		},
		&cli.StringFlag{
			Name:     "export",
			Usage:    "write a percent-encoded export snapshot to this file",
			Category: "Output",
		},
	}
)

var Command = cli.Command{
	Name:   "calc",
	Usage:  "Calculate savings for an address across all supported L2s",
	Flags:  cliFlags,
	Action: runCalc,
}

func runCalc(cCtx *cli.Context) error {
	var (
		debug      = cCtx.Bool("debug")
		rawAddress = cCtx.String("address")
		chains     = cCtx.StringSlice("chain")
		ethRPC     = cCtx.String("eth-rpc")
		subgraph   = cCtx.String("fee-subgraph")
		asJSON     = cCtx.Bool("json")
		localized  = cCtx.Bool("localized")
		exportFile = cCtx.String("export")
	)

	log = common.GetLogger(debug, false)
	defer func() { _ = log.Sync() }()

	address, err := common.ParseAddress(rawAddress)
	if err != nil {
		return err
	}

	configs := savings.DefaultConfigs()
	if len(chains) > 0 {
		selected := make(map[common.Chain]savings.ChainConfig, len(chains))
		for _, name := range chains {
			cfg, ok := configs[common.Chain(name)]
			if !ok {
				return fmt.Errorf("unknown chain %q", name)
			}
			selected[cfg.Chain] = cfg
		}
		configs = selected
	}

	client := fetch.NewClient(fetch.ClientOpts{
		Log:   log,
		Alert: func(msg string) { log.Warn(msg) },
	})
	oracle, err := ethfees.NewOracle(ethfees.OracleOpts{
		Log:         log,
		Client:      client,
		EthRPC:      ethRPC,
		SubgraphURL: subgraph,
	})
	if err != nil {
		return err
	}

	service := savings.NewService(savings.ServiceOpts{
		Log:     log,
		Client:  client,
		Fees:    oracle,
		Configs: configs,
	})

	log.Infow("Calculating savings", "address", address, "chains", len(configs))
	all, err := service.CalculateAll(cCtx.Context, address, func(p savings.ChainProgress) {
		log.Debugw("progress",
			"chain", p.Chain,
			"phase", p.Progress.Phase,
			"current", p.Progress.Current,
			"total", p.Progress.Total,
		)
	})
	if err != nil {
		return err
	}

	if exportFile != "" {
		snapshot, err := savings.PrepareExport(all)
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportFile, []byte(snapshot), 0o600); err != nil {
			return err
		}
		log.Infow("Wrote export snapshot", "file", exportFile)
	}

	if asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if localized {
			return encoder.Encode(savings.LocalizeAll(all))
		}
		return encoder.Encode(all)
	}

	printSummary(all)
	return nil
}

func printSummary(all common.AllSavings) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Chain", "Txs", "L2 Fees (ETH)", "L1 Fees (ETH)", "Saved (ETH)", "Saved (USD)", "x Cheaper"})

	rows := append([]common.Chain{}, common.EstimatorChains...)
	rows = append(rows, common.ChainAll)
	for _, chain := range rows {
		s, ok := all[chain]
		if !ok {
			continue
		}
		l := savings.Localize(s)
		table.Append([]string{
			chain.DisplayName(),
			l.L2.TransactionsSent,
			l.L2.FeesSpent.Ether,
			l.L1.FeesSpent.Ether,
			l.Saved.Ether,
			l.Saved.USD,
			l.Saved.TimesCheaper,
		})
	}
	table.Render()

	if total, ok := all[common.ChainAll]; ok {
		common.Printer.Printf("Total saved: %.4f ETH ($%.2f), %.2fx cheaper than L1\n",
			total.Saved.Ether, total.Saved.USD, total.Saved.TimesCheaper)
	}
}
