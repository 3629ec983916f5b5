// Runs the savings API webserver (JSON endpoints and SSE progress streams)
package cmd_serve //nolint:stylecheck

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lithammer/shortuuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/bbayazit16/l2savings/api"
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
			Category: "Server Configuration",
		},
		&cli.BoolFlag{
			Name:     "prod-log",
			EnvVars:  []string{"PROD_LOG"},
			Usage:    "use JSON production logging",
			Category: "Server Configuration",
		},
		&cli.StringFlag{
			Name:     "api-listen-addr",
			EnvVars:  []string{"API_ADDR"},
			Value:    ":8080",
			Usage:    "API listen address (host:port)",
			Category: "Server Configuration",
		},
		&cli.DurationFlag{
			Name:     "drain-duration",
			EnvVars:  []string{"DRAIN_DURATION"},
			Value:    time.Second,
			Usage:    "how long to wait after flipping readiness before shutdown",
			Category: "Server Configuration",
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
	}
)

var Command = cli.Command{
	Name:   "serve",
	Usage:  "Run the savings API server",
	Flags:  cliFlags,
	Action: runServer,
}

func runServer(cCtx *cli.Context) error {
	var (
		debug         = cCtx.Bool("debug")
		prodLog       = cCtx.Bool("prod-log")
		listenAddr    = cCtx.String("api-listen-addr")
		drainDuration = cCtx.Duration("drain-duration")
		ethRPC        = cCtx.String("eth-rpc")
		subgraph      = cCtx.String("fee-subgraph")
	)

	log = common.GetLogger(debug, prodLog)
	defer func() { _ = log.Sync() }()

	uid := shortuuid.New()
	log = log.With("uid", uid)
	log.Infow("Starting l2savings server", "version", common.Version, "listenAddr", listenAddr)

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
		Configs: savings.DefaultConfigs(),
	})

	server := api.New(&api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		Log:                      log,
		Service:                  service,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              10 * time.Second,
		WriteTimeout:             10 * time.Minute, // SSE streams stay open for a whole calculation
	})
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	log.Info("Shutting down...")
	server.Shutdown()
	return nil
}
