package main

import (
	"log"
	"os"

	cmd_calc "github.com/bbayazit16/l2savings/cmd/calc"
	cmd_serve "github.com/bbayazit16/l2savings/cmd/serve"
	"github.com/bbayazit16/l2savings/common"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:    "l2savings",
		Usage:   "Estimate how much an address saved in fees by using L2 rollups instead of Ethereum mainnet",
		Version: common.Version,
		Commands: []*cli.Command{
			&cmd_calc.Command,
			&cmd_serve.Command,
		},
		HideVersion: false,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
