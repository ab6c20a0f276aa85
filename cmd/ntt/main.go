// Command ntt maintains the ledger store and inspects settlements.
package main

import (
	"fmt"
	"os"

	"github.com/nspcc-dev/ntt-ledger/common"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to the YAML configuration file",
	EnvVars: []string{"NTT_CONFIG"},
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "ntt",
		Usage:   "Non-transferable value ledger tool",
		Version: common.VersionString(common.Version),
		Flags:   []cli.Flag{configFlag},
		Commands: []*cli.Command{
			dumpCommand,
			restoreCommand,
			checkCommand,
			balanceCommand,
			supplyCommand,
			pollCommand,
		},
	}
}
