package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

var (
	globalFlags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "log gateway traffic at debug level",
			Aliases: []string{"d"},
			EnvVars: []string{"IB_CLI_DEBUG"},
		},
	}

	waitFlag = &cli.DurationFlag{
		Name:  "wait",
		Usage: "how long to wait for the account download",
		Value: 15 * time.Second,
	}
	costFlag = &cli.IntFlag{
		Name:  "cost",
		Usage: "bcrypt cost",
		Value: 12,
	}
	bytesFlag = &cli.IntFlag{
		Name:  "bytes",
		Usage: "random bytes in the secret",
		Value: 32,
	}
)

// Gateway settings come from the same environment (or ENV_FILE) as the
// service.
var commands = []*cli.Command{
	{
		Name:   "check",
		Usage:  "Connect to the gateway and report whether the handshake completes",
		Action: check,
	}, {
		Name:   "balance",
		Usage:  "Print the account summary, cash balances and positions",
		Action: balance,
		Flags:  []cli.Flag{waitFlag},
	}, {
		Name:      "hash-password",
		Usage:     "Print a bcrypt hash for API_PASSWORD",
		ArgsUsage: "<password>",
		Action:    hashPasswordCmd,
		Flags:     []cli.Flag{costFlag},
	}, {
		Name:   "secret",
		Usage:  "Print a random JWT_SECRET",
		Action: secretCmd,
		Flags:  []cli.Flag{bytesFlag},
	},
}
