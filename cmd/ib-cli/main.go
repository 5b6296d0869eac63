package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var l = zap.NewNop()

func main() {
	app := &cli.App{
		Name:     "ib-cli",
		Usage:    "Operator tools for the IB API service",
		Version:  "v1.0.0",
		Before:   before,
		After:    after,
		Flags:    globalFlags,
		Commands: commands,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func before(c *cli.Context) error {
	if !c.Bool("debug") {
		return nil
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	l = logger
	return nil
}

func after(*cli.Context) error {
	_ = l.Sync()
	return nil
}
