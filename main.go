package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"loan-risk/logger"
)

var (
	name    = "loan-risk"
	version = "v0.0.1-default"
	commit  = ""

	configPathFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML config file",
		EnvVars: []string{"CONFIG_PATH"},
		Value:   "configs/config.yaml",
	}

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}
)

func main() {
	app := &cli.App{
		Name:     name,
		Version:  fmt.Sprintf("%s - (commit: %s)", version, commit),
		Compiled: time.Now(),
		Usage:    "Loan risk scoring and LLM credit analysis",
		Flags: []cli.Flag{
			configPathFlag,
			debugFlag,
		},
		Commands: []*cli.Command{
			serveCmd,
			scoreCmd,
			modelsCmd,
		},
		After: func(c *cli.Context) error {
			logger.Sync()
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("fatal error", err, zap.String("app", name))
		logger.Sync()
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}
