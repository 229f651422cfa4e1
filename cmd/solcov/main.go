// solcov replays transactions of a running node and reports the Solidity
// source coverage of their execution traces.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	artifactsFlag = &cli.StringFlag{
		Name:  "artifacts",
		Usage: "Directory holding the compiled contract artifacts",
	}
	sourcesFlag = &cli.StringFlag{
		Name:  "sources",
		Usage: "Directory holding the Solidity sources",
	}
	networkIDFlag = &cli.Uint64Flag{
		Name:  "networkid",
		Usage: "Network identifier the artifacts were deployed to",
	}
	outputFlag = &cli.StringFlag{
		Name:  "output",
		Usage: "Path of the Istanbul JSON report",
	}
	lcovFlag = &cli.StringFlag{
		Name:  "lcov",
		Usage: "Also write an LCOV tracefile to this path",
	}
	instrumentationFlag = &cli.StringFlag{
		Name:  "instrumentation",
		Usage: "Directory holding the instrumentation dumps of the sources",
	}
	concurrencyFlag = &cli.IntFlag{
		Name:  "concurrency",
		Usage: "Maximum number of parallel trace and code requests",
	}
	rpcFlag = &cli.StringFlag{
		Name:  "rpc",
		Usage: "JSON-RPC endpoint of the node (must expose the debug namespace)",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "Write logs to a rotated file instead of stderr",
	}
	noColorFlag = &cli.BoolFlag{
		Name:  "nocolor",
		Usage: "Disable colored output",
	}
)

var app = &cli.App{
	Name:  "solcov",
	Usage: "Solidity coverage from replayed execution traces",
	Flags: []cli.Flag{
		configFileFlag,
		artifactsFlag,
		sourcesFlag,
		networkIDFlag,
		outputFlag,
		lcovFlag,
		instrumentationFlag,
		concurrencyFlag,
		rpcFlag,
		verbosityFlag,
		logFileFlag,
		noColorFlag,
	},
	Before: setup,
	Commands: []*cli.Command{
		replayCommand,
		summaryCommand,
		{
			Name:      "dumpconfig",
			Usage:     "Export configuration values in a TOML format",
			ArgsUsage: "<dumpfile (optional)>",
			Action:    dumpConfig,
		},
	},
}

func setup(ctx *cli.Context) error {
	setupLogging(ctx)
	// Match GOMAXPROCS to the container CPU quota.
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		log.Warn("Failed to set GOMAXPROCS", "err", err)
	}
	return nil
}

func setupLogging(ctx *cli.Context) {
	var (
		output   io.Writer = os.Stderr
		useColor           = (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
	)
	if ctx.Bool(noColorFlag.Name) {
		color.NoColor = true
		useColor = false
	}
	if useColor {
		output = colorable.NewColorableStderr()
	}
	if file := ctx.String(logFileFlag.Name); file != "" {
		output = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 10,
			Compress:   true,
		}
		useColor = false
	}
	level := log.FromLegacyLevel(ctx.Int(verbosityFlag.Name))
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(output, level, useColor)))
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
