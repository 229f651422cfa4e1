package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"

	"github.com/clydemeng/solcov/coverage"
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

type nodeConfig struct {
	RPC string
}

type solcovConfig struct {
	Coverage        coverage.Config
	Node            nodeConfig
	Instrumentation string
}

func defaultConfig() solcovConfig {
	return solcovConfig{
		Coverage:        coverage.DefaultConfig,
		Node:            nodeConfig{RPC: "http://localhost:8545"},
		Instrumentation: "./coverage/instrumentation",
	}
}

func loadConfig(file string, cfg *solcovConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig loads the configuration file, if any, and applies command line
// flags on top of it.
func makeConfig(ctx *cli.Context) (solcovConfig, error) {
	cfg := defaultConfig()
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	if ctx.IsSet(artifactsFlag.Name) {
		cfg.Coverage.ArtifactsPath = ctx.String(artifactsFlag.Name)
	}
	if ctx.IsSet(sourcesFlag.Name) {
		cfg.Coverage.SourcesPath = ctx.String(sourcesFlag.Name)
	}
	if ctx.IsSet(networkIDFlag.Name) {
		cfg.Coverage.NetworkID = ctx.Uint64(networkIDFlag.Name)
	}
	if ctx.IsSet(outputFlag.Name) {
		cfg.Coverage.ReportPath = ctx.String(outputFlag.Name)
	}
	if ctx.IsSet(lcovFlag.Name) {
		cfg.Coverage.LCOVPath = ctx.String(lcovFlag.Name)
	}
	if ctx.IsSet(concurrencyFlag.Name) {
		cfg.Coverage.FetchConcurrency = ctx.Int(concurrencyFlag.Name)
	}
	if ctx.IsSet(rpcFlag.Name) {
		cfg.Node.RPC = ctx.String(rpcFlag.Name)
	}
	if ctx.IsSet(instrumentationFlag.Name) {
		cfg.Instrumentation = ctx.String(instrumentationFlag.Name)
	}
	return cfg, nil
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	dump.WriteString("# Note: this config doesn't contain the program registry, it is loaded from the artifacts at startup.\n\n")
	dump.Write(out)
	return nil
}
