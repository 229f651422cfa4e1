package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/clydemeng/solcov/coverage"
)

var summaryCommand = &cli.Command{
	Name:      "summary",
	Usage:     "Print a per file table of an existing coverage report",
	ArgsUsage: "<report (optional)>",
	Action: func(ctx *cli.Context) error {
		cfg, err := makeConfig(ctx)
		if err != nil {
			return err
		}
		path := cfg.Coverage.ReportPath
		if path == "" {
			path = coverage.DefaultReportPath
		}
		if ctx.NArg() > 0 {
			path = ctx.Args().Get(0)
		}
		report, err := readReport(path)
		if err != nil {
			return err
		}
		printSummary(color.Output, report)
		return nil
	},
}

func readReport(path string) (coverage.Report, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report coverage.Report
	if err := json.Unmarshal(blob, &report); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return report, nil
}

func printSummary(w io.Writer, report coverage.Report) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"File", "Lines", "Functions", "Coverage", "Missed lines"})
	table.SetAutoWrapText(false)
	for _, path := range report.Paths() {
		fc := report[path]
		table.Append([]string{
			path,
			fmt.Sprintf("%d/%d", fc.CoveredLines(), len(fc.Lines)),
			fmt.Sprintf("%d/%d", fc.CoveredFunctions(), len(fc.Functions)),
			colorize(coverage.Report{path: fc}.Summary()),
			lineList(fc.MissedLines()),
		})
	}
	summary := report.Summary()
	table.SetFooter([]string{
		fmt.Sprintf("%d files", summary.Files),
		fmt.Sprintf("%d/%d", summary.CoveredLines, summary.Lines),
		fmt.Sprintf("%d/%d", summary.CoveredFunctions, summary.Functions),
		summary.Percentage(),
		"",
	})
	table.Render()
}

// colorize renders the line coverage of s, red below half and yellow below
// 80%.
func colorize(s coverage.Summary) string {
	switch {
	case s.Lines > 0 && 2*s.CoveredLines < s.Lines:
		return color.RedString(s.Percentage())
	case s.Lines > 0 && 5*s.CoveredLines < 4*s.Lines:
		return color.YellowString(s.Percentage())
	default:
		return color.GreenString(s.Percentage())
	}
}

func lineList(lines []int) string {
	var out []byte
	for i, line := range lines {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendInt(out, int64(line), 10)
	}
	return string(out)
}
