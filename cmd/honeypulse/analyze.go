package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb"
	"github.com/vbauerster/mpb/decor"

	"github.com/user/honeypulse/internal/analysis"
	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/report"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	analyzeFile    string
	analyzeFormat  string
	analyzeOutput  string
	analyzeSave    bool
	analyzeRefresh bool
	analyzeAll     bool
	analyzeOpen    bool
)

var analyzeCmd = &cobra.Command{
	Use:     "analyze",
	Aliases: []string{"report"},
	Short:   "Analyze an activity log",
	Long: `Analyze a honeypot activity log and print the report.

Without --file the most recent log in the log directory is used.

Examples:
  honeypulse analyze
  honeypulse analyze --file ./honeypot_logs/honeypot_20240322.json
  honeypulse analyze --format markdown -o ./report.md
  honeypulse analyze --save
  honeypulse analyze --format markdown -o ./report.md --open
  honeypulse analyze --all`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFile, "file", "",
		"Activity log to analyze (default: latest in log_dir)")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", report.FormatText,
		"Output format (text, json, markdown)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "",
		"Output file path (default: stdout)")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false,
		"Save the text report to <data_dir>/analysis_reports")
	analyzeCmd.Flags().BoolVar(&analyzeRefresh, "refresh", false,
		"Ignore the cached result and re-analyze")
	analyzeCmd.Flags().BoolVar(&analyzeAll, "all", false,
		"Summarize every activity log in log_dir, one row per day")
	analyzeCmd.Flags().BoolVar(&analyzeOpen, "open", false,
		"Open the written report with the system viewer")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	db := openCache()
	if db != nil {
		defer db.Close()
	}

	gen := report.NewGenerator(db, cfg)
	if analyzeAll {
		return runTrend(gen)
	}

	opts := model.ReportOptions{
		LogFile: analyzeFile,
		Format:  analyzeFormat,
		Output:  analyzeOutput,
	}

	var (
		cached *model.CachedReport
		err    error
	)
	if analyzeRefresh {
		cached, err = gen.Refresh(opts)
	} else {
		cached, err = gen.Generate(opts)
	}
	if errors.Is(err, analysis.ErrNoLogDir) || errors.Is(err, analysis.ErrNoLogFiles) {
		return fmt.Errorf("%w (is the daemon running? logs are written to %s)", err, cfg.LogDir)
	}
	if err != nil {
		return fmt.Errorf("failed to analyze: %w", err)
	}

	switch {
	case opts.Output != "":
		if err := report.WriteFile(opts.Output, cached.Report, opts.Format); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report saved to: %s\n", opts.Output)
	case !analyzeSave:
		if err := report.Render(os.Stdout, cached.Report, opts.Format); err != nil {
			return err
		}
	}

	written := opts.Output
	if analyzeSave {
		path := filepath.Join(cfg.DataDir, "analysis_reports", report.AnalysisFileName(time.Now()))
		if err := report.WriteFile(path, cached.Report, report.FormatText); err != nil {
			return fmt.Errorf("failed to save analysis: %w", err)
		}
		fmt.Printf("Analysis saved to: %s\n", path)
		written = path
	}

	if analyzeOpen && written != "" {
		if err := open.Run(written); err != nil {
			fmt.Printf("Could not open %s: %v\n", written, err)
		}
	}

	return nil
}

// runTrend analyses every log in the log directory and prints a row per day.
func runTrend(gen *report.Generator) error {
	files, err := analysis.ListLogFiles(cfg.LogDir)
	if err != nil {
		return err
	}

	p := mpb.New(mpb.WithWidth(20))
	bar := p.AddBar(int64(len(files)),
		mpb.PrependDecorators(
			decor.Name("[-] Analyzing logs:", decor.WC{W: 20, C: decor.DidentRight}),
			decor.CountersNoUnit(" %d / %d ", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	start := time.Now()
	points := gen.Trend(files, func(string) {
		bar.IncrBy(1, time.Since(start))
		start = time.Now()
	})
	p.Wait()

	if analyzeFormat == report.FormatJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(points)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Day", "Records", "Skipped", "Unique IPs", "Ports", "Top IP", "Top Score"})
	for _, pt := range points {
		table.Append([]string{
			pt.Day,
			fmt.Sprintf("%d", pt.TotalRecords),
			fmt.Sprintf("%d", pt.SkippedLines),
			fmt.Sprintf("%d", pt.UniqueIPs),
			fmt.Sprintf("%d", pt.Ports),
			pt.TopIP,
			fmt.Sprintf("%.2f", pt.TopScore),
		})
	}
	table.Render()

	return nil
}
