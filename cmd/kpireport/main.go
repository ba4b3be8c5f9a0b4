package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"retailpulse/config"
	"retailpulse/kpi"
	"retailpulse/report"
)

func main() {
	defaults, err := config.LoadReportConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	inputFile := flag.String("input", defaults.InputFile, "Sales table to read (.csv, .xls, or .xlsx)")
	outputFile := flag.String("output", defaults.OutputFile, "Report HTML file to write")
	topN := flag.Int("top", defaults.TopN, "Number of products in the top-sellers ranking")
	verbose := flag.Bool("v", defaults.Verbose, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := &config.ReportConfig{
		InputFile:  *inputFile,
		OutputFile: *outputFile,
		TopN:       *topN,
		Verbose:    *verbose,
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("loading sales data", slog.String("input", cfg.InputFile))

	loaded, err := kpi.Load(cfg.InputFile)
	if err != nil {
		slog.Error("loading sales data failed", slog.Any("error", err))
		os.Exit(1)
	}

	if len(loaded.Skipped) > 0 {
		slog.Warn("skipped malformed rows",
			slog.Int("count", len(loaded.Skipped)),
			slog.String("first", loaded.Skipped[0].Reason),
		)
	}
	if loaded.ReconcileDrift > 0 {
		slog.Warn("rows where TotalSales disagrees with QuantitySold*PricePerUnit",
			slog.Int("count", loaded.ReconcileDrift),
		)
	}

	summary := kpi.Calculate(loaded.Table, cfg.TopN)

	writer := report.NewWriter(cfg.OutputFile)
	if err := writer.Write(summary, loaded.Skipped); err != nil {
		slog.Error("writing report failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("report generated",
		slog.String("output", cfg.OutputFile),
		slog.Int("rows", summary.RowCount),
		slog.Int("skipped", len(loaded.Skipped)),
	)

	printSummary(summary)
}

func printSummary(s kpi.Summary) {
	fmt.Println("\nCategory KPI Summary:")
	if s.RowCount == 0 {
		fmt.Println("  (no data)")
		return
	}
	fmt.Printf("  Total revenue:       $%.2f\n", s.TotalRevenue)
	fmt.Printf("  Average order value: $%.2f\n", s.AverageOrderValue)
	for _, category := range s.Categories {
		fmt.Printf("\nCategory: %s\n", category.Category)
		fmt.Printf("  Total Sales: $%.2f\n", category.Revenue)
		fmt.Printf("  Total Quantity Sold: %d\n", category.Quantity)
		fmt.Printf("  Unique Products: %d\n", category.Products)
		fmt.Printf("  Average Price per Unit: $%.2f\n", category.AvgUnitPrice)
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
