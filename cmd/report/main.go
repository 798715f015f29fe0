package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/goquant/tradesim/internal/journal"
	"github.com/goquant/tradesim/internal/perf"
)

func main() {
	var (
		dbPath = flag.String("db", "./data/journal.db", "Path to the journal database")
	)
	flag.Parse()

	store, err := journal.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	fills, err := store.FillCount(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count fills: %v\n", err)
		os.Exit(1)
	}
	rejections, err := store.RejectionCount(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count rejections: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Simulation Report ===")
	fmt.Printf("Journal: %s\n", *dbPath)
	fmt.Printf("Fills: %d\n", fills)
	fmt.Printf("Rejections: %d\n", rejections)

	equity, ok, err := store.LastEquity(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read equity: %v\n", err)
		os.Exit(1)
	}
	if ok {
		fmt.Println("\n--- Portfolio ---")
		fmt.Printf("Equity:         %.2f\n", equity.Equity)
		fmt.Printf("Cash:           %.2f\n", equity.Cash)
		fmt.Printf("Realized PnL:   %.2f\n", equity.RealizedPnL)
		fmt.Printf("Unrealized PnL: %.2f\n", equity.UnrealizedPnL)
	} else {
		fmt.Println("\nNo equity points recorded.")
	}

	fmt.Println("\n--- Latency (ms) ---")
	fmt.Printf("%-14s %8s %10s %10s %10s %10s %10s %10s\n",
		"stage", "count", "mean", "median", "p95", "p99", "min", "max")
	for _, stage := range perf.Stages {
		samples, err := store.LatencySamples(ctx, string(stage))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read latency samples for %s: %v\n", stage, err)
			os.Exit(1)
		}
		if len(samples) == 0 {
			continue
		}
		s := perf.Summarize(samples)
		fmt.Printf("%-14s %8d %10.4f %10.4f %10.4f %10.4f %10.4f %10.4f\n",
			string(stage), s.Count, s.Mean, s.Median, s.P95, s.P99, s.Min, s.Max)
	}
}
