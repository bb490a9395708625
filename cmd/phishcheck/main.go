// Command phishcheck analyzes a single URL from the terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/aliasimcoskun/phishguard"
	"github.com/aliasimcoskun/phishguard/models"
	"github.com/aliasimcoskun/phishguard/scorer"
)

type options struct {
	url         string
	scorerURL   string
	scorerModel string
	maxHops     int
	hopTimeout  time.Duration
	noTitle     bool
	jsonOut     bool
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "[-] Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.url, "u", "", "URL to analyze")
	flag.StringVar(&opts.scorerURL, "scorer-url", scorer.DefaultBaseURL, "Model inference server base URL")
	flag.StringVar(&opts.scorerModel, "scorer-model", scorer.DefaultModel, "Served model name")
	flag.IntVar(&opts.maxHops, "max-hops", phishguard.DefaultMaxHops, "Max redirect hops to follow")
	flag.DurationVar(&opts.hopTimeout, "hop-timeout", phishguard.DefaultHopTimeout, "Timeout per redirect hop")
	flag.BoolVar(&opts.noTitle, "no-title", false, "Skip fetching the landing page title")
	flag.BoolVar(&opts.jsonOut, "json", false, "Print the raw result as JSON")
	flag.Parse()
	return opts
}

func run(opts options) error {
	if opts.url == "" {
		return errors.New("-u (URL) is required")
	}
	if opts.maxHops < 0 {
		return fmt.Errorf("-max-hops must be >= 0 (got %d)", opts.maxHops)
	}
	if opts.hopTimeout <= 0 {
		return fmt.Errorf("-hop-timeout must be > 0 (got %s)", opts.hopTimeout)
	}

	config := phishguard.DefaultConfig()
	config.MaxRedirectHops = opts.maxHops
	config.HopTimeout = opts.hopTimeout
	config.ScorerBaseURL = opts.scorerURL
	config.ScorerModel = opts.scorerModel
	config.FetchPageTitle = !opts.noTitle

	analyzer := phishguard.New(config, nil)

	result, err := analyzer.Analyze(context.Background(), opts.url)
	if err != nil {
		return err
	}

	if opts.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printResult(result)
	return nil
}

func printResult(result *models.AnalysisResult) {
	fmt.Printf("URL:       %s\n", result.URL)
	if result.FinalURL != result.URL {
		fmt.Printf("Expanded:  %s\n", result.FinalURL)
	}
	if result.PageTitle != "" {
		fmt.Printf("Title:     %s\n", result.PageTitle)
	}

	switch result.Verdict {
	case models.VerdictPhishing:
		color.New(color.FgRed, color.Bold).Printf("Verdict:   PHISHING (%.1f%%)\n", result.Score*100)
	case models.VerdictSafe:
		color.New(color.FgGreen, color.Bold).Printf("Verdict:   safe (%.1f%% phishing probability)\n", result.Score*100)
	default:
		color.New(color.FgYellow).Println("Verdict:   analysis unavailable (model did not produce a score)")
	}

	for _, w := range result.Warnings {
		color.New(color.FgYellow).Printf("[!] %s\n", w)
	}
}
