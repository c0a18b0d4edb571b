// Command probe prints the inferred schema of one delimited file without
// creating a state document or touching a database.
//
// It reads a bounded prefix of the input (default 20KB), so it is safe to
// point at large local files or remote URLs:
//
//	probe -url ./data/owners.csv
//	probe -url https://example.com/exports/sales.csv -bytes 100000 -json
//
// Report mode (the default) prints the columns and a uniqueness table to
// stdout. -json prints the same result as JSON instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"csvload/internal/logging"
	"csvload/internal/probe"
	"csvload/internal/tabular"
	_ "csvload/internal/tabular/all"
)

func main() {
	var (
		flagURL        = flag.String("url", "", "path, file:// or http(s):// URL of the file to probe")
		flagBytes      = flag.Int("bytes", probe.DefaultMaxBytes, "number of bytes to sample from the start of the file")
		flagEngine     = flag.String("engine", "csv", "tabular engine: "+strings.Join(tabular.Engines(), "|"))
		flagSampleSize = flag.Int("sample-size", 0, "distinct values sampled for boolean detection (0 = default)")
		flagJSON       = flag.Bool("json", false, "print the result as JSON instead of a report")
		flagInsecure   = flag.Bool("allow-insecure", false, "skip TLS verification for https sources")
		flagTimeout    = flag.Duration("timeout", 60*time.Second, "give up after this long")
		verbose        = flag.Bool("v", false, "enable verbose logs")
	)
	flag.Parse()

	if strings.TrimSpace(*flagURL) == "" {
		fmt.Fprintln(os.Stderr, "missing -url")
		flag.Usage()
		os.Exit(2)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(level, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	opener, err := tabular.NewOpener(*flagEngine)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	res, err := probe.Run(ctx, probe.Options{
		Source:     *flagURL,
		MaxBytes:   *flagBytes,
		Insecure:   *flagInsecure,
		Opener:     opener,
		SampleSize: *flagSampleSize,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("probe failed", zap.String("source", *flagURL), zap.Error(err))
		cancel()
		os.Exit(1)
	}

	if *flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			logger.Error("encode result", zap.Error(err))
			cancel()
			os.Exit(1)
		}
		return
	}
	fmt.Fprintln(os.Stdout, probe.FormatReport(res))
}
