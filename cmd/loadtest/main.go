package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/formaly/tiergate/internal/loadtest"
)

// Default configuration constants.
const (
	defaultSubmissions = 10000
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		submissions = flag.Int("submissions", defaultSubmissions, "Number of assessment submissions to send")
		strategy    = flag.String("strategy", "weighted", "Calculation strategy: weighted, probability or scoring")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile  = flag.String("output", "", "Output file for generated submissions (default: generated_submissions_TIMESTAMP.json)")
		logFile     = flag.String("log", "", "Log file for test output (default: loadtest_TIMESTAMP.log)")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadtest.ShowHelp()
		return
	}

	if err := loadtest.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &loadtest.Config{
		BaseURL:        *baseURL,
		NumSubmissions: *submissions,
		Workers:        *workers,
		Timeout:        *timeout,
		Strategy:       *strategy,
		OutputFile:     *outputFile,
		LogFile:        *logFile,
		Verbose:        *verbose,
	}

	if err := loadtest.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Load test failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
