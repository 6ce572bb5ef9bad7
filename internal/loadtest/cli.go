// Package loadtest drives concurrent assessment traffic against a running
// service and verifies the tier gate held under load.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/formaly/tiergate/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "loadtest_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the load test tool.
func ShowHelp() {
	os.Stdout.WriteString(`tiergate Load Test Tool
=======================

A concurrent tool for exercising the access gate and assessment engine.

Usage:
  go run cmd/loadtest/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -submissions int
        Number of assessment submissions to send (default 10000)
  -strategy string
        Calculation strategy: weighted, probability or scoring (default "weighted")
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Output file for generated submissions (default: generated_submissions_TIMESTAMP.json)
  -log string
        Log file for test output (default: loadtest_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Test with default settings
  go run cmd/loadtest/main.go

  # Heavier run against a remote host
  go run cmd/loadtest/main.go -submissions 50000 -workers 16 -url http://localhost:8080

  # Exercise the probability strategy
  go run cmd/loadtest/main.go -strategy probability -verbose
`)
}
