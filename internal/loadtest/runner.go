package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/formaly/tiergate/internal/domain/model"
	"github.com/formaly/tiergate/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Run executes the complete assessment load test.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting tiergate load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("submissions", config.NumSubmissions),
		logger.Int("workers", config.Workers),
		logger.String("strategy", config.Strategy),
		logger.String("timeout", config.Timeout.String()),
		logger.String("logFile", config.LogFile),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health.
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Register the fixture project.
	project := fixtureProject("loadtest-" + time.Now().Format("20060102-150405"))
	if err := registerProject(ctx, config, project); err != nil {
		return fmt.Errorf("project registration failed: %w", err)
	}

	// Step 3: Generate submissions.
	submissions, err := generateSubmissions(ctx, config, project, stats)
	if err != nil {
		return fmt.Errorf("submission generation failed: %w", err)
	}

	// Step 4: Submit concurrently, verifying each reply as it lands.
	expect := newExpectations(project)
	if err := submitAssessments(ctx, config, submissions, expect, stats); err != nil {
		return fmt.Errorf("assessment submission failed: %w", err)
	}

	// Step 5: Exercise the invalidation pipeline, including duplicates.
	if err := submitInvalidations(ctx, config, submissions, stats); err != nil {
		return fmt.Errorf("invalidation submission failed: %w", err)
	}

	// Step 6: Save submissions to file.
	if err := saveSubmissionsToFile(ctx, config, submissions); err != nil {
		logger.Get().Warn(ctx, "failed to save submissions to file", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	if stats.GateViolations > 0 || stats.PromptMismatches > 0 {
		return fmt.Errorf("verification failed: %d gate violations, %d prompt mismatches",
			stats.GateViolations, stats.PromptMismatches)
	}

	logger.Get().Info(ctx, "load test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/healthz"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	// Any 200 counts as healthy; the endpoint serves Prometheus metrics.
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// registerProject uploads the fixture project definition.
func registerProject(ctx context.Context, config *Config, project model.Project) error {
	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/projects"

	resp, err := client.Put(ctx, url, map[string]any{"project": project})
	if err != nil {
		return fmt.Errorf("failed to register project: %w", err)
	}
	if _, err := readResponseBody(resp); err != nil {
		return fmt.Errorf("failed to read registration response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("project registration failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "fixture project registered", logger.String("projectID", project.ID))
	return nil
}

// submitInvalidations posts one invalidation per distinct subject, then
// replays a handful to confirm the dedupe path answers with duplicate acks.
func submitInvalidations(ctx context.Context, config *Config, submissions []Submission, stats *Stats) error {
	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/invalidations"

	replay := make([]map[string]any, 0, 10)
	for i, sub := range submissions {
		event := map[string]any{
			"event_id":   "loadtest-inv-" + sub.Subject.ID,
			"subject_id": sub.Subject.ID,
		}
		resp, err := client.Post(ctx, url, event)
		if err != nil {
			return fmt.Errorf("failed to submit invalidation: %w", err)
		}
		body, err := readResponseBody(resp)
		if err != nil {
			return fmt.Errorf("failed to read invalidation response: %w", err)
		}
		if resp.StatusCode != StatusAccepted && resp.StatusCode != StatusOK {
			return fmt.Errorf("invalidation rejected with status: %d", resp.StatusCode)
		}
		stats.InvalidationsSent++

		var ack AckResponse
		if err := json.Unmarshal(body, &ack); err == nil && ack.Duplicate {
			stats.InvalidationsDupes++
		}

		if i < cap(replay) {
			replay = append(replay, event)
		}
	}

	// Replays must all come back as duplicates.
	for _, event := range replay {
		resp, err := client.Post(ctx, url, event)
		if err != nil {
			return fmt.Errorf("failed to replay invalidation: %w", err)
		}
		body, err := readResponseBody(resp)
		if err != nil {
			return fmt.Errorf("failed to read replay response: %w", err)
		}
		var ack AckResponse
		if err := json.Unmarshal(body, &ack); err == nil && ack.Duplicate {
			stats.InvalidationsDupes++
		}
		stats.InvalidationsSent++
	}

	logger.Get().Info(ctx, "invalidation pipeline exercised",
		logger.Int("sent", stats.InvalidationsSent),
		logger.Int("duplicates", stats.InvalidationsDupes))
	return nil
}

// saveSubmissionsToFile saves the generated submissions to a JSON file.
func saveSubmissionsToFile(ctx context.Context, config *Config, submissions []Submission) error {
	if len(submissions) == 0 {
		return fmt.Errorf("no submissions to save")
	}

	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "generated_submissions_" + timestamp + ".json"
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(submissions); err != nil {
		return fmt.Errorf("failed to encode submissions: %w", err)
	}

	logger.Get().Info(ctx, "submissions saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var successRate, submissionsPerSecond float64

	if stats.SubmissionsSent > 0 {
		successRate = float64(stats.SubmissionsSuccessful) / float64(stats.SubmissionsSent) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		submissionsPerSecond = float64(stats.SubmissionsSent) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("submissionsGenerated", stats.SubmissionsGenerated),
		logger.Int("submissionsSent", stats.SubmissionsSent),
		logger.Int("submissionsSuccessful", stats.SubmissionsSuccessful),
		logger.Int("submissionsFailed", stats.SubmissionsFailed),
		logger.Int("gateViolations", stats.GateViolations),
		logger.Int("promptMismatches", stats.PromptMismatches),
		logger.Int("invalidationsSent", stats.InvalidationsSent),
		logger.Int("invalidationsDupes", stats.InvalidationsDupes),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("submissionsPerSecond", submissionsPerSecond))
}
