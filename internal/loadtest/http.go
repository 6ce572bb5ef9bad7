package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// do performs a request with a JSON body.
func (c *HTTPClient) do(ctx context.Context, method, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// Post performs a POST request with JSON body.
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, url, body)
}

// Put performs a PUT request with JSON body.
func (c *HTTPClient) Put(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	return c.do(ctx, http.MethodPut, url, body)
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// submitAssessments sends submissions concurrently and verifies each reply
// against the gating expectations for its subject's tier.
func submitAssessments(ctx context.Context, config *Config, submissions []Submission, expect *expectations, stats *Stats) error {
	log.Printf("submitting %d assessments with %d workers...", len(submissions), config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/assess"

	var (
		successful int64
		failed     int64
		violations int64
		mismatches int64
		sent       int64
	)

	var lastReport time.Time
	reportInterval := 1 * time.Second

	var scoresMu sync.Mutex
	scores := make([]float64, 0, len(submissions))

	subChan := make(chan Submission, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for sub := range subChan {
				select {
				case <-ctx.Done():
					return
				default:
					report := submitSingleAssessment(ctx, client, url, sub, expect)

					atomic.AddInt64(&sent, 1)
					if report.ok {
						atomic.AddInt64(&successful, 1)
						if report.score != nil {
							scoresMu.Lock()
							scores = append(scores, *report.score)
							scoresMu.Unlock()
						}
					} else {
						atomic.AddInt64(&failed, 1)
					}
					atomic.AddInt64(&violations, int64(report.gateViolations))
					atomic.AddInt64(&mismatches, int64(report.promptMismatches))

					if time.Since(lastReport) >= reportInterval {
						lastReport = time.Now()
						total := atomic.LoadInt64(&sent)
						succ := atomic.LoadInt64(&successful)
						fail := atomic.LoadInt64(&failed)

						if config.Verbose {
							log.Printf("progress: %d/%d sent (success: %d, failed: %d)",
								total, len(submissions), succ, fail)
						} else {
							fmt.Printf("\rsent: %d/%d (success: %d, failed: %d)",
								total, len(submissions), succ, fail)
						}
					}
				}
			}
		}()
	}

	go func() {
		defer close(subChan)
		for _, sub := range submissions {
			select {
			case <-ctx.Done():
				return
			case subChan <- sub:
			}
		}
	}()

	wg.Wait()

	if !config.Verbose {
		fmt.Println()
	}

	stats.SubmissionsSent = int(atomic.LoadInt64(&sent))
	stats.SubmissionsSuccessful = int(atomic.LoadInt64(&successful))
	stats.SubmissionsFailed = int(atomic.LoadInt64(&failed))
	stats.GateViolations = int(atomic.LoadInt64(&violations))
	stats.PromptMismatches = int(atomic.LoadInt64(&mismatches))

	displayScoreSummary(scores, config.Verbose)

	log.Printf(`assessment submission completed:
   Successful: %d
   Failed: %d
   Gate violations: %d
   Prompt mismatches: %d
`, stats.SubmissionsSuccessful, stats.SubmissionsFailed, stats.GateViolations, stats.PromptMismatches)

	return nil
}

// submissionReport carries the per-reply verification outcome.
type submissionReport struct {
	ok               bool
	score            *float64
	gateViolations   int
	promptMismatches int
}

// submitSingleAssessment posts one submission and checks the reply.
func submitSingleAssessment(ctx context.Context, client *HTTPClient, url string, sub Submission, expect *expectations) submissionReport {
	resp, err := client.Post(ctx, url, sub)
	if err != nil {
		return submissionReport{}
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return submissionReport{}
	}

	if resp.StatusCode != StatusOK {
		return submissionReport{}
	}

	var reply assessReply
	if err := json.Unmarshal(body, &reply); err != nil || !reply.Success {
		return submissionReport{}
	}

	violations, mismatches := expect.verify(sub, reply)
	report := submissionReport{ok: true, gateViolations: violations, promptMismatches: mismatches}
	if raw, ok := reply.Result["score"].(float64); ok {
		report.score = &raw
	}
	return report
}
