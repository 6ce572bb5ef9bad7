package loadtest

import "time"

// Config holds configuration for an assessment load test.
type Config struct {
	BaseURL        string        // Base URL of the service
	NumSubmissions int           // Number of assessment submissions to generate
	Workers        int           // Number of concurrent workers
	Timeout        time.Duration // HTTP request timeout
	Strategy       string        // Calculation strategy to exercise
	OutputFile     string        // Output file for generated submissions
	LogFile        string        // Log file for test output
	Verbose        bool          // Enable verbose logging
}

// Submission is one generated assessment request, paired with the subject
// tier so verification can predict which fields must come back blocked.
type Submission struct {
	Subject   subjectDoc     `json:"subject"`
	Strategy  string         `json:"strategy"`
	ProjectID string         `json:"project_id"`
	Responses map[string]any `json:"responses"`
}

type subjectDoc struct {
	ID            string `json:"id"`
	Authenticated bool   `json:"authenticated"`
	Tier          string `json:"tier"`
}

// assessReply mirrors the /assess response envelope.
type assessReply struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result"`
	Blocked []blockedDoc   `json:"blocked"`
	Counts  countsDoc      `json:"counts"`
	Prompts []promptDoc    `json:"upgradePrompts"`
}

type blockedDoc struct {
	FieldID      string `json:"field_id"`
	FieldLabel   string `json:"field_label"`
	RequiredTier string `json:"required_tier"`
}

type countsDoc struct {
	Fields     int `json:"fields"`
	Responses  int `json:"responses"`
	Accessible int `json:"accessible"`
	Blocked    int `json:"blocked"`
}

type promptDoc struct {
	Headline     string   `json:"headline"`
	RequiredTier string   `json:"required_tier"`
	Features     []string `json:"features"`
	Adjacent     bool     `json:"adjacent"`
	Message      string   `json:"message"`
}

// AckResponse mirrors the /invalidations acknowledgement.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds test statistics.
type Stats struct {
	SubmissionsGenerated  int
	SubmissionsSent       int
	SubmissionsSuccessful int
	SubmissionsFailed     int
	GateViolations        int
	PromptMismatches      int
	InvalidationsSent     int
	InvalidationsDupes    int
	StartTime             time.Time
	EndTime               time.Time
	Duration              time.Duration
}
