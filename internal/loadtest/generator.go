package loadtest

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/formaly/tiergate/internal/domain/model"
	"github.com/formaly/tiergate/internal/domain/tier"
	"github.com/formaly/tiergate/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	answerProbability  = 0.8
)

// tierPool is the tier distribution for generated subjects. Free and
// registered dominate so the gate fires often.
var tierPool = []tier.Tier{
	tier.Free, tier.Free, tier.Free,
	tier.Registered, tier.Registered,
	tier.Basic, tier.Basic,
	tier.Premium,
	tier.Enterprise,
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// getRandomInt returns a random int in [0, max).
func getRandomInt(max int) int {
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(max)))
	return int(n.Int64())
}

// fixtureProject builds the tiered project every submission scores against.
// Field gates span the whole hierarchy so each subject tier exercises a
// different blocked set.
func fixtureProject(projectID string) model.Project {
	pw := func(v float64) *float64 { return &v }
	return model.Project{
		ID:     projectID,
		Name:   "loadtest assessment",
		Public: true,
		Fields: []model.Field{
			{
				ID: "experience", Label: "Years of experience", Type: model.FieldScale,
				FieldOrder: 1, Required: true, Weight: 60, Min: 0, Max: 30,
			},
			{
				ID: "team_size", Label: "Team size", Type: model.FieldNumber,
				FieldOrder: 2, Weight: 30, Min: 1, Max: 500,
			},
			{
				ID: "industry", Label: "Industry", Type: model.FieldSelect,
				FieldOrder: 3, Required: true, Weight: 50,
				Choices: []model.Choice{
					{Value: "tech", Weight: 80, ProbabilityWeight: pw(70)},
					{Value: "finance", Weight: 60, ProbabilityWeight: pw(55)},
					{Value: "retail", Weight: 30, ProbabilityWeight: pw(40)},
				},
			},
			{
				ID: "growth_stage", Label: "Growth stage", Type: model.FieldSelect,
				FieldOrder: 4, RequiredTier: tier.Registered, Weight: 40,
				Choices: []model.Choice{
					{Value: "seed", Weight: 20},
					{Value: "series_a", Weight: 50},
					{Value: "public", Weight: 90},
				},
			},
			{
				ID: "channels", Label: "Marketing channels", Type: model.FieldMultiSelect,
				FieldOrder: 5, RequiredTier: tier.Basic, Weight: 70,
				Choices: []model.Choice{
					{Value: "organic", Weight: 60, ProbabilityWeight: pw(65)},
					{Value: "paid", Weight: 40, ProbabilityWeight: pw(45)},
					{Value: "partnerships", Weight: 80, ProbabilityWeight: pw(75)},
				},
			},
			{
				ID: "revenue", Label: "Annual revenue", Type: model.FieldNumber,
				FieldOrder: 6, Required: true, RequiredTier: tier.Premium,
				Weight: 90, Min: 0, Max: 10_000_000,
			},
			{
				ID: "forecast", Label: "Five-year forecast", Type: model.FieldText,
				FieldOrder: 7, RequiredTier: tier.Enterprise, Weight: 100,
			},
		},
	}
}

// generateSubmissions creates the requested number of assessment submissions
// against the fixture project, spread across tiers and worker goroutines.
func generateSubmissions(ctx context.Context, config *Config, project model.Project, stats *Stats) ([]Submission, error) {
	logger.Get().Info(ctx, "generating submissions", logger.Int("numSubmissions", config.NumSubmissions))

	submissions := make([]Submission, config.NumSubmissions)

	type genResult struct {
		index int
		sub   Submission
		err   error
	}
	resultChan := make(chan genResult, config.NumSubmissions)

	workerCount := minInt(config.Workers, config.NumSubmissions)
	perWorker := config.NumSubmissions / workerCount

	for worker := 0; worker < workerCount; worker++ {
		start := worker * perWorker
		end := start + perWorker
		if worker == workerCount-1 {
			end = config.NumSubmissions
		}

		go func(start, end int) {
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					resultChan <- genResult{index: i, err: ctx.Err()}
					return
				default:
					resultChan <- genResult{index: i, sub: generateSingleSubmission(config, project)}
				}
			}
		}(start, end)
	}

	for i := 0; i < config.NumSubmissions; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during submission generation: %w", ctx.Err())
		case result := <-resultChan:
			if result.err != nil {
				return nil, fmt.Errorf("failed to generate submission %d: %w", result.index, result.err)
			}
			submissions[result.index] = result.sub
		}
	}

	stats.SubmissionsGenerated = len(submissions)
	logger.Get().Info(ctx, "generated submissions successfully", logger.Int("count", len(submissions)))

	return submissions, nil
}

// generateSingleSubmission picks a tier and answers most fields, gated ones
// included: the service must drop those, the sender never self-censors.
func generateSingleSubmission(config *Config, project model.Project) Submission {
	t := tierPool[getRandomInt(len(tierPool))]

	sub := Submission{
		Subject: subjectDoc{
			ID:            uuid.New().String(),
			Authenticated: t != tier.Free,
			Tier:          string(t),
		},
		Strategy:  config.Strategy,
		ProjectID: project.ID,
		Responses: make(map[string]any, len(project.Fields)),
	}

	for _, f := range project.Fields {
		if getRandomFloat() > answerProbability {
			continue
		}
		sub.Responses[f.ID] = generateAnswer(f)
	}
	return sub
}

// generateAnswer produces a plausible raw value for the field type.
func generateAnswer(f model.Field) any {
	switch f.Type {
	case model.FieldSelect:
		return f.Choices[getRandomInt(len(f.Choices))].Value
	case model.FieldMultiSelect:
		picked := make([]any, 0, len(f.Choices))
		for _, c := range f.Choices {
			if getRandomFloat() < 0.5 {
				picked = append(picked, c.Value)
			}
		}
		if len(picked) == 0 {
			picked = append(picked, f.Choices[0].Value)
		}
		return picked
	case model.FieldNumber, model.FieldScale:
		return f.Min + getRandomFloat()*(f.Max-f.Min)
	default:
		return "generated answer " + uuid.New().String()[:8]
	}
}

// minInt returns the minimum of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
