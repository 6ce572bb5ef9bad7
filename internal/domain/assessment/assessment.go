// Package assessment turns an accessible response set plus field weight
// metadata into a deterministic result under a named strategy.
//
// Every function here is pure: no I/O, no clock, no mutation of inputs.
// The same computation runs in a request handler or anywhere else and
// produces bit-identical output for identical input. Field-level anomalies
// (missing choice metadata, malformed numbers) contribute zero and never
// abort a computation; only an unknown strategy name is a hard error.
package assessment

import (
	"context"
	"math"
	"strconv"

	"github.com/formaly/tiergate/internal/domain/model"
)

// Default engine configuration constants.
const (
	defaultBaseScore = 50
	maxScore         = 100
	weightDivisor    = 100
	percentDivisor   = 100
	adjustmentScale  = 10
)

// Input carries everything one calculation needs. Responses must already be
// filtered to the accessible subset; Locked marks the fields the subject's
// tier denies so required-field confidence ignores them.
type Input struct {
	Responses model.ResponseSet
	Fields    []model.Field
	Locked    map[string]bool
}

// Engine computes assessment results. It holds only immutable configuration
// and is safe for concurrent use.
type Engine struct {
	baseScore float64
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithBaseScore overrides the neutral starting score for the weighted and
// probability strategies.
func WithBaseScore(base float64) Option {
	return func(e *Engine) {
		if base >= 0 && base <= maxScore {
			e.baseScore = base
		}
	}
}

// NewEngine creates an engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{baseScore: defaultBaseScore}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calculate dispatches to the named strategy.
func (e *Engine) Calculate(ctx context.Context, strategy Strategy, in Input) (Result, error) {
	switch strategy {
	case StrategyWeighted:
		return e.calculateWeighted(in), nil
	case StrategyProbability:
		return e.calculateProbability(in), nil
	case StrategyScoring:
		return e.calculateScoring(in), nil
	default:
		return nil, NewUnknownStrategy(string(strategy))
	}
}

// calculateWeighted starts from the base score and adds one contribution
// per selected choice (field weight times choice weight over 100) or per
// normalized numeric value. Contributions are classified by sign into the
// increase/decrease factor lists.
func (e *Engine) calculateWeighted(in Input) WeightedResult {
	score := e.baseScore
	factors := Factors{Increase: []Factor{}, Decrease: []Factor{}}

	for _, field := range in.Fields {
		if in.Locked[field.ID] {
			continue
		}
		value, ok := in.Responses[field.ID]
		if !ok {
			continue
		}

		switch {
		case field.Type.IsChoiceBearing():
			for _, selected := range selectedValues(value) {
				choice, found := field.ChoiceByValue(selected)
				if !found {
					// No matching choice metadata: contributes zero.
					continue
				}
				contribution := field.Weight * choice.Weight / weightDivisor
				score += contribution
				classify(&factors, field.Label, contribution)
			}
		case field.Type.IsNumeric():
			normalized := normalize(numericValue(value), field.Min, field.Max)
			contribution := field.Weight * normalized / weightDivisor
			score += contribution
			classify(&factors, field.Label, contribution)
		}
	}

	return WeightedResult{
		Strategy:   StrategyWeighted,
		Score:      round1(clamp(score)),
		Factors:    factors,
		Confidence: e.confidence(in),
	}
}

// calculateProbability applies one multiplicative adjustment per selected
// choice carrying a probability weight. Multiplication is deliberate: it
// lets field weight compound rather than merely offset. Intermediate values
// may leave [0,100]; clamping happens only at the end.
func (e *Engine) calculateProbability(in Input) ProbabilityResult {
	probability := e.baseScore
	applied := []Factor{}

	for _, field := range in.Fields {
		if in.Locked[field.ID] || !field.Type.IsChoiceBearing() {
			continue
		}
		value, ok := in.Responses[field.ID]
		if !ok {
			continue
		}
		for _, selected := range selectedValues(value) {
			choice, found := field.ChoiceByValue(selected)
			if !found || choice.ProbabilityWeight == nil {
				continue
			}
			factor := *choice.ProbabilityWeight / percentDivisor
			adjustment := (factor - 0.5) * field.Weight / adjustmentScale
			probability *= 1 + adjustment
			applied = append(applied, Factor{
				Label:  field.Label,
				Impact: round1(adjustment * percentDivisor),
			})
		}
	}

	return ProbabilityResult{
		Strategy:    StrategyProbability,
		Probability: round1(clamp(probability)),
		Factors:     applied,
		Confidence:  e.confidence(in),
	}
}

// calculateScoring grades exact-match answers over the fields that carry a
// correct-answer rule. Locked fields are left out entirely so a subject is
// never marked wrong on content their tier hides.
func (e *Engine) calculateScoring(in Input) ScoringResult {
	var correct, total int
	details := []Detail{}

	for _, field := range in.Fields {
		if field.CorrectAnswer == nil || in.Locked[field.ID] {
			continue
		}
		total++

		value, answered := in.Responses[field.ID]
		isCorrect := answered && answerString(value) == *field.CorrectAnswer
		if isCorrect {
			correct++
		}
		details = append(details, Detail{
			FieldID:    field.ID,
			FieldLabel: field.Label,
			Answered:   answered,
			Correct:    isCorrect,
		})
	}

	score := 0.0
	if total > 0 {
		score = round1(float64(correct) / float64(total) * maxScore)
	}

	return ScoringResult{
		Strategy:       StrategyScoring,
		Score:          score,
		CorrectAnswers: correct,
		TotalQuestions: total,
		Details:        details,
		Grade:          gradeFor(score),
		Confidence:     e.confidence(in),
	}
}

// confidence is the completion ratio over fields that are both required and
// accessible, rounded to the nearest integer. With no qualifying fields the
// submission is trivially complete.
func (e *Engine) confidence(in Input) int {
	var total, answered int
	for _, field := range in.Fields {
		if !field.Required || in.Locked[field.ID] {
			continue
		}
		total++
		if _, ok := in.Responses[field.ID]; ok {
			answered++
		}
	}
	if total == 0 {
		return maxScore
	}
	return int(math.Round(float64(answered) / float64(total) * maxScore))
}

// classify buckets a contribution by sign. Zero contributions are recorded
// in neither list.
func classify(f *Factors, label string, contribution float64) {
	switch {
	case contribution > 0:
		f.Increase = append(f.Increase, Factor{Label: label, Impact: round1(contribution)})
	case contribution < 0:
		f.Decrease = append(f.Decrease, Factor{Label: label, Impact: round1(contribution)})
	}
}

// normalize maps a raw numeric value into [0,100] relative to the field's
// configured range. A degenerate range resolves to the midpoint to avoid
// dividing by zero.
func normalize(value, min, max float64) float64 {
	if max == min {
		return defaultBaseScore
	}
	return (value - min) / (max - min) * maxScore
}

// clamp bounds a score into [0,100] regardless of intermediate arithmetic.
func clamp(v float64) float64 {
	return math.Max(0, math.Min(maxScore, v))
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// selectedValues coerces a raw response value into the list of selected
// choice values. Multi-value fields arrive as JSON arrays; single selects
// as strings; anything numeric is formatted for choice matching.
func selectedValues(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, answerString(item))
		}
		return out
	default:
		if s := answerString(v); s != "" {
			return []string{s}
		}
		return nil
	}
}

// numericValue parses a raw response as a number. Malformed input is
// treated as zero rather than raising.
func numericValue(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// answerString renders a single response value for exact-match comparison.
func answerString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case []string:
		if len(val) > 0 {
			return val[0]
		}
		return ""
	case []any:
		if len(val) > 0 {
			return answerString(val[0])
		}
		return ""
	default:
		return ""
	}
}
