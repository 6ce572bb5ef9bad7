package loadtest

import (
	"log"

	"github.com/formaly/tiergate/internal/domain/model"
	"github.com/formaly/tiergate/internal/domain/tier"
)

// expectations predicts, per subject tier, which answered fields the
// service must report as blocked.
type expectations struct {
	tiers  *tier.Hierarchy
	fields map[string]model.Field
}

// newExpectations indexes the fixture project for verification.
func newExpectations(project model.Project) *expectations {
	fields := make(map[string]model.Field, len(project.Fields))
	for _, f := range project.Fields {
		fields[f.ID] = f
	}
	return &expectations{
		tiers:  tier.NewHierarchy(tier.DefaultOrder()...),
		fields: fields,
	}
}

// verify compares one reply against the gating rules. It returns the number
// of gate violations and prompt mismatches found.
func (e *expectations) verify(sub Submission, reply assessReply) (violations, mismatches int) {
	subjectTier := tier.Tier(sub.Subject.Tier)

	// Predict the blocked set: answered fields whose gate outranks the
	// subject.
	predicted := make(map[string]bool)
	for fieldID := range sub.Responses {
		f, ok := e.fields[fieldID]
		if !ok {
			continue
		}
		if f.Gated() && !e.tiers.AtLeast(subjectTier, f.RequiredTier) {
			predicted[fieldID] = true
		}
	}

	reported := make(map[string]bool, len(reply.Blocked))
	for _, b := range reply.Blocked {
		reported[b.FieldID] = true
	}

	// A reported block that should be accessible, or an answered gated
	// field that slipped through, is a gate violation.
	for id := range reported {
		if !predicted[id] {
			violations++
		}
	}
	for id := range predicted {
		if !reported[id] {
			violations++
		}
	}

	// Counts must agree with the blocked list.
	if reply.Counts.Blocked != len(reply.Blocked) {
		violations++
	}

	// Blocked responses demand an upgrade prompt; none without.
	if len(reply.Blocked) > 0 && len(reply.Prompts) == 0 {
		mismatches++
	}
	if len(reply.Blocked) == 0 && len(reply.Prompts) > 0 {
		mismatches++
	}
	return violations, mismatches
}

// displayScoreSummary prints score bounds observed across replies.
func displayScoreSummary(scores []float64, verbose bool) {
	if len(scores) == 0 {
		return
	}
	minScore, maxScore, sum := scores[0], scores[0], 0.0
	for _, s := range scores {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
		sum += s
	}

	log.Printf(`score statistics:
   Average: %.1f
   Maximum: %.1f
   Minimum: %.1f
`, sum/float64(len(scores)), maxScore, minScore)

	if verbose && (minScore < 0 || maxScore > 100) {
		log.Printf("warning: scores left the [0,100] range")
	}
}
