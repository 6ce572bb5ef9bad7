// Package upgrade derives "what you're missing" prompts from the fields a
// subject was denied.
package upgrade

import (
	"fmt"

	"github.com/formaly/tiergate/internal/domain/model"
	"github.com/formaly/tiergate/internal/domain/tier"
)

// Prompt is the upsell surfaced alongside a denial or a filtered
// submission. Features keeps the author-defined field order produced by the
// response filter; a prompt is only ever built from fields that were in
// fact blocked, so it can never advertise something the subject already
// has.
type Prompt struct {
	Headline     string    `json:"headline"`
	RequiredTier tier.Tier `json:"required_tier"`
	Features     []string  `json:"features"`
	Adjacent     bool      `json:"adjacent"`
	Message      string    `json:"message"`
}

// Builder turns blocked-field lists into prompts using the same tier
// ordering the resolver gates with.
type Builder struct {
	tiers *tier.Hierarchy
}

// NewBuilder creates a prompt builder over the given hierarchy.
func NewBuilder(tiers *tier.Hierarchy) *Builder {
	return &Builder{tiers: tiers}
}

// Build returns nil when nothing was blocked. Otherwise the highest-tier
// blocked field becomes the headline unlock target, and the prompt is
// classified as adjacent (the target is one rank above the subject, worth
// a specific upsell) or generic.
func (b *Builder) Build(blocked []model.BlockedField, subjectTier tier.Tier) *Prompt {
	if len(blocked) == 0 {
		return nil
	}

	headline := blocked[0]
	features := make([]string, 0, len(blocked))
	for _, bf := range blocked {
		features = append(features, bf.FieldLabel)
		if b.tiers.Rank(bf.RequiredTier) > b.tiers.Rank(headline.RequiredTier) {
			headline = bf
		}
	}

	p := &Prompt{
		Headline:     headline.FieldLabel,
		RequiredTier: headline.RequiredTier,
		Features:     features,
		Adjacent:     b.tiers.UpgradeAdjacent(subjectTier, headline.RequiredTier),
	}
	if p.Adjacent {
		p.Message = fmt.Sprintf("Upgrade to %s to unlock %s.", p.RequiredTier, p.Headline)
	} else {
		p.Message = fmt.Sprintf("%s is available on the %s plan and above.", p.Headline, p.RequiredTier)
	}
	return p
}
