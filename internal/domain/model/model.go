// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/formaly/tiergate/internal/domain/tier"
)

// FieldType enumerates the input kinds a tool field can take.
type FieldType string

// Supported field types. Choice-bearing types carry weighted choices;
// numeric types normalize their raw value before weighting.
const (
	FieldText        FieldType = "text"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multiselect"
	FieldNumber      FieldType = "number"
	FieldScale       FieldType = "scale"
)

// IsChoiceBearing reports whether the type carries a choice list.
func (t FieldType) IsChoiceBearing() bool {
	return t == FieldSelect || t == FieldMultiSelect
}

// IsNumeric reports whether the type holds a numeric raw value.
func (t FieldType) IsNumeric() bool {
	return t == FieldNumber || t == FieldScale
}

// Subject is the requesting principal: an authenticated user with a resolved
// tier, or the anonymous visitor. TierErr carries an upstream tier-resolution
// failure; resolvers fail closed when it is set.
type Subject struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	Tier          tier.Tier `json:"tier"`
	TierErr       error     `json:"-"`
}

// Anonymous returns the unauthenticated subject. It is rank-equivalent to
// the lowest tier.
func Anonymous() Subject {
	return Subject{ID: "anonymous", Authenticated: false, Tier: tier.Free}
}

// CacheKey returns the subject component of a decision cache key.
func (s Subject) CacheKey() string {
	if s.ID != "" {
		return s.ID
	}
	return "anonymous"
}

// Choice is one selectable option of a choice-bearing field. Weight is a
// dimensionless multiplier in [0,100]; ProbabilityWeight, when present, feeds
// the probability strategy.
type Choice struct {
	Value             string   `json:"value"`
	Label             string   `json:"label,omitempty"`
	Weight            float64  `json:"weight"`
	ProbabilityWeight *float64 `json:"probability_weight,omitempty"`
}

// Field is a single configurable input of a multi-step tool. RequiredTier of
// "" means universally accessible. Weight is a dimensionless contribution
// magnitude in [0,100].
type Field struct {
	ID            string    `json:"id"`
	Label         string    `json:"label"`
	Type          FieldType `json:"type"`
	Step          int       `json:"step,omitempty"`
	FieldOrder    int       `json:"field_order"`
	Required      bool      `json:"required"`
	RequiredTier  tier.Tier `json:"required_tier,omitempty"`
	Weight        float64   `json:"weight"`
	Min           float64   `json:"min,omitempty"`
	Max           float64   `json:"max,omitempty"`
	Choices       []Choice  `json:"choices,omitempty"`
	CorrectAnswer *string   `json:"correct_answer,omitempty"`
}

// Gated reports whether the field requires a minimum tier.
func (f Field) Gated() bool {
	return f.RequiredTier != ""
}

// ChoiceByValue looks up a choice by its submitted value.
func (f Field) ChoiceByValue(v string) (Choice, bool) {
	for _, c := range f.Choices {
		if c.Value == v {
			return c, true
		}
	}
	return Choice{}, false
}

// Project is a deployed tool definition: an ordered field list plus the
// project-level gating attributes.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	OwnerID      string    `json:"owner_id,omitempty"`
	Public       bool      `json:"public"`
	RequiredTier tier.Tier `json:"required_tier,omitempty"`
	Fields       []Field   `json:"fields,omitempty"`
}

// ResponseSet maps field identifiers to raw submitted values. Values arrive
// as decoded JSON: strings, numbers, or arrays for multi-value fields. It is
// ephemeral, scoped to one assessment submission.
type ResponseSet map[string]any

// Clone returns a shallow copy so filtering never mutates caller input.
func (r ResponseSet) Clone() ResponseSet {
	out := make(ResponseSet, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// BlockedField records a response that was dropped because the subject's
// tier does not unlock the field.
type BlockedField struct {
	FieldID      string    `json:"field_id"`
	FieldLabel   string    `json:"field_label"`
	RequiredTier tier.Tier `json:"required_tier"`
}

// InvalidationEvent is a subscription-change notification that flows through
// the invalidation queue. SubjectID of "" with FieldID of "" clears the whole
// decision cache.
type InvalidationEvent struct {
	EventID   string    `json:"event_id"`
	SubjectID string    `json:"subject_id,omitempty"`
	FieldID   string    `json:"field_id,omitempty"`
	TS        time.Time `json:"ts"`
}
