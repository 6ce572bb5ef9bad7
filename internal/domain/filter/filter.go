// Package filter partitions a submitted response set into the values a
// subject may use and the ones their tier locks away.
package filter

import (
	"context"
	"sort"

	"github.com/formaly/tiergate/internal/domain/access"
	"github.com/formaly/tiergate/internal/domain/model"
)

// FieldResolver is the slice of the access resolver the filter needs.
type FieldResolver interface {
	ResolveFieldAccess(ctx context.Context, subject model.Subject, field model.Field) access.Decision
}

// Counts summarizes a filter pass for auditing.
type Counts struct {
	Fields     int `json:"fields"`
	Responses  int `json:"responses"`
	Accessible int `json:"accessible"`
	Blocked    int `json:"blocked"`
}

// Result is the outcome of one filter pass. Blocked preserves the authors'
// field order so upgrade prompts list features the way the tool presents
// them, not in map-iteration order. Locked covers every denied field,
// answered or not; the calculation engine uses it to keep locked required
// fields out of its confidence denominator.
type Result struct {
	Accessible model.ResponseSet    `json:"accessible"`
	Blocked    []model.BlockedField `json:"blocked"`
	Locked     map[string]bool      `json:"-"`
	Counts     Counts               `json:"counts"`
}

// Filter resolves access per field and splits responses accordingly.
type Filter struct {
	resolver FieldResolver
}

// New creates a response filter backed by the given resolver.
func New(resolver FieldResolver) *Filter {
	return &Filter{resolver: resolver}
}

// Apply walks fields in field_order and copies each accessible response
// into the result. A denied field with a supplied response is recorded as
// blocked and its value dropped from the computable set. Responses for
// fields absent from the project's field list are ignored. Apply never
// mutates its inputs, so calling it twice with identical inputs yields
// identical results.
func (f *Filter) Apply(ctx context.Context, subject model.Subject, fields []model.Field, responses model.ResponseSet) Result {
	ordered := make([]model.Field, len(fields))
	copy(ordered, fields)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FieldOrder < ordered[j].FieldOrder
	})

	res := Result{
		Accessible: make(model.ResponseSet, len(responses)),
		Counts:     Counts{Fields: len(fields), Responses: len(responses)},
	}

	for _, field := range ordered {
		value, answered := responses[field.ID]
		decision := f.resolver.ResolveFieldAccess(ctx, subject, field)
		if decision.Allowed {
			if answered {
				res.Accessible[field.ID] = value
				res.Counts.Accessible++
			}
			continue
		}
		if res.Locked == nil {
			res.Locked = make(map[string]bool)
		}
		res.Locked[field.ID] = true
		if answered {
			res.Blocked = append(res.Blocked, model.BlockedField{
				FieldID:      field.ID,
				FieldLabel:   field.Label,
				RequiredTier: decision.RequiredTier,
			})
			res.Counts.Blocked++
		}
	}

	return res
}
