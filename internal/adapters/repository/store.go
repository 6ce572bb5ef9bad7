// Package repository defines the project registry interface and errors.
//
// The registry holds deployed tool definitions so submission handlers can
// reference a project id instead of shipping the full field list on every
// request. The access/calculation core never reads it directly; fields are
// always handed to the core by the caller.
package repository

import (
	"context"

	"github.com/formaly/tiergate/internal/domain/model"
)

// Store provides read/write access to project definitions.
type Store interface {
	// PutProject inserts or replaces a project definition.
	PutProject(ctx context.Context, p model.Project) error

	// Project returns a project by id.
	// Returns ErrNotFound if the project is unknown.
	Project(ctx context.Context, id string) (model.Project, error)

	// Fields returns a project's field list ordered by field_order.
	// Returns ErrNotFound if the project is unknown.
	Fields(ctx context.Context, projectID string) ([]model.Field, error)

	// RemoveProject deletes a project definition.
	RemoveProject(ctx context.Context, id string) error

	// Count returns the number of registered projects.
	Count(ctx context.Context) int
}
