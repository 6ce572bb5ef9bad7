package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/formaly/tiergate/internal/adapters/repository"
	"github.com/formaly/tiergate/internal/domain/model"
	"github.com/formaly/tiergate/internal/domain/tier"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given an in-memory project registry", t, func() {
		s := repository.NewInMemoryStore()

		project := model.Project{
			ID:      "p1",
			Name:    "Demo",
			OwnerID: "u1",
			Fields: []model.Field{
				{ID: "b", Label: "B", FieldOrder: 2, RequiredTier: tier.Basic},
				{ID: "a", Label: "A", FieldOrder: 1},
				{ID: "c", Label: "C", FieldOrder: 3},
			},
		}

		Convey("When storing and fetching a project", func() {
			So(s.PutProject(ctx, project), ShouldBeNil)

			got, err := s.Project(ctx, "p1")

			Convey("Then the stored definition should come back", func() {
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, "p1")
				So(got.Name, ShouldEqual, "Demo")
				So(got.Fields, ShouldHaveLength, 3)
			})

			Convey("Then the field list should be normalized into field order", func() {
				So(got.Fields[0].ID, ShouldEqual, "a")
				So(got.Fields[1].ID, ShouldEqual, "b")
				So(got.Fields[2].ID, ShouldEqual, "c")
			})

			Convey("Then the caller's field slice should be untouched", func() {
				So(project.Fields[0].ID, ShouldEqual, "b")
			})
		})

		Convey("When fetching an unknown id", func() {
			_, err := s.Project(ctx, "ghost")

			Convey("Then it should report not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then the fields lookup should fail the same way", func() {
				_, err := s.Fields(ctx, "ghost")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When validating bad definitions", func() {
			Convey("Then a missing id should be rejected", func() {
				err := s.PutProject(ctx, model.Project{Name: "anonymous"})
				So(errors.Is(err, repository.ErrMissingID), ShouldBeTrue)
			})

			Convey("Then duplicate field ids should be rejected", func() {
				err := s.PutProject(ctx, model.Project{
					ID: "dup",
					Fields: []model.Field{
						{ID: "x", FieldOrder: 1},
						{ID: "x", FieldOrder: 2},
					},
				})
				So(errors.Is(err, repository.ErrDuplicateField), ShouldBeTrue)
				So(s.Count(ctx), ShouldEqual, 0)
			})
		})

		Convey("When replacing an existing project", func() {
			So(s.PutProject(ctx, project), ShouldBeNil)

			replacement := project
			replacement.Name = "Demo v2"
			replacement.Fields = []model.Field{{ID: "only", Label: "Only", FieldOrder: 1}}
			So(s.PutProject(ctx, replacement), ShouldBeNil)

			got, err := s.Project(ctx, "p1")

			Convey("Then the new definition should win without growing the count", func() {
				So(err, ShouldBeNil)
				So(got.Name, ShouldEqual, "Demo v2")
				So(got.Fields, ShouldHaveLength, 1)
				So(s.Count(ctx), ShouldEqual, 1)
			})
		})

		Convey("When removing projects", func() {
			So(s.PutProject(ctx, project), ShouldBeNil)
			So(s.RemoveProject(ctx, "p1"), ShouldBeNil)

			Convey("Then the project should be gone", func() {
				_, err := s.Project(ctx, "p1")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(s.Count(ctx), ShouldEqual, 0)
			})

			Convey("Then removing an unknown id should be a no-op", func() {
				So(s.RemoveProject(ctx, "ghost"), ShouldBeNil)
			})
		})

		Convey("When reading fields concurrently with writes", func() {
			s := repository.NewInMemoryStore(repository.WithShardCount(4))

			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						id := fmt.Sprintf("p%d", i%10)
						_ = s.PutProject(ctx, model.Project{
							ID:     id,
							Fields: []model.Field{{ID: "f", FieldOrder: 1}},
						})
						_, _ = s.Fields(ctx, id)
						_ = s.Count(ctx)
					}
				}(g)
			}
			wg.Wait()

			Convey("Then the registry should settle at the distinct id count", func() {
				So(s.Count(ctx), ShouldEqual, 10)
			})
		})
	})
}
