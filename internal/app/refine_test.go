package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rubric/internal/adapters/repository"
	service "github.com/okian/rubric/internal/app"
	"github.com/okian/rubric/internal/domain/scoring"
)

type refinerFunc func(ctx context.Context, req scoring.RefineRequest) (string, error)

func (f refinerFunc) Refine(ctx context.Context, req scoring.RefineRequest) (string, error) {
	return f(ctx, req)
}

func TestRefinement_Run(t *testing.T) {
	Convey("Given graded records and a refiner that fails on one criterion", t, func() {
		ctx := context.Background()
		vault := repository.NewVault(t.TempDir())
		ids := seed(ctx, vault.Live(), 80, 65)
		var levels []string
		refiner := refinerFunc(func(_ context.Context, req scoring.RefineRequest) (string, error) {
			levels = append(levels, req.Level)
			if req.Component == "Coding Quality" {
				return "", scoring.ErrTransient
			}
			return strings.ToUpper(req.Comment), nil
		})
		r := service.NewRefinement(refiner, vault.Live(), vault.Refined(), service.WithRefineLevel(scoring.LevelUndergraduate))

		Convey("When refining", func() {
			rep, err := r.Run(ctx)
			So(err, ShouldBeNil)

			Convey("Then refined copies are written beside the live records", func() {
				So(rep.Records, ShouldEqual, 2)
				So(rep.Refined, ShouldEqual, 2*(len(rubricCaps)-1))
				So(rep.Kept, ShouldEqual, 2)
				So(rep.Location, ShouldEqual, vault.Refined().Location())
				So(levels[0], ShouldEqual, scoring.LevelUndergraduate)

				refined, err := vault.Refined().Get(ctx, ids[0])
				So(err, ShouldBeNil)
				So(refined.Components[0].Comment, ShouldEqual, "ASSESSED")
				So(refined.Components[1].Comment, ShouldEqual, "assessed")
			})

			Convey("Then scores and live comments are unchanged", func() {
				live, err := vault.Live().Get(ctx, ids[0])
				So(err, ShouldBeNil)
				refined, err := vault.Refined().Get(ctx, ids[0])
				So(err, ShouldBeNil)
				So(refined.TotalScore, ShouldEqual, live.TotalScore)
				So(live.Components[0].Comment, ShouldEqual, "assessed")
			})

			Convey("When refining again", func() {
				again, err := r.Run(ctx)
				So(err, ShouldBeNil)

				Convey("Then records with a refined copy are skipped", func() {
					So(again.Skipped, ShouldEqual, 2)
					So(again.Refined, ShouldEqual, 0)
				})
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := r.Run(cctx)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}
