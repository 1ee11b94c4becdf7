package feedback_test

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/talentloop/internal/domain/feedback"
)

func TestComputeDelta(t *testing.T) {
	Convey("Given every valid star rating", t, func() {
		for _, ai := range []int{0, 37, 85, 100} {
			for stars := 1; stars <= 5; stars++ {
				rs, delta, err := feedback.ComputeDelta(ai, stars)
				So(err, ShouldBeNil)
				So(rs, ShouldEqual, (stars-1)*25)
				So(delta, ShouldEqual, rs-ai)
			}
		}
	})

	Convey("Given known ratings", t, func() {
		Convey("85 with 3 stars overrates by 35", func() {
			rs, delta, err := feedback.ComputeDelta(85, 3)
			So(err, ShouldBeNil)
			So(rs, ShouldEqual, 50)
			So(delta, ShouldEqual, -35)
		})

		Convey("30 with 4 stars underrates by 45", func() {
			_, delta, err := feedback.ComputeDelta(30, 4)
			So(err, ShouldBeNil)
			So(delta, ShouldEqual, 45)
		})

		Convey("75 with 4 stars is calibrated", func() {
			_, delta, err := feedback.ComputeDelta(75, 4)
			So(err, ShouldBeNil)
			So(delta, ShouldEqual, 0)
		})
	})

	Convey("Given out of range stars", t, func() {
		for _, stars := range []int{0, 6, -1} {
			_, _, err := feedback.ComputeDelta(50, stars)
			So(errors.Is(err, feedback.ErrInvalidInput), ShouldBeTrue)
		}
	})
}
