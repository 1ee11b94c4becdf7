package types_test

import (
	"testing"

	types "github.com/okian/talentloop/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTrustLevelFor(t *testing.T) {
	Convey("Given policy weights", t, func() {
		Convey("Weights at or above 0.8 are high", func() {
			So(types.TrustLevelFor(1.0), ShouldEqual, types.TrustHigh)
			So(types.TrustLevelFor(0.8), ShouldEqual, types.TrustHigh)
		})

		Convey("Weights in [0.6, 0.8) are medium", func() {
			So(types.TrustLevelFor(0.79), ShouldEqual, types.TrustMedium)
			So(types.TrustLevelFor(0.6), ShouldEqual, types.TrustMedium)
		})

		Convey("Anything lower is low", func() {
			So(types.TrustLevelFor(0.59), ShouldEqual, types.TrustLow)
			So(types.TrustLevelFor(0.05), ShouldEqual, types.TrustLow)
		})
	})
}
