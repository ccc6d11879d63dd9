package telemetry

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDecodePage(t *testing.T) {
	Convey("Given trace payloads from different API versions", t, func() {
		Convey("When cost and tokens use alternate spellings", func() {
			p, err := decodePage([]byte(`{"data":[
				{"id":"a","timestamp":"2025-05-01T09:00:00+02:00","calculatedTotalCost":"0.5","usage":{"total":42}},
				{"id":"b","timestamp":"2025-05-01T09:00:00Z","totalCost":null,"totalTokens":7},
				{"id":"c","timestamp":"2025-05-01T09:00:00Z","totalCost":-1,"metadata":"free text"}
			],"meta":{"totalPages":3}}`))

			Convey("Then every spelling is understood", func() {
				So(err, ShouldBeNil)
				So(p.totalPages, ShouldEqual, 3)
				So(len(p.events), ShouldEqual, 3)

				a := p.events[0]
				So(a.Cost.String(), ShouldEqual, "0.5")
				So(a.TokenCount, ShouldEqual, 42)
				So(a.Timestamp.Hour(), ShouldEqual, 7)

				b := p.events[1]
				So(b.Cost.IsZero(), ShouldBeTrue)
				So(b.TokenCount, ShouldEqual, 7)
				So(b.TokensReported, ShouldBeTrue)

				c := p.events[2]
				So(c.Cost.IsZero(), ShouldBeTrue)
				So(c.TokensReported, ShouldBeFalse)
				So(c.Metadata, ShouldBeNil)
			})
		})

		Convey("When the body is empty", func() {
			_, err := decodePage([]byte("  "))
			So(err, ShouldNotBeNil)
		})

		Convey("When the body is malformed", func() {
			_, err := decodePage([]byte(`[{"id":`))
			So(err, ShouldNotBeNil)
		})
	})
}
