package laptime_test

import (
	"encoding/json"
	"testing"

	"github.com/fpvleague/lapboard/internal/domain/laptime"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParse(t *testing.T) {
	Convey("Given lap time strings in the supported shapes", t, func() {
		Convey("When parsing H:MM:SS.fff", func() {
			So(laptime.Parse("1:02:03.456"), ShouldResemble, laptime.Of(3723456))
		})

		Convey("When parsing MM:SS.fff", func() {
			So(laptime.Parse("2:03.456"), ShouldResemble, laptime.Of(123456))
			So(laptime.Parse("0:59.000"), ShouldResemble, laptime.Of(59000))
		})

		Convey("When parsing SS.fff", func() {
			So(laptime.Parse("03.456"), ShouldResemble, laptime.Of(3456))
		})

		Convey("When the fraction is missing", func() {
			So(laptime.Parse("1:10"), ShouldResemble, laptime.Of(70000))
			So(laptime.Parse("42."), ShouldResemble, laptime.Of(42000))
		})

		Convey("When surrounding whitespace is present", func() {
			So(laptime.Parse("  1:00.000 "), ShouldResemble, laptime.Of(60000))
		})
	})

	Convey("Given malformed input", t, func() {
		cases := []string{"", "   ", "abc", "1:2:3:4", "1::00.000", ":59.000", "1:a0.000", "-1:00.000", "1.2.3", "59.x", "1:00.-5"}
		for _, c := range cases {
			Convey("Then "+c+" should be unparseable", func() {
				m := laptime.Parse(c)
				So(m.Valid, ShouldBeFalse)
			})
		}
	})

	Convey("Given well-formed segments whose total exceeds int64", t, func() {
		cases := []string{
			"999999999999999999:00.000",
			"4000000000000000:00:00.000",
			"9223372036854775:59.999",
			"9223372036854775807.000",
		}
		for _, c := range cases {
			Convey("Then "+c+" should be unparseable rather than wrap negative", func() {
				m := laptime.Parse(c)
				So(m.Valid, ShouldBeFalse)
			})
		}

		Convey("Then the largest representable total still parses", func() {
			m := laptime.Parse("9223372036854775.807")
			So(m.Valid, ShouldBeTrue)
			So(m.Value, ShouldEqual, int64(9223372036854775807))
		})
	})
}

func TestParseAny(t *testing.T) {
	Convey("Given loosely typed values", t, func() {
		So(laptime.ParseAny(nil).Valid, ShouldBeFalse)
		So(laptime.ParseAny("1:00.500"), ShouldResemble, laptime.Of(60500))
		So(laptime.ParseAny(json.Number("12")), ShouldResemble, laptime.Of(12000))
		So(laptime.ParseAny(59), ShouldResemble, laptime.Of(59000))
		So(laptime.ParseAny(true).Valid, ShouldBeFalse)
	})
}

func TestFormatRoundTrip(t *testing.T) {
	Convey("Given millisecond values across all shapes", t, func() {
		values := []int64{0, 1, 999, 3456, 59999, 60000, 123456, 3599999, 3600000, 3723456, 86399999}

		Convey("Then Parse(Format(x)) should equal x", func() {
			for _, v := range values {
				So(laptime.Parse(laptime.Format(v)), ShouldResemble, laptime.Of(v))
			}
		})

		Convey("Then the shortest shape is used", func() {
			So(laptime.Format(3456), ShouldEqual, "03.456")
			So(laptime.Format(123456), ShouldEqual, "2:03.456")
			So(laptime.Format(3723456), ShouldEqual, "1:02:03.456")
		})
	})
}

func TestMillisOrderingAndJSON(t *testing.T) {
	Convey("Given parseable and unparseable values", t, func() {
		fast, slow, bad := laptime.Of(100), laptime.Of(200), laptime.Unparseable()

		Convey("Then parseable values sort before unparseable ones", func() {
			So(fast.Less(slow), ShouldBeTrue)
			So(slow.Less(fast), ShouldBeFalse)
			So(slow.Less(bad), ShouldBeTrue)
			So(bad.Less(fast), ShouldBeFalse)
			So(bad.Less(bad), ShouldBeFalse)
		})

		Convey("Then JSON renders unparseable as null", func() {
			b, err := json.Marshal(struct {
				A laptime.Millis `json:"a"`
				B laptime.Millis `json:"b"`
			}{fast, bad})
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `{"a":100,"b":null}`)
		})

		Convey("Then JSON decoding restores both states", func() {
			var m laptime.Millis
			So(json.Unmarshal([]byte("59000"), &m), ShouldBeNil)
			So(m, ShouldResemble, laptime.Of(59000))
			So(json.Unmarshal([]byte("null"), &m), ShouldBeNil)
			So(m.Valid, ShouldBeFalse)
		})
	})
}
