package features_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/okian/medrisk/internal/domain/features"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNew(t *testing.T) {
	Convey("Given feature options", t, func() {
		Convey("When no option is passed", func() {
			fs, err := features.New()

			Convey("Then every field keeps its default and nothing is provided", func() {
				So(err, ShouldBeNil)
				So(fs.LastDoseMissed(), ShouldBeFalse)
				So(fs.HoursSinceLastDose(), ShouldEqual, 0)
				So(fs.SymptomSeverity(), ShouldEqual, 0)
				So(fs.MissionsLast24h(), ShouldEqual, 0)
				So(fs.Provided(), ShouldEqual, 0)
			})
		})

		Convey("When a field is set to its default value", func() {
			fs, err := features.New(features.WithHoursSinceLastDose(0))

			Convey("Then it still counts as provided", func() {
				So(err, ShouldBeNil)
				So(fs.Has(features.HoursSinceLastDose), ShouldBeTrue)
				So(fs.Has(features.SymptomSeverity), ShouldBeFalse)
				So(fs.Provided(), ShouldEqual, 1)
			})
		})

		Convey("When every field is set", func() {
			fs := features.MustNew(
				features.WithLastDoseMissed(true),
				features.WithHoursSinceLastDose(10),
				features.WithSymptomSeverity(6),
				features.WithMissionsLast24h(2),
			)

			Convey("Then values and presence are reported", func() {
				So(fs.LastDoseMissed(), ShouldBeTrue)
				So(fs.HoursSinceLastDose(), ShouldEqual, 10)
				So(fs.SymptomSeverity(), ShouldEqual, 6)
				So(fs.MissionsLast24h(), ShouldEqual, 2)
				So(fs.Provided(), ShouldEqual, 4)
			})
		})

		Convey("When values are out of range", func() {
			_, err := features.New(
				features.WithHoursSinceLastDose(-1),
				features.WithSymptomSeverity(math.NaN()),
				features.WithMissionsLast24h(-3),
			)

			Convey("Then a validation error lists each field", func() {
				So(errors.Is(err, features.ErrValidation), ShouldBeTrue)
				var verr *features.ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				So(len(verr.Fields), ShouldEqual, 3)
				So(verr.Fields[0].Field, ShouldEqual, features.HoursSinceLastDose)
				So(verr.Fields[1].Field, ShouldEqual, features.SymptomSeverity)
				So(verr.Fields[2].Field, ShouldEqual, features.MissionsLast24h)
			})
		})

		Convey("When severity is above the nominal scale", func() {
			fs, err := features.New(features.WithSymptomSeverity(42))

			Convey("Then it is accepted", func() {
				So(err, ShouldBeNil)
				So(fs.SymptomSeverity(), ShouldEqual, 42)
			})
		})
	})
}

func TestDecode(t *testing.T) {
	Convey("Given JSON payloads", t, func() {
		Convey("When the payload is empty", func() {
			fs, err := features.Decode([]byte("  "))

			Convey("Then the empty set is returned", func() {
				So(err, ShouldBeNil)
				So(fs.Provided(), ShouldEqual, 0)
			})
		})

		Convey("When the payload is an empty object", func() {
			fs, err := features.Decode([]byte(`{}`))

			Convey("Then nothing is provided", func() {
				So(err, ShouldBeNil)
				So(fs.Provided(), ShouldEqual, 0)
			})
		})

		Convey("When the payload carries all fields and extras", func() {
			fs, err := features.Decode([]byte(`{
				"user_id": "ranger-7",
				"last_dose_missed": true,
				"hours_since_last_dose": 10,
				"symptom_severity": 6.5,
				"missions_last_24h": 2
			}`))

			Convey("Then known fields are decoded and extras ignored", func() {
				So(err, ShouldBeNil)
				So(fs.LastDoseMissed(), ShouldBeTrue)
				So(fs.HoursSinceLastDose(), ShouldEqual, 10)
				So(fs.SymptomSeverity(), ShouldEqual, 6.5)
				So(fs.MissionsLast24h(), ShouldEqual, 2)
				So(fs.Provided(), ShouldEqual, 4)
			})
		})

		Convey("When a field is null", func() {
			fs, err := features.Decode([]byte(`{"symptom_severity": null, "missions_last_24h": 1}`))

			Convey("Then it counts as absent", func() {
				So(err, ShouldBeNil)
				So(fs.Has(features.SymptomSeverity), ShouldBeFalse)
				So(fs.Provided(), ShouldEqual, 1)
			})
		})

		Convey("When fields have the wrong type", func() {
			_, err := features.Decode([]byte(`{
				"last_dose_missed": "yes",
				"hours_since_last_dose": "ten",
				"missions_last_24h": 1.5
			}`))

			Convey("Then each field is reported", func() {
				var verr *features.ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				So(len(verr.Fields), ShouldEqual, 3)
				So(verr.Fields[0].Message, ShouldEqual, "must be a boolean")
				So(verr.Fields[1].Message, ShouldEqual, "must be a number")
				So(verr.Fields[2].Message, ShouldEqual, "must be an integer")
			})
		})

		Convey("When missions exceed the 32-bit range", func() {
			_, err := features.Decode([]byte(`{"missions_last_24h": 3e9}`))

			Convey("Then the range is reported instead of the type", func() {
				var verr *features.ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				So(len(verr.Fields), ShouldEqual, 1)
				So(verr.Fields[0].Field, ShouldEqual, features.MissionsLast24h)
				So(verr.Fields[0].Message, ShouldEqual, "must be <= 2147483647")
			})
		})

		Convey("When a value is negative", func() {
			_, err := features.Decode([]byte(`{"hours_since_last_dose": -2}`))

			Convey("Then a validation error is returned", func() {
				So(errors.Is(err, features.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "hours_since_last_dose")
			})
		})

		Convey("When the payload is not an object", func() {
			_, err := features.Decode([]byte(`[1, 2]`))

			Convey("Then ErrMalformed is returned", func() {
				So(errors.Is(err, features.ErrMalformed), ShouldBeTrue)
				So(errors.Is(err, features.ErrValidation), ShouldBeFalse)
			})
		})
	})
}

func TestJSONRoundTrip(t *testing.T) {
	Convey("Given a partially provided set", t, func() {
		in := features.MustNew(features.WithHoursSinceLastDose(0), features.WithMissionsLast24h(3))

		Convey("When it is marshaled and decoded again", func() {
			data, err := json.Marshal(in)
			So(err, ShouldBeNil)
			var out features.FeatureSet
			So(json.Unmarshal(data, &out), ShouldBeNil)

			Convey("Then presence is preserved", func() {
				So(out, ShouldResemble, in)
				So(out.Has(features.LastDoseMissed), ShouldBeFalse)
				So(out.Has(features.HoursSinceLastDose), ShouldBeTrue)
			})
		})
	})
}
