// Package features defines the validated input of the risk scorer.
//
// A FeatureSet is an immutable value. Every field has a default, and the set
// also records which fields the caller supplied, since confidence is derived
// from presence rather than from values.
package features

import (
	"fmt"
	"math"
)

// Field names a scoring feature. The string form is the wire name.
type Field string

// Supported features.
const (
	LastDoseMissed     Field = "last_dose_missed"
	HoursSinceLastDose Field = "hours_since_last_dose"
	SymptomSeverity    Field = "symptom_severity"
	MissionsLast24h    Field = "missions_last_24h"
)

// All lists the features in canonical order.
var All = []Field{LastDoseMissed, HoursSinceLastDose, SymptomSeverity, MissionsLast24h}

func (f Field) bit() uint8 {
	switch f {
	case LastDoseMissed:
		return 1 << 0
	case HoursSinceLastDose:
		return 1 << 1
	case SymptomSeverity:
		return 1 << 2
	case MissionsLast24h:
		return 1 << 3
	}
	return 0
}

// FeatureSet is the normalized feature bag. The zero value is the empty set
// with all defaults.
type FeatureSet struct {
	lastDoseMissed     bool
	hoursSinceLastDose float64
	symptomSeverity    float64
	missionsLast24h    int
	present            uint8
}

// Option sets one feature on a FeatureSet under construction and marks it present.
type Option func(*FeatureSet)

// WithLastDoseMissed sets last_dose_missed.
func WithLastDoseMissed(v bool) Option {
	return func(fs *FeatureSet) {
		fs.lastDoseMissed = v
		fs.present |= LastDoseMissed.bit()
	}
}

// WithHoursSinceLastDose sets hours_since_last_dose.
func WithHoursSinceLastDose(v float64) Option {
	return func(fs *FeatureSet) {
		fs.hoursSinceLastDose = v
		fs.present |= HoursSinceLastDose.bit()
	}
}

// WithSymptomSeverity sets symptom_severity.
func WithSymptomSeverity(v float64) Option {
	return func(fs *FeatureSet) {
		fs.symptomSeverity = v
		fs.present |= SymptomSeverity.bit()
	}
}

// WithMissionsLast24h sets missions_last_24h.
func WithMissionsLast24h(v int) Option {
	return func(fs *FeatureSet) {
		fs.missionsLast24h = v
		fs.present |= MissionsLast24h.bit()
	}
}

// New builds a FeatureSet from options and validates it.
func New(opts ...Option) (FeatureSet, error) {
	var fs FeatureSet
	for _, opt := range opts {
		opt(&fs)
	}
	if err := fs.validate(); err != nil {
		return FeatureSet{}, err
	}
	return fs, nil
}

// MustNew is New for inputs known to be valid. It panics otherwise.
func MustNew(opts ...Option) FeatureSet {
	fs, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return fs
}

func (fs FeatureSet) validate() error {
	var errs []FieldError
	if !isFinite(fs.hoursSinceLastDose) {
		errs = append(errs, FieldError{Field: HoursSinceLastDose, Message: "must be a finite number"})
	} else if fs.hoursSinceLastDose < 0 {
		errs = append(errs, FieldError{Field: HoursSinceLastDose, Message: "must be >= 0"})
	}
	if !isFinite(fs.symptomSeverity) {
		errs = append(errs, FieldError{Field: SymptomSeverity, Message: "must be a finite number"})
	}
	if fs.missionsLast24h < 0 {
		errs = append(errs, FieldError{Field: MissionsLast24h, Message: "must be >= 0"})
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// LastDoseMissed reports last_dose_missed (default false).
func (fs FeatureSet) LastDoseMissed() bool { return fs.lastDoseMissed }

// HoursSinceLastDose reports hours_since_last_dose (default 0).
func (fs FeatureSet) HoursSinceLastDose() float64 { return fs.hoursSinceLastDose }

// SymptomSeverity reports symptom_severity (default 0).
func (fs FeatureSet) SymptomSeverity() float64 { return fs.symptomSeverity }

// MissionsLast24h reports missions_last_24h (default 0).
func (fs FeatureSet) MissionsLast24h() int { return fs.missionsLast24h }

// Has reports whether the caller supplied f.
func (fs FeatureSet) Has(f Field) bool {
	b := f.bit()
	return b != 0 && fs.present&b != 0
}

// Provided counts the supplied features.
func (fs FeatureSet) Provided() int {
	n := 0
	for _, f := range All {
		if fs.Has(f) {
			n++
		}
	}
	return n
}

// String renders the set for logs.
func (fs FeatureSet) String() string {
	return fmt.Sprintf("missed=%t hours=%g severity=%g missions=%d provided=%d",
		fs.lastDoseMissed, fs.hoursSinceLastDose, fs.symptomSeverity, fs.missionsLast24h, fs.Provided())
}
