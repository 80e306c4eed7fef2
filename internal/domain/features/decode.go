package features

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Decode parses a JSON object into a FeatureSet. Absent and null fields keep
// their defaults and are not counted as provided. Unknown fields are ignored.
// Type and range problems are reported together as a *ValidationError;
// input that is not a JSON object yields ErrMalformed.
func Decode(data []byte) (FeatureSet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return FeatureSet{}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return FeatureSet{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var (
		opts []Option
		errs []FieldError
	)
	for _, f := range All {
		msg, ok := raw[string(f)]
		if !ok || isNull(msg) {
			continue
		}
		opt, fe := decodeField(f, msg)
		if fe != nil {
			errs = append(errs, *fe)
			continue
		}
		opts = append(opts, opt)
	}
	if len(errs) > 0 {
		return FeatureSet{}, &ValidationError{Fields: errs}
	}
	return New(opts...)
}

func decodeField(f Field, msg json.RawMessage) (Option, *FieldError) {
	switch f {
	case LastDoseMissed:
		var v bool
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, &FieldError{Field: f, Message: "must be a boolean"}
		}
		return WithLastDoseMissed(v), nil
	case HoursSinceLastDose, SymptomSeverity:
		var v float64
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, &FieldError{Field: f, Message: "must be a number"}
		}
		if f == HoursSinceLastDose {
			return WithHoursSinceLastDose(v), nil
		}
		return WithSymptomSeverity(v), nil
	case MissionsLast24h:
		var v float64
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, &FieldError{Field: f, Message: "must be an integer"}
		}
		switch {
		case v != math.Trunc(v):
			return nil, &FieldError{Field: f, Message: "must be an integer"}
		case v > math.MaxInt32:
			return nil, &FieldError{Field: f, Message: fmt.Sprintf("must be <= %d", math.MaxInt32)}
		case v < math.MinInt32:
			return nil, &FieldError{Field: f, Message: "must be >= 0"}
		}
		return WithMissionsLast24h(int(v)), nil
	}
	return nil, &FieldError{Field: f, Message: "unsupported field"}
}

func isNull(msg json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(msg), []byte("null"))
}

// UnmarshalJSON implements json.Unmarshaler via Decode.
func (fs *FeatureSet) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*fs = decoded
	return nil
}

// MarshalJSON emits only the provided fields, so a round trip keeps presence.
func (fs FeatureSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(All))
	if fs.Has(LastDoseMissed) {
		out[string(LastDoseMissed)] = fs.lastDoseMissed
	}
	if fs.Has(HoursSinceLastDose) {
		out[string(HoursSinceLastDose)] = fs.hoursSinceLastDose
	}
	if fs.Has(SymptomSeverity) {
		out[string(SymptomSeverity)] = fs.symptomSeverity
	}
	if fs.Has(MissionsLast24h) {
		out[string(MissionsLast24h)] = fs.missionsLast24h
	}
	return json.Marshal(out)
}
