package loadgen

import (
	"math"
	"math/rand/v2"
)

// Input ranges. They deliberately reach past the nominal scales so the
// caps are exercised.
const (
	maxHours       = 48.0
	maxSeverity    = 12.0
	maxMissions    = 5
	presenceChance = 0.8
)

// Payload is one generated request body. Nil fields are omitted so that
// field presence varies across inputs.
type Payload struct {
	LastDoseMissed     *bool    `json:"last_dose_missed,omitempty"`
	HoursSinceLastDose *float64 `json:"hours_since_last_dose,omitempty"`
	SymptomSeverity    *float64 `json:"symptom_severity,omitempty"`
	MissionsLast24h    *int     `json:"missions_last_24h,omitempty"`
}

// Generate returns n payloads. The same seed yields the same payloads.
func Generate(n int, seed uint64) []Payload {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	out := make([]Payload, n)
	for i := range out {
		var p Payload
		if rng.Float64() < presenceChance {
			v := rng.IntN(2) == 1
			p.LastDoseMissed = &v
		}
		if rng.Float64() < presenceChance {
			v := round1(rng.Float64() * maxHours)
			p.HoursSinceLastDose = &v
		}
		if rng.Float64() < presenceChance {
			v := round1(rng.Float64() * maxSeverity)
			p.SymptomSeverity = &v
		}
		if rng.Float64() < presenceChance {
			v := rng.IntN(maxMissions + 1)
			p.MissionsLast24h = &v
		}
		out[i] = p
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
