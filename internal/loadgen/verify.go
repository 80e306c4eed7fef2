package loadgen

import (
	"fmt"

	"github.com/okian/medrisk/internal/domain/scoring"
)

// Score bounds every answer must respect.
const (
	minRisk       = 0.0
	maxRisk       = 100.0
	minConfidence = 40.0
	maxConfidence = 99.0
	maxFatigue    = 100.0
)

// verify compares the light answer, the submission preview and the finished
// job. It returns one message per broken expectation.
func verify(light scoring.Result, ack FullAck, j JobStatus) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if light.Risk < minRisk || light.Risk > maxRisk {
		add("light risk %.1f out of bounds", light.Risk)
	}
	if light.Confidence < minConfidence || light.Confidence > maxConfidence {
		add("light confidence %.1f out of bounds", light.Confidence)
	}
	if light.ModelVersion != scoring.LightModelVersion {
		add("light model version %q", light.ModelVersion)
	}
	if ack.DataPreview != light {
		add("preview %+v differs from light %+v", ack.DataPreview, light)
	}
	if j.Preview != ack.DataPreview {
		add("stored preview %+v differs from submission preview %+v", j.Preview, ack.DataPreview)
	}

	if j.State != "completed" {
		return problems
	}
	if j.Result == nil {
		add("completed job %s has no result", j.JobID)
		return problems
	}
	full := j.Result
	if full.Risk != light.Risk {
		add("full risk %.1f differs from light risk %.1f", full.Risk, light.Risk)
	}
	if full.Confidence != light.Confidence {
		add("full confidence %.1f differs from light confidence %.1f", full.Confidence, light.Confidence)
	}
	if full.Explanation != light.Explanation {
		add("full explanation %q differs from light %q", full.Explanation, light.Explanation)
	}
	if full.FatigueScore < 0 || full.FatigueScore > maxFatigue {
		add("fatigue %.1f out of bounds", full.FatigueScore)
	}
	if full.ModelVersion != scoring.FullModelVersion {
		add("full model version %q", full.ModelVersion)
	}
	return problems
}
