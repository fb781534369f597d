package experience

import (
	"errors"
	"fmt"
	"math"

	"github.com/2beens/fitplan/internal/templates"
)

const (
	MinIntensity = 6.0
	MaxIntensity = 10.0
)

var ErrInvalidAdjustment = errors.New("invalid experience adjustment")

type Adjustment templates.ExperienceAdjustment

func (a Adjustment) Validate() error {
	if math.IsNaN(a.SetMultiplier) || math.IsInf(a.SetMultiplier, 0) || a.SetMultiplier < 0 {
		return fmt.Errorf("%w: set multiplier %v", ErrInvalidAdjustment, a.SetMultiplier)
	}
	if math.IsNaN(a.IntensityBias) || math.IsInf(a.IntensityBias, 0) {
		return fmt.Errorf("%w: intensity bias %v", ErrInvalidAdjustment, a.IntensityBias)
	}
	return nil
}

// Adjust scales sets and shifts intensity for the experience level.
// A missing level, a zero multiplier or an invalid adjustment leaves the
// sessions unchanged. The result is always a copy.
func Adjust(sessions []templates.Session, adjustments map[string]templates.ExperienceAdjustment, level string) []templates.Session {
	out := templates.CloneSessions(sessions)

	raw, ok := adjustments[level]
	if !ok {
		return out
	}
	adj := Adjustment(raw)
	if adj.Validate() != nil {
		return out
	}

	for si := range out {
		for wi := range out[si].Work {
			a := &out[si].Work[wi]
			if adj.SetMultiplier != 0 {
				a.Sets = scaleSets(a.Sets, adj.SetMultiplier)
			}
			if a.Intensity != nil {
				v := clamp(*a.Intensity+adj.IntensityBias, MinIntensity, MaxIntensity)
				a.Intensity = &v
			}
		}
	}
	return out
}

// scaleSets rounds half away from zero and never drops below one set.
func scaleSets(sets int, multiplier float64) int {
	scaled := int(math.Round(float64(sets) * multiplier))
	if scaled < 1 {
		return 1
	}
	return scaled
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
