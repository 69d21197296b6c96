package deepq

import (
	"fmt"

	"github.com/starla/dqnstop/utils/floatutils"
)

// LinearSchedule anneals a value linearly from Initial to Final over
// the first Fraction of TotalSteps steps, after which the value stays
// at Final.
type LinearSchedule struct {
	Initial    float64
	Final      float64
	Fraction   float64
	TotalSteps int
}

// NewLinearSchedule returns a new LinearSchedule
func NewLinearSchedule(initial, final, fraction float64,
	totalSteps int) (LinearSchedule, error) {
	if fraction <= 0 || fraction > 1 {
		return LinearSchedule{}, fmt.Errorf("newLinearSchedule: fraction "+
			"must be in (0, 1] \n\thave(%v)", fraction)
	}
	if totalSteps <= 0 {
		return LinearSchedule{}, fmt.Errorf("newLinearSchedule: total "+
			"steps must be positive \n\thave(%v)", totalSteps)
	}
	return LinearSchedule{
		Initial:    initial,
		Final:      final,
		Fraction:   fraction,
		TotalSteps: totalSteps,
	}, nil
}

// Value returns the value of the schedule after step steps
func (l LinearSchedule) Value(step int) float64 {
	progress := float64(step) / (l.Fraction * float64(l.TotalSteps))
	progress = floatutils.Clip(progress, 0, 1)
	return l.Initial + progress*(l.Final-l.Initial)
}
