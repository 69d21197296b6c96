package environment

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// SpecType denotes what a Spec describes
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

func (s SpecType) String() string {
	switch s {
	case Action:
		return "Action"
	case Observation:
		return "Observation"
	case Discount:
		return "Discount"
	default:
		return "Reward"
	}
}

// Cardinality denotes whether the values described by a Spec are
// discrete or continuous
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec describes the shape, bounds, and cardinality of the actions,
// observations, discounts, or rewards of an environment. Bounds are
// inclusive.
type Spec struct {
	Shape      *mat.VecDense
	Type       SpecType
	LowerBound *mat.VecDense
	UpperBound *mat.VecDense
	Cardinality
}

// NewSpec returns a new Spec. NewSpec panics if the bounds do not have
// the same length as shape, since that is always a programming error
// in the environment constructing the Spec.
func NewSpec(shape *mat.VecDense, t SpecType, lowerBound,
	upperBound *mat.VecDense, cardinality Cardinality) Spec {
	if shape.Len() != lowerBound.Len() || shape.Len() != upperBound.Len() {
		panic(fmt.Sprintf("newSpec: %v bounds must match shape "+
			"\n\twant(%v) \n\thave(%v, %v)", t, shape.Len(), lowerBound.Len(),
			upperBound.Len()))
	}
	return Spec{
		Shape:       shape,
		Type:        t,
		LowerBound:  lowerBound,
		UpperBound:  upperBound,
		Cardinality: cardinality,
	}
}

// Intervals returns the bounds of each dimension
func (s Spec) Intervals() []r1.Interval {
	intervals := make([]r1.Interval, s.Shape.Len())
	for i := range intervals {
		intervals[i] = r1.Interval{
			Min: s.LowerBound.AtVec(i),
			Max: s.UpperBound.AtVec(i),
		}
	}
	return intervals
}

// Contains returns whether v has the shape described by s and lies
// within its bounds. Discrete specs additionally require each element
// of v to be integral.
func (s Spec) Contains(v mat.Vector) bool {
	if v == nil || v.Len() != s.Shape.Len() {
		return false
	}
	for i, interval := range s.Intervals() {
		x := v.AtVec(i)
		if x < interval.Min || x > interval.Max {
			return false
		}
		if s.Cardinality == Discrete && x != math.Trunc(x) {
			return false
		}
	}
	return true
}

// NumActions returns the number of actions described by a
// one-dimensional discrete action Spec whose actions are enumerated
// from 0
func (s Spec) NumActions() (int, error) {
	switch {
	case s.Type != Action || s.Cardinality != Discrete:
		return 0, fmt.Errorf("numActions: %v %v spec is not a discrete "+
			"action spec", s.Cardinality, s.Type)
	case s.Shape.Len() != 1:
		return 0, fmt.Errorf("numActions: actions must be 1-dimensional "+
			"\n\thave(%v)", s.Shape.Len())
	case s.LowerBound.AtVec(0) != 0:
		return 0, fmt.Errorf("numActions: actions must be enumerated " +
			"starting from 0")
	}
	return int(s.UpperBound.AtVec(0)) + 1, nil
}
