package environment

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// UniformStarter draws starting states uniformly from a box. Starters
// built with equal seeds yield equal sequences of starting states, so
// a training and an evaluation environment seeded differently never
// share starts.
type UniformStarter struct {
	dist *distmv.Uniform
	seed uint64
}

// NewUniformStarter returns a UniformStarter whose i-th state feature
// is drawn from bounds[i]
func NewUniformStarter(bounds []r1.Interval, seed uint64) *UniformStarter {
	dist := distmv.NewUniform(bounds, rand.NewSource(seed))
	return &UniformStarter{dist: dist, seed: seed}
}

// Start draws a starting state
func (u *UniformStarter) Start() *mat.VecDense {
	return mat.NewVecDense(u.dist.Dim(), u.dist.Rand(nil))
}

// Seed returns the seed the starter was built with
func (u *UniformStarter) Seed() uint64 {
	return u.seed
}
