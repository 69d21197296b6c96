package environment

import (
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	ts "github.com/starla/dqnstop/timestep"
)

func TestStepLimit(t *testing.T) {
	limit := NewStepLimit(5)
	obs := mat.NewVecDense(1, []float64{0})

	step := ts.New(ts.Mid, 0, 1, obs, 4)
	if limit.End(&step) {
		t.Fatal("episode ended before step limit")
	}

	step = ts.New(ts.Mid, 0, 1, obs, 5)
	if !limit.End(&step) {
		t.Fatal("episode did not end at step limit")
	}
	if !step.Truncated() {
		t.Errorf("end type: want(%v) have(%v)", ts.Timeout, step.EndType())
	}
}

func TestFirstOfPrecedence(t *testing.T) {
	terminal := NewTerminal(func(v mat.Vector) bool { return v.AtVec(0) >= 1 })
	ender := FirstOf(terminal, NewStepLimit(3))

	// Terminal state on the final allowed step is a termination
	step := ts.New(ts.Mid, 0, 1, mat.NewVecDense(1, []float64{1}), 3)
	if !ender.End(&step) || !step.Terminated() {
		t.Errorf("goal on last step: last=%v end=%v", step.Last(),
			step.EndType())
	}

	step = ts.New(ts.Mid, 0, 1, mat.NewVecDense(1, []float64{0}), 3)
	if !ender.End(&step) || !step.Truncated() {
		t.Errorf("step limit: last=%v end=%v", step.Last(), step.EndType())
	}

	step = ts.New(ts.Mid, 0, 1, mat.NewVecDense(1, []float64{0}), 1)
	if ender.End(&step) || step.Last() {
		t.Errorf("mid episode step ended with %v", step.EndType())
	}
}

func TestUniformStarterSeeded(t *testing.T) {
	bounds := []r1.Interval{{Min: -0.6, Max: -0.4}, {Min: 0, Max: 0}}
	a := NewUniformStarter(bounds, 42)
	b := NewUniformStarter(bounds, 42)

	for i := 0; i < 10; i++ {
		sa, sb := a.Start(), b.Start()
		if !mat.Equal(sa, sb) {
			t.Fatalf("starters with same seed diverged at sample %d", i)
		}
		if sa.AtVec(0) < -0.6 || sa.AtVec(0) > -0.4 || sa.AtVec(1) != 0 {
			t.Fatalf("start state %v outside bounds", mat.Formatted(sa.T()))
		}
	}
}

func TestSpec(t *testing.T) {
	spec := NewSpec(mat.NewVecDense(1, nil), Action,
		mat.NewVecDense(1, []float64{0}), mat.NewVecDense(1, []float64{2}),
		Discrete)
	n, err := spec.NumActions()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("number of actions: want(3) have(%v)", n)
	}

	for _, tc := range []struct {
		action []float64
		want   bool
	}{
		{[]float64{0}, true},
		{[]float64{2}, true},
		{[]float64{3}, false},
		{[]float64{-1}, false},
		{[]float64{0.5}, false},
		{[]float64{1, 1}, false},
	} {
		v := mat.NewVecDense(len(tc.action), tc.action)
		if have := spec.Contains(v); have != tc.want {
			t.Errorf("contains %v: want(%v) have(%v)", tc.action, tc.want,
				have)
		}
	}

	spec.Cardinality = Continuous
	if !spec.Contains(mat.NewVecDense(1, []float64{0.5})) {
		t.Error("continuous spec should contain 0.5")
	}
	if _, err := spec.NumActions(); err == nil {
		t.Error("expected error for continuous action spec")
	}
}
