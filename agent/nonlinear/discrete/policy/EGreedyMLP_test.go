package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"github.com/starla/dqnstop/network"
)

func newTestPolicy(t *testing.T, epsilon float64) *EGreedyMLP {
	t.Helper()
	p, err := NewEGreedyMLP(epsilon, 2, 3, []int{4},
		[]*network.Activation{network.ReLU()}, G.GlorotU(1.0), 7)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestGreedyMatchesArgMax(t *testing.T) {
	p := newTestPolicy(t, 1.0)
	obs := mat.NewVecDense(2, []float64{-0.5, 0.01})

	values, err := p.ActionValues(obs)
	require.NoError(t, err)
	require.Len(t, values, 3)

	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}

	// Greedy selection ignores epsilon, even when epsilon is 1
	for i := 0; i < 10; i++ {
		action, err := p.SelectAction(obs, true)
		require.NoError(t, err)
		require.Equal(t, float64(best), action.AtVec(0))
	}
}

func TestExploration(t *testing.T) {
	p := newTestPolicy(t, 1.0)
	obs := mat.NewVecDense(2, []float64{-0.5, 0.0})

	seen := make(map[float64]bool)
	for i := 0; i < 200; i++ {
		action, err := p.SelectAction(obs, false)
		require.NoError(t, err)
		a := action.AtVec(0)
		require.True(t, a >= 0 && a < 3, "action %v out of range", a)
		seen[a] = true
	}
	require.Len(t, seen, 3)
}

func TestTiesBreakLow(t *testing.T) {
	p, err := NewEGreedyMLP(0, 2, 3, []int{},
		[]*network.Activation{}, G.Zeroes(), 1)
	require.NoError(t, err)
	defer p.Close()

	action, err := p.SelectAction(mat.NewVecDense(2, []float64{1, 1}), false)
	require.NoError(t, err)
	require.Equal(t, 0.0, action.AtVec(0))
}

func TestInvalid(t *testing.T) {
	_, err := NewEGreedyMLP(1.5, 2, 3, []int{}, []*network.Activation{},
		G.Zeroes(), 1)
	require.Error(t, err)

	p := newTestPolicy(t, 0)
	_, err = p.ActionValues(mat.NewVecDense(3, nil))
	require.Error(t, err)
}
