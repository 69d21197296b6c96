package tracker

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	ts "github.com/starla/dqnstop/timestep"
)

// episode returns the timesteps of an episode of n steps with reward
// -1 per step
func episode(n int, end ts.EndType) []ts.TimeStep {
	steps := []ts.TimeStep{ts.New(ts.First, 0, 1, nil, 0)}
	for i := 1; i <= n; i++ {
		step := ts.New(ts.Mid, -1, 1, nil, i)
		if i == n {
			step.SetEnd(end)
		}
		steps = append(steps, step)
	}
	return steps
}

func TestTrackers(t *testing.T) {
	dir := t.TempDir()
	ret := NewReturn(filepath.Join(dir, "return.bin"))
	length := NewEpisodeLength(filepath.Join(dir, "length.bin"))

	var steps []ts.TimeStep
	steps = append(steps, episode(3, ts.TerminalStateReached)...)
	steps = append(steps, episode(5, ts.Timeout)...)
	steps = append(steps, episode(2, ts.Unknown)[:2]...)

	for _, step := range steps {
		ret.Track(step)
		length.Track(step)
	}

	require.Equal(t, []float64{-3, -5}, ret.Data())
	require.Equal(t, []float64{3, 5}, length.Data())

	for _, tr := range []Tracker{ret, length} {
		require.NoError(t, tr.Save())
	}

	data, err := LoadData(filepath.Join(dir, "return.bin"))
	require.NoError(t, err)
	require.Equal(t, []float64{-3, -5}, data)

	mean, std := Summary(length.Data())
	require.InDelta(t, 4.0, mean, 1e-12)
	require.InDelta(t, 1.4142135623730951, std, 1e-12)
}

func TestReturnNonSequential(t *testing.T) {
	ret := NewReturn("")
	ret.Track(ts.New(ts.First, 0, 1, nil, 0))
	require.Panics(t, func() { ret.Track(ts.New(ts.Mid, -1, 1, nil, 2)) })
}

func TestLoadDataMissing(t *testing.T) {
	_, err := LoadData(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
}

func TestSaveWithoutFilename(t *testing.T) {
	ret := NewReturn("")
	for _, step := range episode(4, ts.Timeout) {
		ret.Track(step)
	}
	require.NoError(t, ret.Save())
	require.Equal(t, []float64{-4}, ret.Data())
}
