package floatutils

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r1"
)

func TestClip(t *testing.T) {
	interval := r1.Interval{Min: -1, Max: 1}
	for _, test := range []struct{ in, want float64 }{
		{-2, -1}, {0.5, 0.5}, {3, 1},
	} {
		if have := ClipInterval(test.in, interval); have != test.want {
			t.Errorf("clip(%v): want(%v) have(%v)", test.in, test.want, have)
		}
	}
}

func TestArgMax(t *testing.T) {
	if have := ArgMax(nil); have != -1 {
		t.Errorf("argmax of empty slice: want(-1) have(%v)", have)
	}
	if have := ArgMax([]float64{1, 3, 3, 2}); have != 1 {
		t.Errorf("argmax ties should resolve to first index: have(%v)", have)
	}
}
