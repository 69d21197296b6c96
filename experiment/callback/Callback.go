// Package callback implements hooks which are invoked by an experiment
// after every training step and which may halt training
package callback

import "github.com/starla/dqnstop/agent"

// Callback is invoked by a training loop once per completed training
// step with the loop's step count and the policy being trained. If
// OnStep returns false, training halts. Errors abort training and are
// returned to the caller of the training loop.
type Callback interface {
	OnStep(step int, model agent.Predictor) (bool, error)
}

// Func adapts a function to the Callback interface
type Func func(step int, model agent.Predictor) (bool, error)

// OnStep calls f
func (f Func) OnStep(step int, model agent.Predictor) (bool, error) {
	return f(step, model)
}

// List is a Callback which invokes each of its Callbacks in order.
// Every Callback is invoked on each step, even if an earlier Callback
// requests that training halt, so that no Callback misses a step. The
// first error stops iteration.
type List []Callback

// OnStep invokes OnStep on each Callback in the List and returns
// whether all Callbacks requested that training continue
func (l List) OnStep(step int, model agent.Predictor) (bool, error) {
	cont := true
	for _, c := range l {
		ok, err := c.OnStep(step, model)
		if err != nil {
			return false, err
		}
		cont = cont && ok
	}
	return cont, nil
}
