// Package policy implements policies using nonlinear function
// approximation with Gorgonia.
package policy

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"github.com/starla/dqnstop/network"
	"github.com/starla/dqnstop/utils/floatutils"
)

// EGreedyMLP implements an epsilon greedy policy using a feedforward
// neural network/MLP. Given an environment with N actions, the neural
// network will produce N outputs, each predicting the value of a
// distinct action.
//
// Unlike networks used for learning, EGreedyMLP owns a VM over its
// graph and a network with batch size 1 so that action values for a
// single observation can be computed directly:
//
//	Compute action values:	values, err = policy.ActionValues(obs)
//	Select an action:		action, err = policy.SelectAction(obs, false)
type EGreedyMLP struct {
	net     *network.MLP
	vm      G.VM
	epsilon float64

	rng  *rand.Rand
	seed uint64
}

// NewEGreedyMLP creates and returns a new EGreedyMLP over observations
// with features features and numActions discrete actions. The
// hiddenSizes parameter defines the number of nodes in each hidden
// layer, and the activations parameter determines the activation
// function for each hidden layer. A final linear layer is always added
// so that the network outputs one value per action.
func NewEGreedyMLP(epsilon float64, features, numActions int,
	hiddenSizes []int, activations []*network.Activation, init G.InitWFn,
	seed uint64) (*EGreedyMLP, error) {
	if epsilon < 0 || epsilon > 1 {
		return nil, fmt.Errorf("newEGreedyMLP: epsilon must be in [0, 1] "+
			"\n\thave(%v)", epsilon)
	}

	net, err := network.NewMLP(features, 1, numActions, G.NewGraph(),
		hiddenSizes, activations, init)
	if err != nil {
		return nil, fmt.Errorf("newEGreedyMLP: could not create policy: %v",
			err)
	}

	return &EGreedyMLP{
		net:     net,
		vm:      G.NewTapeMachine(net.Graph()),
		epsilon: epsilon,
		rng:     rand.New(rand.NewSource(seed)),
		seed:    seed,
	}, nil
}

// Network returns the neural network function approximator that the
// policy uses
func (e *EGreedyMLP) Network() *network.MLP {
	return e.net
}

// SetEpsilon sets the value for epsilon in the epsilon greedy policy
func (e *EGreedyMLP) SetEpsilon(ε float64) {
	e.epsilon = ε
}

// Epsilon gets the value of epsilon for the policy
func (e *EGreedyMLP) Epsilon() float64 {
	return e.epsilon
}

// NumActions returns the number of actions the policy chooses between
func (e *EGreedyMLP) NumActions() int {
	return e.net.Outputs()
}

// ActionValues returns the approximated value of each action in the
// observed state
func (e *EGreedyMLP) ActionValues(obs *mat.VecDense) ([]float64, error) {
	if obs.Len() != e.net.Features() {
		return nil, fmt.Errorf("actionValues: invalid observation size "+
			"\n\twant(%v) \n\thave(%v)", e.net.Features(), obs.Len())
	}

	if err := e.net.SetInput(obs.RawVector().Data); err != nil {
		return nil, fmt.Errorf("actionValues: %v", err)
	}
	if err := e.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("actionValues: could not run network: %v",
			err)
	}
	defer e.vm.Reset()

	out, err := e.net.Output()
	if err != nil {
		return nil, fmt.Errorf("actionValues: %v", err)
	}
	return append([]float64(nil), out...), nil
}

// SelectAction selects an action in the observed state. If greedy is
// true, the action of maximum value is returned, breaking ties in
// favour of the lowest action index. Otherwise, with probability
// epsilon a uniform random action is returned instead.
func (e *EGreedyMLP) SelectAction(obs *mat.VecDense,
	greedy bool) (*mat.VecDense, error) {
	if !greedy && e.rng.Float64() < e.epsilon {
		action := e.rng.Intn(e.NumActions())
		return mat.NewVecDense(1, []float64{float64(action)}), nil
	}

	actionValues, err := e.ActionValues(obs)
	if err != nil {
		return nil, fmt.Errorf("selectAction: %v", err)
	}

	action := floatutils.ArgMax(actionValues)
	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// Close releases the resources held by the policy's VM
func (e *EGreedyMLP) Close() error {
	return e.vm.Close()
}
