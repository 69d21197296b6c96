// Package deepq implements the deep Q-learning algorithm with a target
// network and experience replay
package deepq

import (
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/starla/dqnstop/agent"
	"github.com/starla/dqnstop/agent/nonlinear/discrete/policy"
	"github.com/starla/dqnstop/environment"
	"github.com/starla/dqnstop/expreplay"
	"github.com/starla/dqnstop/network"
	ts "github.com/starla/dqnstop/timestep"
)

// DeepQ implements the deep Q-learning algorithm. This algorithm is
// conceptually similar to DQN, using the MSE loss.
//
// Transitions which end an episode by reaching a terminal state are
// stored with a discount of 0. Transitions which end an episode by
// truncation keep the discount Gamma, since the next state still has
// value.
type DeepQ struct {
	// Batch size 1 policy used for action selection. In training mode
	// actions are selected epsilon greedily, in evaluation mode greedily.
	policy *policy.EGreedyMLP

	// Network whose weights are adapted, taking in batches of inputs
	trainNet   *network.MLP
	trainNetVM G.VM
	solver     G.Solver // Adapts the weights of trainNet

	// Network that provides the update target for a batch of inputs
	targetNet   *network.MLP
	targetNetVM G.VM

	// nextStateActionValues is the input node in the graph of trainNet
	// that is given the action values of the next state. For update:
	//
	// Q(s, a) <- Q(s, a) + α * (r + γ * max[Q(s', a')] - Q(s, a)) ∇Q(s, a)
	//
	// nextStateActionValues provides Q(s', a') for all a' in s' and is
	// computed by targetNet.
	nextStateActionValues *G.Node
	rewards               *G.Node
	discounts             *G.Node
	selectedActions       *G.Node // One-hot actions taken in S
	lossVal               G.Value

	replay   expreplay.ExperienceReplayer
	schedule LinearSchedule

	numActions int
	features   int
	batchSize  int
	gamma      float64

	tau                  float64
	targetUpdateInterval int
	learningStarts       int
	trainFreq            int
	gradientSteps        int
	lossType             LossType
	maxGradNorm          float64

	prevStep *ts.TimeStep // nil outside of an episode
	steps    int          // Environment steps observed
	updates  int          // Gradient steps performed
	loss     float64
	gradNorm float64 // Before clipping

	eval   bool
	logger *slog.Logger
}

// New creates and returns a new DeepQ agent for the environment e. A
// nil logger discards all log output.
func New(e environment.Environment, c Config, seed uint64,
	logger *slog.Logger) (*DeepQ, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "new")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	numActions, err := e.ActionSpec().NumActions()
	if err != nil {
		return nil, errors.Wrap(err, "new: deepq requires discrete actions")
	}
	features := e.ObservationSpec().Shape.Len()

	activations, err := network.ActivationsByName(c.Activations)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}
	init, err := c.InitWFn.InitWFn()
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}

	// Behaviour policy for selecting actions
	behaviour, err := policy.NewEGreedyMLP(c.ExplorationInitialEps,
		features, numActions, c.PolicyLayers, activations, init, seed)
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create policy")
	}

	// Create a training network which learns the weights
	trainNet, err := behaviour.Network().CloneWithBatch(c.BatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create learning network")
	}

	// Create the target network which provides the update target
	targetNet, err := behaviour.Network().CloneWithBatch(c.BatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create target network")
	}
	targetNetVM := G.NewTapeMachine(targetNet.Graph())

	d := &DeepQ{
		policy:               behaviour,
		trainNet:             trainNet,
		targetNet:            targetNet,
		targetNetVM:          targetNetVM,
		numActions:           numActions,
		features:             features,
		batchSize:            c.BatchSize,
		gamma:                c.Gamma,
		tau:                  c.Tau,
		targetUpdateInterval: c.TargetUpdateInterval,
		learningStarts:       c.LearningStarts,
		trainFreq:            c.TrainFreq,
		gradientSteps:        c.GradientSteps,
		lossType:             c.Loss,
		maxGradNorm:          c.MaxGradNorm,
		logger:               logger,
	}

	if err := d.buildLoss(); err != nil {
		d.Close()
		return nil, errors.Wrap(err, "new")
	}

	// Compile the trainNet graph into a VM
	d.trainNetVM = G.NewTapeMachine(
		trainNet.Graph(),
		G.BindDualValues(trainNet.Learnables()...),
	)

	if d.solver, err = c.Solver.Create(); err != nil {
		d.Close()
		return nil, errors.Wrap(err, "new: could not create solver")
	}

	// The replay buffer stores actions selected as one-hot vectors
	replayConfig := expreplay.Config{
		SampleSize:        c.BatchSize,
		MinReplayCapacity: c.BatchSize,
		MaxReplayCapacity: c.BufferSize,
	}
	if d.replay, err = replayConfig.Create(features, numActions,
		seed); err != nil {
		d.Close()
		return nil, errors.Wrap(err, "new: could not create experience "+
			"replay buffer")
	}

	// Validate has already checked the schedule
	d.schedule, _ = c.schedule()

	return d, nil
}

// buildLoss adds the update target and the mean TD loss to the graph
// of trainNet and computes its gradient
func (d *DeepQ) buildLoss() error {
	g := d.trainNet.Graph()

	// Create nodes to compute the update target: r + γ * max[Q(s', a')]
	d.nextStateActionValues = G.NewMatrix(g, tensor.Float64,
		G.WithShape(d.batchSize, d.numActions), G.WithName("targetActionVals"),
		G.WithInit(G.Zeroes()))
	d.rewards = G.NewVector(g, tensor.Float64, G.WithShape(d.batchSize),
		G.WithName("reward"), G.WithInit(G.Zeroes()))
	d.discounts = G.NewVector(g, tensor.Float64, G.WithShape(d.batchSize),
		G.WithName("discount"), G.WithInit(G.Zeroes()))

	updateTarget := G.Must(G.Max(d.nextStateActionValues, 1))
	updateTarget = G.Must(G.HadamardProd(updateTarget, d.discounts))
	updateTarget = G.Must(G.Add(updateTarget, d.rewards))

	// Action selected in the previous state. This is needed to compute
	// the loss using the correct action value since the network outputs N
	// action values, one for each environmental action
	d.selectedActions = G.NewMatrix(g, tensor.Float64,
		G.WithName("actionSelected"), G.WithShape(d.batchSize, d.numActions),
		G.WithInit(G.Zeroes()))
	selectedActionsValue := G.Must(G.HadamardProd(d.trainNet.Prediction(),
		d.selectedActions))
	selectedActionsValue = G.Must(G.Sum(selectedActionsValue, 1))

	tdErr := G.Must(G.Sub(updateTarget, selectedActionsValue))
	losses, err := d.lossType.perSample(tdErr)
	if err != nil {
		return fmt.Errorf("buildLoss: %v", err)
	}
	cost := G.Must(G.Mean(losses))
	G.Read(cost, &d.lossVal)

	if _, err := G.Grad(cost, d.trainNet.Learnables()...); err != nil {
		return fmt.Errorf("buildLoss: could not compute gradient: %v", err)
	}
	return nil
}

// ObserveFirst observes and records the first episodic timestep
func (d *DeepQ) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observeFirst: timestep %d is not the first "+
			"timestep in an episode", t.Number)
	}
	t.Observation = mat.VecDenseCopyOf(t.Observation)
	d.prevStep = &t
	return nil
}

// Observe observes and records any timestep other than the first
// timestep. The transition from the previously observed timestep,
// through action, to nextStep is added to the replay buffer.
func (d *DeepQ) Observe(action *mat.VecDense, nextStep ts.TimeStep) error {
	if d.prevStep == nil {
		return fmt.Errorf("observe: ObserveFirst must be called before " +
			"Observe")
	}
	if action.Len() != 1 {
		return fmt.Errorf("observe: value-based methods cannot have "+
			"multi-dimensional actions (action dim = %d)", action.Len())
	}

	a := int(action.AtVec(0))
	if a < 0 || a >= d.numActions {
		return fmt.Errorf("observe: action %v out of range [0, %v)", a,
			d.numActions)
	}
	oneHot := mat.NewVecDense(d.numActions, nil)
	oneHot.SetVec(a, 1.0)

	nextStep.Observation = mat.VecDenseCopyOf(nextStep.Observation)
	transition := ts.NewTransition(*d.prevStep, oneHot, nextStep, nil)

	// Bootstrap with gamma unless the episode terminated. Truncated
	// episodes bootstrap as usual.
	transition.Discount = d.gamma
	if nextStep.Terminated() {
		transition.Discount = 0
	}
	if err := d.replay.Add(transition); err != nil {
		return errors.Wrap(err, "observe")
	}

	d.prevStep = &nextStep
	d.steps++
	return nil
}

// Step updates the weights of the Agent's networks. GradientSteps
// updates are performed every TrainFreq observed steps once more than
// LearningStarts steps have been observed, and the target network is
// updated every TargetUpdateInterval observed steps.
func (d *DeepQ) Step() error {
	d.policy.SetEpsilon(d.schedule.Value(d.steps))

	if d.steps > d.learningStarts && d.steps%d.trainFreq == 0 {
		trained := false
		for i := 0; i < d.gradientSteps; i++ {
			ok, err := d.train()
			if err != nil {
				return errors.Wrap(err, "step")
			}
			if !ok {
				break
			}
			trained = true
		}

		if trained {
			if err := d.policy.Network().Set(d.trainNet); err != nil {
				return errors.Wrap(err, "step: could not update policy")
			}
		}
	}

	if d.steps > 0 && d.steps%d.targetUpdateInterval == 0 {
		if err := d.targetNet.Polyak(d.trainNet, d.tau); err != nil {
			return errors.Wrap(err, "step: could not update target network")
		}
		d.logger.Debug("updated target network", "step", d.steps,
			"updates", d.updates, "loss", d.loss, "grad_norm", d.gradNorm,
			"epsilon", d.policy.Epsilon())
	}
	return nil
}

// train performs a single gradient step on a batch sampled from the
// replay buffer. If the buffer cannot yet be sampled, false is
// returned and no update is performed.
func (d *DeepQ) train() (bool, error) {
	S, A, R, discount, NextS, err := d.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	// Predict the action values in the next state NextS
	if err := d.targetNet.SetInput(NextS); err != nil {
		return false, fmt.Errorf("train: could not set target net input: %v",
			err)
	}
	if err := d.targetNetVM.RunAll(); err != nil {
		return false, fmt.Errorf("train: could not run target net: %v", err)
	}
	nextValues, err := d.targetNet.Output()
	if err != nil {
		d.targetNetVM.Reset()
		return false, fmt.Errorf("train: %v", err)
	}
	nextValues = append([]float64(nil), nextValues...)
	d.targetNetVM.Reset()

	lets := []struct {
		node  *G.Node
		data  []float64
		shape []int
	}{
		{d.nextStateActionValues, nextValues, []int{d.batchSize, d.numActions}},
		{d.selectedActions, A, []int{d.batchSize, d.numActions}},
		{d.rewards, R, []int{d.batchSize}},
		{d.discounts, discount, []int{d.batchSize}},
	}
	for _, l := range lets {
		value := tensor.New(tensor.WithBacking(l.data),
			tensor.WithShape(l.shape...))
		if err := G.Let(l.node, value); err != nil {
			return false, fmt.Errorf("train: could not set %v: %v",
				l.node.Name(), err)
		}
	}

	if err := d.trainNet.SetInput(S); err != nil {
		return false, fmt.Errorf("train: could not set trainNet input: %v",
			err)
	}

	// Run the learning step
	if err := d.trainNetVM.RunAll(); err != nil {
		return false, fmt.Errorf("train: could not run trainNet: %v", err)
	}
	defer d.trainNetVM.Reset()

	grads, err := gradients(d.trainNet.Learnables())
	if err != nil {
		return false, fmt.Errorf("train: %v", err)
	}
	d.gradNorm = clipGradNorm(grads, d.maxGradNorm)

	if err := d.solver.Step(d.trainNet.Model()); err != nil {
		return false, fmt.Errorf("train: could not step solver: %v", err)
	}
	d.updates++

	if loss, ok := d.lossVal.Data().(float64); ok {
		d.loss = loss
	}
	return true, nil
}

// SelectAction returns an action selected by the behaviour policy in
// training mode, or greedily in evaluation mode
func (d *DeepQ) SelectAction(t ts.TimeStep) (*mat.VecDense, error) {
	action, err := d.policy.SelectAction(t.Observation, d.eval)
	if err != nil {
		return nil, errors.Wrap(err, "selectAction")
	}
	return action, nil
}

// Predict returns the action taken in the observed state. If
// deterministic is true, the greedy action is returned. DeepQ is not
// recurrent, so state is ignored and the returned state is nil.
func (d *DeepQ) Predict(obs *mat.VecDense, state agent.RecurrentState,
	deterministic bool) (*mat.VecDense, agent.RecurrentState, error) {
	action, err := d.policy.SelectAction(obs, deterministic)
	if err != nil {
		return nil, nil, errors.Wrap(err, "predict")
	}
	return action, nil, nil
}

// ActionValues returns the approximated value of each action in the
// observed state
func (d *DeepQ) ActionValues(obs *mat.VecDense) ([]float64, error) {
	return d.policy.ActionValues(obs)
}

// Steps returns the number of environment steps the agent has trained
// on
func (d *DeepQ) Steps() int {
	return d.steps
}

// Updates returns the number of gradient steps the agent has performed
func (d *DeepQ) Updates() int {
	return d.updates
}

// Loss returns the loss of the most recent gradient step
func (d *DeepQ) Loss() float64 {
	return d.loss
}

// GradNorm returns the global L2 norm of the gradient of the most
// recent gradient step, before clipping
func (d *DeepQ) GradNorm() float64 {
	return d.gradNorm
}

// Epsilon returns the current exploration rate of the behaviour policy
func (d *DeepQ) Epsilon() float64 {
	return d.policy.Epsilon()
}

// Eval sets the agent into evaluation mode
func (d *DeepQ) Eval() {
	d.eval = true
}

// Train sets the agent into training mode
func (d *DeepQ) Train() {
	d.eval = false
}

// IsEval returns whether the agent is in evaluation mode
func (d *DeepQ) IsEval() bool {
	return d.eval
}

// EndEpisode performs cleanup at the end of an episode
func (d *DeepQ) EndEpisode() {
	d.prevStep = nil
}

// savedModel is the serialized form of the Q-network
type savedModel struct {
	Features    int
	NumActions  int
	HiddenSizes []int
	Activations []string
	Weights     [][]float64
	Steps       int
}

// Save writes the weights of the agent's Q-network to w
func (d *DeepQ) Save(w io.Writer) error {
	net := d.trainNet
	activations := make([]string, 0, len(net.Activations()))
	for _, a := range net.Activations() {
		activations = append(activations, a.String())
	}

	model := savedModel{
		Features:    d.features,
		NumActions:  d.numActions,
		HiddenSizes: net.HiddenSizes(),
		Activations: activations,
		Weights:     net.Weights(),
		Steps:       d.steps,
	}
	if err := gob.NewEncoder(w).Encode(model); err != nil {
		return errors.Wrap(err, "save: could not encode model")
	}
	return nil
}

// Load reads Q-network weights written by Save from r and sets the
// weights of each of the agent's networks. The saved network must have
// the same architecture as the agent's.
func (d *DeepQ) Load(r io.Reader) error {
	var model savedModel
	if err := gob.NewDecoder(r).Decode(&model); err != nil {
		return errors.Wrap(err, "load: could not decode model")
	}

	if model.Features != d.features || model.NumActions != d.numActions {
		return fmt.Errorf("load: incompatible model \n\twant(%v features, "+
			"%v actions) \n\thave(%v features, %v actions)", d.features,
			d.numActions, model.Features, model.NumActions)
	}

	hidden := d.trainNet.HiddenSizes()
	if len(hidden) != len(model.HiddenSizes) {
		return fmt.Errorf("load: incompatible hidden layers \n\twant(%v) "+
			"\n\thave(%v)", hidden, model.HiddenSizes)
	}
	for i := range hidden {
		if hidden[i] != model.HiddenSizes[i] {
			return fmt.Errorf("load: incompatible hidden layers \n\twant(%v) "+
				"\n\thave(%v)", hidden, model.HiddenSizes)
		}
	}

	for _, net := range []*network.MLP{d.trainNet, d.targetNet,
		d.policy.Network()} {
		if err := net.SetWeights(model.Weights); err != nil {
			return errors.Wrap(err, "load")
		}
	}
	d.steps = model.Steps
	d.policy.SetEpsilon(d.schedule.Value(d.steps))
	return nil
}

// Close releases the resources held by the agent's VMs
func (d *DeepQ) Close() error {
	var err error
	for _, vm := range []G.VM{d.trainNetVM, d.targetNetVM} {
		if vm == nil {
			continue
		}
		if closeErr := vm.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	if closeErr := d.policy.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
