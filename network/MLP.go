// Package network implements feed forward neural networks on Gorgonia
// computational graphs
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MLP implements a multi-layered perceptron with a number of linear
// output nodes, one for each value that should be predicted. The
// input of the MLP is a matrix of shape (batch, features) and the
// output is a matrix of shape (batch, outputs).
type MLP struct {
	g       *G.ExprGraph
	layers  []*fcLayer
	input   *G.Node
	outputs int
	inputs  int
	batch   int

	hiddenSizes []int
	activations []*Activation

	learnables G.Nodes

	prediction *G.Node
	predVal    G.Value
}

// NewMLP creates and returns a new multi-layered perceptron that has
// outputs output nodes. The graph parameter g is populated with the
// MLP.
//
// The MLP has len(hiddenSizes) + 1 layers. For index i, hiddenSizes[i]
// is the number of nodes in hidden layer i and activations[i] is the
// activation function of hidden layer i. A final linear layer is
// always added so that the network predicts outputs values. Each layer
// has a bias unit. The parameter init determines the weight
// initialization scheme.
func NewMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, activations []*Activation,
	init G.InitWFn) (*MLP, error) {
	if len(hiddenSizes) != len(activations) {
		msg := "newMLP: invalid number of activations\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if features <= 0 || batch <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("newMLP: features, batch, and outputs must "+
			"be positive \n\thave(%v, %v, %v)", features, batch, outputs)
	}
	for _, size := range hiddenSizes {
		if size <= 0 {
			return nil, fmt.Errorf("newMLP: hidden layer sizes must be "+
				"positive \n\thave(%v)", hiddenSizes)
		}
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	layers := make([]*fcLayer, 0, len(hiddenSizes)+1)
	in := features
	for i, size := range hiddenSizes {
		layers = append(layers, newfcLayer(g, in, size, activations[i], init,
			i))
		in = size
	}
	layers = append(layers, newfcLayer(g, in, outputs, Identity(), init,
		len(hiddenSizes)))

	net := &MLP{
		g:           g,
		layers:      layers,
		input:       input,
		outputs:     outputs,
		inputs:      features,
		batch:       batch,
		hiddenSizes: append([]int(nil), hiddenSizes...),
		activations: append([]*Activation(nil), activations...),
	}

	if err := net.fwd(); err != nil {
		return nil, fmt.Errorf("newMLP: could not compute forward pass: %v",
			err)
	}
	return net, nil
}

// fwd adds the forward pass of the MLP on its input node to the graph
func (m *MLP) fwd() error {
	pred := m.input
	var err error
	for i, l := range m.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return fmt.Errorf(msg, i, err)
		}
	}

	m.prediction = pred
	G.Read(m.prediction, &m.predVal)
	return nil
}

// Graph returns the computational graph of the MLP
func (m *MLP) Graph() *G.ExprGraph {
	return m.g
}

// BatchSize returns the batch size of inputs to the MLP
func (m *MLP) BatchSize() int {
	return m.batch
}

// Features returns the number of features in a single input vector
func (m *MLP) Features() int {
	return m.inputs
}

// Outputs returns the number of outputs per input vector
func (m *MLP) Outputs() int {
	return m.outputs
}

// HiddenSizes returns the sizes of the hidden layers of the MLP
func (m *MLP) HiddenSizes() []int {
	return append([]int(nil), m.hiddenSizes...)
}

// Activations returns the activations of the hidden layers of the MLP
func (m *MLP) Activations() []*Activation {
	return append([]*Activation(nil), m.activations...)
}

// SetInput sets the value of the input node before running the forward
// pass. The input is copied and must have BatchSize() * Features()
// elements in row-major order.
func (m *MLP) SetInput(input []float64) error {
	if len(input) != m.inputs*m.batch {
		return fmt.Errorf("setInput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", m.inputs*m.batch, len(input))
	}

	backing := make([]float64, len(input))
	copy(backing, input)
	inputTensor := tensor.New(
		tensor.WithBacking(backing),
		tensor.WithShape(m.input.Shape()...),
	)
	return G.Let(m.input, inputTensor)
}

// Output returns the output of the MLP computed by the most recent run
// of a VM on the MLP's graph, in row-major order with shape
// (BatchSize(), Outputs()).
func (m *MLP) Output() ([]float64, error) {
	if m.predVal == nil {
		return nil, fmt.Errorf("output: network has not been run")
	}
	data, ok := m.predVal.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("output: unexpected output type %T",
			m.predVal.Data())
	}
	return data, nil
}

// Prediction returns the node of the computational graph which stores
// the output of the MLP
func (m *MLP) Prediction() *G.Node {
	return m.prediction
}

// Learnables returns the learnable nodes of the MLP, the weights then
// bias of each layer in order
func (m *MLP) Learnables() G.Nodes {
	if m.learnables == nil {
		learnables := make([]*G.Node, 0, 2*len(m.layers))
		for _, l := range m.layers {
			learnables = append(learnables, l.Weights(), l.Bias())
		}
		m.learnables = G.Nodes(learnables)
	}
	return m.learnables
}

// Model returns the learnable nodes with their gradients
func (m *MLP) Model() []G.ValueGrad {
	return G.NodesToValueGrads(m.Learnables())
}

// Weights returns a copy of the values of each learnable node of the
// MLP, in the order of Learnables()
func (m *MLP) Weights() [][]float64 {
	learnables := m.Learnables()
	weights := make([][]float64, len(learnables))
	for i, node := range learnables {
		weights[i] = append([]float64(nil), backing(node)...)
	}
	return weights
}

// SetWeights sets the values of each learnable node of the MLP. The
// weights are copied into the existing values so that any values bound
// by a VM remain valid.
func (m *MLP) SetWeights(weights [][]float64) error {
	learnables := m.Learnables()
	if len(weights) != len(learnables) {
		return fmt.Errorf("setWeights: invalid number of weight tensors"+
			"\n\twant(%v) \n\thave(%v)", len(learnables), len(weights))
	}
	for i, node := range learnables {
		dest := backing(node)
		if len(dest) != len(weights[i]) {
			return fmt.Errorf("setWeights: invalid size of weight tensor "+
				"%v \n\twant(%v) \n\thave(%v)", i, len(dest), len(weights[i]))
		}
		copy(dest, weights[i])
	}
	return nil
}

// Set sets the weights of the MLP to be equal to the weights of
// source. Both MLPs must have the same architecture, but may have
// different batch sizes.
func (m *MLP) Set(source *MLP) error {
	return m.Polyak(source, 1.0)
}

// Polyak sets the weights of the MLP to be a polyak average between
// its existing weights and the weights of source:
//
//	w ← τ * w_source + (1 - τ) * w
func (m *MLP) Polyak(source *MLP, tau float64) error {
	if tau < 0 || tau > 1 {
		return fmt.Errorf("polyak: tau must be in [0, 1] \n\thave(%v)", tau)
	}

	sourceNodes := source.Learnables()
	nodes := m.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("polyak: incompatible architectures")
	}

	for i := range nodes {
		dest := backing(nodes[i])
		src := backing(sourceNodes[i])
		if len(dest) != len(src) {
			return fmt.Errorf("polyak: incompatible shapes for learnable "+
				"%v \n\twant(%v) \n\thave(%v)", i, nodes[i].Shape(),
				sourceNodes[i].Shape())
		}

		if tau == 1.0 {
			copy(dest, src)
			continue
		}
		for j := range dest {
			dest[j] = tau*src[j] + (1-tau)*dest[j]
		}
	}
	return nil
}

// CloneWithBatch clones the MLP to a new computational graph with a new
// input batch size. The weights of the clone are equal to the weights
// of the MLP.
func (m *MLP) CloneWithBatch(batch int) (*MLP, error) {
	clone, err := NewMLP(m.inputs, batch, m.outputs, G.NewGraph(),
		m.hiddenSizes, m.activations, G.Zeroes())
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	if err := clone.Set(m); err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	return clone, nil
}

// backing returns the backing data of a learnable node
func backing(node *G.Node) []float64 {
	return node.Value().Data().([]float64)
}
