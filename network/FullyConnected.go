package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// newfcLayer adds the weights and bias of a fully connected layer of
// shape (in, out) to the graph g. The bias is a row vector which is
// broadcast along the batch dimension.
func newfcLayer(g *G.ExprGraph, in, out int, act *Activation,
	init G.InitWFn, index int) *fcLayer {
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(in, out),
		G.WithName(fmt.Sprintf("L%dW", index)),
		G.WithInit(init),
	)

	bias := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, out),
		G.WithName(fmt.Sprintf("L%dB", index)),
		G.WithInit(G.Zeroes()),
	)

	return &fcLayer{weights: weights, bias: bias, act: act}
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x, err := G.Mul(x, f.weights)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not multiply weights: %v", err)
	}

	// Broadcast the bias weights to all samples along the batch
	// dimension
	x, err = G.BroadcastAdd(x, f.bias, nil, []byte{0})
	if err != nil {
		return nil, fmt.Errorf("fwd: could not add bias: %v", err)
	}

	if f.act == nil || f.act.IsIdentity() {
		return x, nil
	}
	return f.act.fwd(x)
}

// Weights returns the weight node of the layer
func (f *fcLayer) Weights() *G.Node {
	return f.weights
}

// Bias returns the bias node of the layer
func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

// Activation returns the activation function applied to the layer's
// output
func (f *fcLayer) Activation() *Activation {
	return f.act
}
