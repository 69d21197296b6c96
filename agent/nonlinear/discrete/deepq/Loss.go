package deepq

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

// LossType names the elementwise loss applied to the TD errors
type LossType string

const (
	// Huber is the smooth L1 loss with threshold 1: quadratic for
	// TD errors of magnitude below 1 and linear above
	Huber LossType = "huber"

	// MSE is the squared TD error
	MSE LossType = "mse"
)

// perSample returns the node computing the elementwise loss of the TD
// errors tdErr
func (l LossType) perSample(tdErr *G.Node) (*G.Node, error) {
	switch l {
	case Huber:
		return huber(tdErr)
	case MSE:
		return G.Square(tdErr)
	}
	return nil, fmt.Errorf("perSample: no such loss %q", l)
}

// huber computes 0.5q² + (|x| - q) elementwise, where q = min(|x|, 1).
// The minimum is written as |x| - relu(|x| - 1) so that every op has a
// gradient.
func huber(x *G.Node) (*G.Node, error) {
	one := G.NewConstant(1.0)
	half := G.NewConstant(0.5)

	abs, err := G.Abs(x)
	if err != nil {
		return nil, err
	}
	excess, err := G.Sub(abs, one)
	if err != nil {
		return nil, err
	}
	if excess, err = G.Rectify(excess); err != nil {
		return nil, err
	}
	q, err := G.Sub(abs, excess)
	if err != nil {
		return nil, err
	}
	quadratic, err := G.HadamardProd(q, q)
	if err != nil {
		return nil, err
	}
	if quadratic, err = G.Mul(quadratic, half); err != nil {
		return nil, err
	}
	return G.Add(quadratic, excess)
}

// clipGradNorm scales grads in place so that their global L2 norm is
// at most maxNorm, and returns the norm before clipping. A maxNorm of 0
// disables clipping.
func clipGradNorm(grads [][]float64, maxNorm float64) float64 {
	var sumSq float64
	for _, grad := range grads {
		for _, v := range grad {
			sumSq += v * v
		}
	}
	norm := math.Sqrt(sumSq)

	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}
	scale := maxNorm / (norm + 1e-6)
	for _, grad := range grads {
		for i := range grad {
			grad[i] *= scale
		}
	}
	return norm
}

// gradients returns the backing data of the gradient of each node
func gradients(nodes G.Nodes) ([][]float64, error) {
	grads := make([][]float64, len(nodes))
	for i, n := range nodes {
		grad, err := n.Grad()
		if err != nil {
			return nil, fmt.Errorf("gradients: node %v: %v", n.Name(), err)
		}
		data, ok := grad.Data().([]float64)
		if !ok {
			return nil, fmt.Errorf("gradients: node %v: gradient is not "+
				"float64", n.Name())
		}
		grads[i] = data
	}
	return grads, nil
}
