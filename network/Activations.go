package network

import (
	"fmt"
	"sort"

	G "gorgonia.org/gorgonia"
)

// Activation is an elementwise activation function applied to the
// output of a layer. Activations are referred to by name in
// configuration files.
type Activation struct {
	name string
	f    func(x *G.Node) (*G.Node, error)
}

func identityFn(x *G.Node) (*G.Node, error) { return x, nil }

// activations maps configuration names to activation functions
var activations = map[string]func(x *G.Node) (*G.Node, error){
	"relu":     G.Rectify,
	"tanh":     G.Tanh,
	"sigmoid":  G.Sigmoid,
	"identity": identityFn,
}

// fwd applies the Activation to x
func (a *Activation) fwd(x *G.Node) (*G.Node, error) {
	return a.f(x)
}

func (a *Activation) String() string {
	return a.name
}

// IsIdentity returns whether the Activation leaves its input unchanged
func (a *Activation) IsIdentity() bool {
	return a.name == "identity"
}

// ActivationByName returns the Activation called name
func ActivationByName(name string) (*Activation, error) {
	f, ok := activations[name]
	if !ok {
		return nil, fmt.Errorf("activationByName: no such activation %q "+
			"\n\twant one of(%v)", name, ActivationNames())
	}
	return &Activation{name: name, f: f}, nil
}

// ActivationsByName converts each name in names to its Activation
func ActivationsByName(names []string) ([]*Activation, error) {
	acts := make([]*Activation, len(names))
	for i, name := range names {
		a, err := ActivationByName(name)
		if err != nil {
			return nil, err
		}
		acts[i] = a
	}
	return acts, nil
}

// ActivationNames returns the sorted names of all Activations
func ActivationNames() []string {
	names := make([]string, 0, len(activations))
	for name := range activations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReLU returns the rectified linear Activation
func ReLU() *Activation { return &Activation{"relu", G.Rectify} }

// Identity returns the identity Activation
func Identity() *Activation { return &Activation{"identity", identityFn} }
