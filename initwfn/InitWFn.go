// Package initwfn implements functionality to configure Gorgonia
// InitWFn so that they can be described in configuration files.
package initwfn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of InitWFn that are available.
type Type string

// Available InitWFn types
const (
	GlorotU Type = "GlorotU"
	GlorotN Type = "GlorotN"
	HeU     Type = "HeU"
	HeN     Type = "HeN"
	Zeroes  Type = "Zeroes"
	Ones    Type = "Ones"
)

// Config describes a weight initialization scheme. Gain is ignored by
// the Zeroes and Ones schemes.
type Config struct {
	Type Type    `mapstructure:"type"`
	Gain float64 `mapstructure:"gain"`
}

// InitWFn returns the Gorgonia InitWFn described by the Config
func (c Config) InitWFn() (G.InitWFn, error) {
	switch c.Type {
	case GlorotU:
		return G.GlorotU(c.Gain), nil
	case GlorotN:
		return G.GlorotN(c.Gain), nil
	case HeU:
		return G.HeU(c.Gain), nil
	case HeN:
		return G.HeN(c.Gain), nil
	case Zeroes:
		return G.Zeroes(), nil
	case Ones:
		return G.Ones(), nil
	}
	return nil, fmt.Errorf("initWFn: no such InitWFn type %v", c.Type)
}

// String implements the fmt.Stringer interface
func (c Config) String() string {
	return fmt.Sprintf("{%v InitWFn: gain=%v}", c.Type, c.Gain)
}
