// Package checkpointer implements functionality for periodically
// saving models during an experiment
package checkpointer

import "io"

// Saver is an object that can be saved/serialized
type Saver interface {
	Save(w io.Writer) error
}

// Checkpointer checkpoints/saves Savers based on the number of steps
// taken in an experiment
type Checkpointer interface {
	Checkpoint(step int) error
}
