package checkpointer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// nStep implements checkpointing every N steps
type nStep struct {
	interval int
	object   Saver
	name     Namer
}

// NewNStep returns a checkpointer that saves object every n training
// steps to the file chosen by name. Checkpoints are first written to a
// temporary file in the same directory and then renamed, so an
// interrupted save never leaves a truncated checkpoint behind.
func NewNStep(n int, object Saver, name Namer) (Checkpointer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("newNStep: checkpoint interval must be "+
			"positive \n\thave(%v)", n)
	}
	if object == nil || name == nil {
		return nil, fmt.Errorf("newNStep: object and namer must be non-nil")
	}
	return &nStep{
		interval: n,
		object:   object,
		name:     name,
	}, nil
}

// Checkpoint saves the Checkpointer's tracked object if step is a
// positive multiple of the checkpoint interval
func (n *nStep) Checkpoint(step int) error {
	if step <= 0 || step%n.interval != 0 {
		return nil
	}

	filename := n.name(step)
	file, err := os.CreateTemp(filepath.Dir(filename),
		filepath.Base(filename)+".tmp*")
	if err != nil {
		return errors.Wrapf(err, "checkpoint: step %v", step)
	}

	if err := n.object.Save(file); err != nil {
		file.Close()
		os.Remove(file.Name())
		return errors.Wrapf(err, "checkpoint: could not save %v", filename)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return errors.Wrapf(err, "checkpoint: step %v", step)
	}
	return errors.Wrapf(os.Rename(file.Name(), filename),
		"checkpoint: step %v", step)
}
