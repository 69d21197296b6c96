package checkpointer

import "fmt"

// Namer returns the name of the file that the checkpoint taken at a
// training step is saved to
type Namer func(step int) string

// StepSuffix returns a Namer which appends the training step to
// filename, e.g. model-82000.bin
func StepSuffix(filename, extension string) Namer {
	return func(step int) string {
		return fmt.Sprintf("%v-%v%v", filename, step, extension)
	}
}

// Enumerate returns a Namer which ignores the training step and
// instead appends a counter to filename. The first checkpoint gets the
// suffix start+1.
func Enumerate(start int, filename, extension string) Namer {
	i := start
	return func(int) string {
		i++
		return fmt.Sprintf("%v%v%v", filename, i, extension)
	}
}

// Latest returns a Namer which always names the same file, so that only
// the most recent checkpoint is kept
func Latest(filename string) Namer {
	return func(int) string { return filename }
}

// Naming names a Namer in configuration files
type Naming string

const (
	StepNaming      Naming = "step"
	EnumerateNaming Naming = "enumerate"
	LatestNaming    Naming = "latest"
)

// Validate returns an error if n names no Namer
func (n Naming) Validate() error {
	switch n {
	case StepNaming, EnumerateNaming, LatestNaming:
		return nil
	}
	return fmt.Errorf("validate: no such checkpoint naming %q "+
		"\n\twant(%v|%v|%v)", n, StepNaming, EnumerateNaming, LatestNaming)
}

// Namer returns the Namer called n for checkpoints saved under filename
// with the given extension. Latest checkpoints are saved to
// filename+extension.
func (n Naming) Namer(filename, extension string) (Namer, error) {
	switch n {
	case StepNaming:
		return StepSuffix(filename, extension), nil
	case EnumerateNaming:
		return Enumerate(0, filename, extension), nil
	case LatestNaming:
		return Latest(filename + extension), nil
	}
	return nil, n.Validate()
}
