// Package tracker implements Trackers, which track and save data in an
// experiment
package tracker

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	ts "github.com/starla/dqnstop/timestep"
)

// Interface Tracker keeps track of experiment data and saves the data
// after the experiment has finished
type Tracker interface {
	Track(t ts.TimeStep)
	Data() []float64
	Save() error
}

// save gob encodes data to filename. An empty filename means the data
// is only kept in memory, and nothing is written.
func save(filename string, data []float64) error {
	if filename == "" {
		return nil
	}

	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "save: could not open save file")
	}

	if err = gob.NewEncoder(file).Encode(data); err != nil {
		file.Close()
		return errors.Wrap(err, "save: could not encode data")
	}
	return file.Close()
}

// LoadData loads and returns the data saved by a Tracker
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "loadData: could not open data file")
	}
	defer file.Close()

	var data []float64
	if err = gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, errors.Wrap(err, "loadData: could not decode data")
	}
	return data, nil
}

// Summary returns the mean and standard deviation of data. If data is
// empty, both are 0.
func Summary(data []float64) (mean, std float64) {
	switch len(data) {
	case 0:
		return 0, 0
	case 1:
		return data[0], 0
	}
	return stat.MeanStdDev(data, nil)
}
