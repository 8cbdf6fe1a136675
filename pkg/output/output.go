package output

import (
	"errors"

	"github.com/ericogr/htu21d-logger/pkg/sensor"
)

type Output interface {
	Publish([]sensor.Reading) error
	Close() error
}

// Multi fans readings out to every output. A failing output does not keep
// the others from receiving the batch.
type Multi []Output

func (m Multi) Publish(readings []sensor.Reading) error {
	var errs []error
	for _, o := range m {
		if err := o.Publish(readings); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, o := range m {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
