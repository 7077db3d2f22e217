package inference

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// OutputGenerator produces the two output tensors of a finished pass. A
// non-nil error models a backend whose results cannot be read back.
type OutputGenerator func(input *tensor.Dense) (detections, prototypes *tensor.Dense, err error)

// SimDeviceConfig holds the shape of the simulated backend.
type SimDeviceConfig struct {
	// TotalLayers is the depth of the simulated layer list.
	TotalLayers int `json:"total_layers" yaml:"total_layers"`
	// TransferTicks is how many polls a readback stays pending before the
	// tensor materializes.
	TransferTicks int `json:"transfer_ticks" yaml:"transfer_ticks"`
}

// DefaultSimDeviceConfig approximates a mid-size segmentation network.
func DefaultSimDeviceConfig() SimDeviceConfig {
	return SimDeviceConfig{TotalLayers: 150, TransferTicks: 1}
}

// Clamp coerces invalid values into their valid ranges.
func (c *SimDeviceConfig) Clamp() {
	if c.TotalLayers < 1 {
		c.TotalLayers = 1
	}
	if c.TransferTicks < 1 {
		c.TransferTicks = 1
	}
}

// SimDevice is an in-process Device for demos and tests: a fixed-depth
// layer list stepped cooperatively, with outputs produced by a generator
// callback once the final layer completes. Readback latency is simulated
// by keeping polls pending for a configurable number of calls.
type SimDevice struct {
	cfg SimDeviceConfig
	gen OutputGenerator

	active   bool
	input    *tensor.Dense
	executed int

	produced  bool
	genErr    error
	outputs   [2]*tensor.Dense
	requested [2]bool
	polls     [2]int
}

// NewSimDevice builds a simulated backend around an output generator.
func NewSimDevice(cfg SimDeviceConfig, gen OutputGenerator) *SimDevice {
	cfg.Clamp()
	return &SimDevice{cfg: cfg, gen: gen}
}

// Begin implements Device.
func (d *SimDevice) Begin(input *tensor.Dense) error {
	if d.active {
		return errors.New("sim device: pass already in flight")
	}
	if input == nil {
		return errors.New("sim device: nil input tensor")
	}
	d.active = true
	d.input = input
	d.executed = 0
	return nil
}

// Step implements Device. The generator runs once, on the step that
// executes the final layer.
func (d *SimDevice) Step(layers int) (bool, error) {
	if !d.active {
		return false, errors.New("sim device: no pass in flight")
	}
	if layers < 1 {
		layers = 1
	}
	d.executed += layers
	if d.executed < d.cfg.TotalLayers {
		return false, nil
	}
	if !d.produced {
		if d.gen == nil {
			d.genErr = errors.New("sim device: no output generator")
		} else {
			d.outputs[OutputDetections], d.outputs[OutputPrototypes], d.genErr = d.gen(d.input)
		}
		d.produced = true
	}
	return true, nil
}

// RequestOutput implements Device.
func (d *SimDevice) RequestOutput(index int) error {
	if index != OutputDetections && index != OutputPrototypes {
		return errors.Errorf("sim device: no output at index %d", index)
	}
	if !d.produced {
		return errors.New("sim device: pass has not finished")
	}
	d.requested[index] = true
	d.polls[index] = 0
	return nil
}

// PollOutput implements Device.
func (d *SimDevice) PollOutput(index int) (*tensor.Dense, bool, error) {
	if index != OutputDetections && index != OutputPrototypes {
		return nil, false, errors.Errorf("sim device: no output at index %d", index)
	}
	if !d.requested[index] {
		return nil, false, errors.New("sim device: output was not requested")
	}
	if d.genErr != nil {
		return nil, false, errors.Wrap(d.genErr, "sim device: readback")
	}
	d.polls[index]++
	if d.polls[index] < d.cfg.TransferTicks {
		return nil, false, nil
	}
	out := d.outputs[index]
	if out == nil {
		return nil, false, errors.Errorf("sim device: generator produced no tensor for index %d", index)
	}
	return out, true, nil
}

// Release implements Device.
func (d *SimDevice) Release() {
	d.active = false
	d.input = nil
	d.executed = 0
	d.produced = false
	d.genErr = nil
	d.outputs = [2]*tensor.Dense{}
	d.requested = [2]bool{}
	d.polls = [2]int{}
}
