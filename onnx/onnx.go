// Package onnx - adapts an ONNX Runtime session to the scheduler's device
// contract. Begin launches the session run on its own goroutine so ticks
// stay non-blocking; outputs become pollable once the run finishes.
package onnx

import (
	"os"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/maskar-ai/go-maskar/inference"
	"github.com/maskar-ai/go-maskar/logging"
)

// Device drives a yolov8-seg ONNX session through the cooperative device
// contract. The input and output tensors are allocated once and reused
// across passes; polled outputs are copied out of the session buffers so
// they stay valid after Release.
//
// Like the scheduler it serves, a Device is meant for a single goroutine;
// only the session run itself executes concurrently.
type Device struct {
	cfg Config
	log logging.Logger

	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	outputs [2]*ort.Tensor[float32]

	active    bool
	done      chan struct{}
	runErr    error
	requested [2]bool
	converted [2]*tensor.Dense
}

// NewDevice loads the model and prepares a reusable session.
//
// Arguments:
//   - cfg: Session options; invalid values are clamped.
//   - log: Structured logger; nil discards.
//
// Returns:
//   - *Device: The ready device.
//   - error: An error if the model or runtime library is missing, or the
//     session cannot be created.
func NewDevice(cfg Config, log logging.Logger) (*Device, error) {
	cfg.Clamp()
	if log == nil {
		log = logging.NewNopLogger()
	}

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "onnx device: model %s", cfg.ModelPath)
	}
	if cfg.LibraryPath == "" {
		return nil, errors.New("onnx device: no onnxruntime library for this platform, set LibraryPath")
	}
	if _, err := os.Stat(cfg.LibraryPath); err != nil {
		return nil, errors.Wrapf(err, "onnx device: runtime library %s", cfg.LibraryPath)
	}

	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "onnx device: initializing onnxruntime")
		}
	}

	s := int64(cfg.Model.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, s, s))
	if err != nil {
		return nil, errors.Wrap(err, "onnx device: allocating input tensor")
	}

	det, err := ort.NewEmptyTensor[float32](
		ort.NewShape(1, int64(cfg.Model.Channels()), int64(cfg.Model.NumAnchors)))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "onnx device: allocating detection tensor")
	}

	m := int64(cfg.Model.PrototypeSize)
	protos, err := ort.NewEmptyTensor[float32](
		ort.NewShape(1, int64(cfg.Model.NumMaskCoeffs), m, m))
	if err != nil {
		input.Destroy()
		det.Destroy()
		return nil, errors.Wrap(err, "onnx device: allocating prototype tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		det.Destroy()
		protos.Destroy()
		return nil, errors.Wrap(err, "onnx device: creating session options")
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(cfg.IntraOpThreads)
	options.SetInterOpNumThreads(cfg.InterOpThreads)
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	if err := applyProvider(options, cfg); err != nil {
		input.Destroy()
		det.Destroy()
		protos.Destroy()
		return nil, errors.Wrap(err, "onnx device: configuring execution provider")
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.DetectionsName, cfg.PrototypesName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{det, protos},
		options,
	)
	if err != nil {
		input.Destroy()
		det.Destroy()
		protos.Destroy()
		return nil, errors.Wrap(err, "onnx device: creating session")
	}

	log.Infow("onnx session ready",
		"model", cfg.ModelPath,
		"provider", cfg.Provider,
		"input", cfg.InputName,
		"outputs", []string{cfg.DetectionsName, cfg.PrototypesName})

	return &Device{
		cfg:     cfg,
		log:     log,
		session: session,
		input:   input,
		outputs: [2]*ort.Tensor[float32]{det, protos},
	}, nil
}

// Begin implements inference.Device. The input is copied into the
// session's preallocated buffer and the run launched on its own goroutine.
func (d *Device) Begin(input *tensor.Dense) error {
	if d.active {
		return errors.New("onnx device: pass already in flight")
	}
	if input == nil {
		return errors.New("onnx device: nil input tensor")
	}
	data, ok := input.Data().([]float32)
	if !ok {
		return errors.New("onnx device: input backing must be float32")
	}
	want := 3 * d.cfg.Model.InputSize * d.cfg.Model.InputSize
	if len(data) != want {
		return errors.Errorf("onnx device: input holds %d floats, the model takes %d", len(data), want)
	}
	copy(d.input.GetData(), data)

	d.active = true
	d.runErr = nil
	ch := make(chan struct{})
	d.done = ch
	go func() {
		// runErr is published by the close; readers only look after the
		// channel fires.
		d.runErr = d.session.Run()
		close(ch)
	}()
	return nil
}

// Step implements inference.Device. The runtime executes the whole graph
// in a single run, so the per-tick layer budget is advisory: Step reports
// not-done until the run goroutine finishes.
func (d *Device) Step(layers int) (bool, error) {
	if !d.active {
		return false, errors.New("onnx device: no pass in flight")
	}
	select {
	case <-d.done:
		return true, nil
	default:
		return false, nil
	}
}

// RequestOutput implements inference.Device.
func (d *Device) RequestOutput(index int) error {
	if index != inference.OutputDetections && index != inference.OutputPrototypes {
		return errors.Errorf("onnx device: no output at index %d", index)
	}
	if d.done == nil {
		return errors.New("onnx device: no pass in flight")
	}
	select {
	case <-d.done:
	default:
		return errors.New("onnx device: pass has not finished")
	}
	d.requested[index] = true
	return nil
}

// PollOutput implements inference.Device. A failed run surfaces here so
// the scheduler sees it at readback, matching a backend whose results
// never arrive.
func (d *Device) PollOutput(index int) (*tensor.Dense, bool, error) {
	if index != inference.OutputDetections && index != inference.OutputPrototypes {
		return nil, false, errors.Errorf("onnx device: no output at index %d", index)
	}
	if !d.requested[index] {
		return nil, false, errors.New("onnx device: output was not requested")
	}
	if d.runErr != nil {
		return nil, false, errors.Wrap(d.runErr, "onnx device: readback")
	}
	if d.converted[index] == nil {
		d.converted[index] = d.copyOutput(index)
	}
	return d.converted[index], true, nil
}

// Release implements inference.Device. The session buffers persist for the
// next pass; Release must not be called while a pass is in flight.
func (d *Device) Release() {
	d.active = false
	d.done = nil
	d.runErr = nil
	d.requested = [2]bool{}
	d.converted = [2]*tensor.Dense{}
}

// Close destroys the native session and its tensors. The device must not
// be used afterwards.
func (d *Device) Close() error {
	if d.input != nil {
		d.input.Destroy()
		d.input = nil
	}
	for i, out := range d.outputs {
		if out != nil {
			out.Destroy()
			d.outputs[i] = nil
		}
	}
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			d.session = nil
			return errors.Wrap(err, "onnx device: destroying session")
		}
		d.session = nil
	}
	return nil
}

// copyOutput snapshots one session output into a fresh tensor, detached
// from the buffer the next run will overwrite.
func (d *Device) copyOutput(index int) *tensor.Dense {
	src := d.outputs[index].GetData()
	data := make([]float32, len(src))
	copy(data, src)

	if index == inference.OutputDetections {
		return tensor.New(
			tensor.WithShape(1, d.cfg.Model.Channels(), d.cfg.Model.NumAnchors),
			tensor.WithBacking(data))
	}
	m := d.cfg.Model.PrototypeSize
	return tensor.New(
		tensor.WithShape(1, d.cfg.Model.NumMaskCoeffs, m, m),
		tensor.WithBacking(data))
}
