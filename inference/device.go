// Package inference - Cooperative scheduling of multi-frame inference cycles
// over an opaque compute backend.
package inference

import (
	"gorgonia.org/tensor"

	"github.com/maskar-ai/go-maskar/spatial"
)

// Output indices a segmentation backend serves after a pass completes.
const (
	// OutputDetections is the detection head: shape [1, 4+C+K, N] where C is
	// the class count, K the mask coefficient count and N the anchor count.
	OutputDetections = 0
	// OutputPrototypes is the prototype head: shape [1, K, M, M] where M is
	// the prototype grid side.
	OutputPrototypes = 1
)

// Device is the contract between the scheduler and a compute backend. A
// backend runs one inference pass at a time and is driven cooperatively:
// the caller hands it slices of work via Step and retrieves outputs through
// asynchronous readback requests so no call ever blocks a frame.
type Device interface {
	// Begin uploads the input tensor and readies a new pass. It fails if a
	// pass is already in flight or the input is unusable.
	Begin(input *tensor.Dense) error

	// Step executes up to the given number of layers of the pending pass.
	// It returns true once the final layer has run. Calling Step after
	// completion is harmless and keeps reporting done.
	Step(layers int) (done bool, err error)

	// RequestOutput starts an asynchronous device-to-host transfer of the
	// output at the given index. Valid only after Step has reported done.
	RequestOutput(index int) error

	// PollOutput checks a previously requested transfer without blocking.
	// It returns (nil, false, nil) while the transfer is still pending and
	// a non-nil error only when no data will ever arrive for the request.
	PollOutput(index int) (*tensor.Dense, bool, error)

	// Release frees per-pass resources and returns the device to its ready
	// state. Tensors handed out by PollOutput stay valid after Release.
	Release()
}

// DispatchFunc receives the materialized outputs of a completed cycle along
// with the pose captured when the cycle was scheduled.
type DispatchFunc func(detections, prototypes *tensor.Dense, capture spatial.Pose)
