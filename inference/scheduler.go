package inference

import (
	"time"

	"github.com/benbjohnson/clock"
	"gorgonia.org/tensor"

	"github.com/maskar-ai/go-maskar/logging"
	"github.com/maskar-ai/go-maskar/spatial"
)

// State identifies the scheduler's position within an inference cycle.
type State int

const (
	// StateIdle - no cycle in flight; Schedule is accepted.
	StateIdle State = iota
	// StateStepping - the backend is executing layers.
	StateStepping
	// StateAwaitDetections - waiting on the detection tensor readback.
	StateAwaitDetections
	// StateAwaitPrototypes - waiting on the prototype tensor readback.
	StateAwaitPrototypes
	// StateDispatch - both tensors are on the host; run the dispatch chain.
	StateDispatch
	// StateCleanup - release per-cycle resources.
	StateCleanup
	// StateFailed - a step or readback failed; recovers on the next Tick.
	StateFailed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStepping:
		return "stepping"
	case StateAwaitDetections:
		return "await-detections"
	case StateAwaitPrototypes:
		return "await-prototypes"
	case StateDispatch:
		return "dispatch"
	case StateCleanup:
		return "cleanup"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultStepsPerTick bounds how much backend work one frame absorbs.
const DefaultStepsPerTick = 25

// SchedulerConfig holds the tunable parameters of the scheduler.
type SchedulerConfig struct {
	// StepsPerTick is the layer budget handed to Device.Step on every Tick
	// spent in the stepping state.
	StepsPerTick int `json:"steps_per_tick" yaml:"steps_per_tick"`
}

// DefaultSchedulerConfig returns the standard scheduling parameters.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{StepsPerTick: DefaultStepsPerTick}
}

// Clamp coerces invalid values into their valid ranges.
func (c *SchedulerConfig) Clamp() {
	if c.StepsPerTick < 1 {
		c.StepsPerTick = 1
	}
}

// Stats is a point-in-time snapshot of the scheduler's counters.
type Stats struct {
	CyclesCompleted uint64
	CyclesFailed    uint64
	LastCycleTime   time.Duration
}

// Scheduler spreads one inference cycle across many frame ticks: a bounded
// number of backend layers per tick, then a request-and-poll readback for
// each output tensor, then a synchronous dispatch of the results.
//
// The scheduler is not thread-safe. Schedule and Tick must be called from
// the single goroutine that drives the frame loop; the only suspension
// points of a cycle are the two readback-poll states.
type Scheduler struct {
	device   Device
	dispatch DispatchFunc
	cfg      SchedulerConfig
	clock    clock.Clock
	log      logging.Logger

	state          State
	capture        spatial.Pose
	detections     *tensor.Dense
	prototypes     *tensor.Dense
	detRequested   bool
	protoRequested bool
	cycleStart     time.Time

	completed uint64
	failed    uint64
	lastCycle time.Duration
}

// NewScheduler builds a scheduler around a backend device.
//
// Arguments:
//   - device: The compute backend to drive.
//   - dispatch: Called with the outputs of every completed cycle. May be nil.
//   - cfg: Scheduling parameters; invalid values are clamped.
//   - log: Destination for state transition and failure logs.
//
// Returns:
//   - *Scheduler: A scheduler in the idle state.
func NewScheduler(device Device, dispatch DispatchFunc, cfg SchedulerConfig, log logging.Logger) *Scheduler {
	cfg.Clamp()
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Scheduler{
		device:   device,
		dispatch: dispatch,
		cfg:      cfg,
		clock:    clock.New(),
		log:      log,
		state:    StateIdle,
	}
}

// Schedule begins a new inference cycle if none is in flight. The capture
// pose travels with the cycle and is handed to the dispatch func alongside
// the outputs, so late results are still placed where the input was taken.
//
// Returns:
//   - bool: true if a cycle was started, false if one was already running
//     or the backend rejected the input.
func (s *Scheduler) Schedule(input *tensor.Dense, capture spatial.Pose) bool {
	if s.state != StateIdle {
		return false
	}
	if err := s.device.Begin(input); err != nil {
		s.log.Warnw("backend rejected cycle start", "error", err)
		s.failed++
		return false
	}
	s.capture = capture
	s.cycleStart = s.clock.Now()
	s.state = StateStepping
	return true
}

// Tick advances the cycle by exactly one transition step. Call it once per
// frame; an idle scheduler ticks for free.
func (s *Scheduler) Tick() {
	switch s.state {
	case StateIdle:

	case StateStepping:
		done, err := s.device.Step(s.cfg.StepsPerTick)
		if err != nil {
			s.fail("step", err)
			return
		}
		if done {
			s.state = StateAwaitDetections
		}

	case StateAwaitDetections:
		if out, ok := s.awaitOutput(OutputDetections, &s.detRequested); ok {
			s.detections = out
			s.state = StateAwaitPrototypes
		}

	case StateAwaitPrototypes:
		if out, ok := s.awaitOutput(OutputPrototypes, &s.protoRequested); ok {
			s.prototypes = out
			s.state = StateDispatch
		}

	case StateDispatch:
		if s.dispatch != nil {
			s.dispatch(s.detections, s.prototypes, s.capture)
		}
		s.state = StateCleanup

	case StateCleanup:
		s.releaseCycle()
		s.completed++
		s.lastCycle = s.clock.Since(s.cycleStart)
		s.log.Debugw("inference cycle complete",
			"duration", s.lastCycle,
			"completed", s.completed,
		)
		s.state = StateIdle

	case StateFailed:
		s.releaseCycle()
		s.state = StateIdle
	}
}

// awaitOutput drives one readback state for a single tick: it issues the
// transfer request on its first call and polls exactly once per later call.
func (s *Scheduler) awaitOutput(index int, requested *bool) (*tensor.Dense, bool) {
	if !*requested {
		if err := s.device.RequestOutput(index); err != nil {
			s.fail("request readback", err)
			return nil, false
		}
		*requested = true
		return nil, false
	}
	out, ready, err := s.device.PollOutput(index)
	if err != nil {
		s.fail("poll readback", err)
		return nil, false
	}
	if !ready {
		return nil, false
	}
	return out, true
}

// fail records a failed cycle. The dispatch func is not called: a failed
// cycle contributes zero detections and the scheduler recovers to idle on
// the next tick.
func (s *Scheduler) fail(stage string, err error) {
	s.log.Warnw("inference cycle failed",
		"stage", stage,
		"state", s.state.String(),
		"error", err,
	)
	s.failed++
	s.state = StateFailed
}

func (s *Scheduler) releaseCycle() {
	s.detections = nil
	s.prototypes = nil
	s.detRequested = false
	s.protoRequested = false
	s.device.Release()
}

// Busy reports whether a cycle is in flight. Failed cycles stay busy until
// the recovery tick has run.
func (s *Scheduler) Busy() bool {
	return s.state != StateIdle
}

// CurrentState returns the scheduler's position in the cycle.
func (s *Scheduler) CurrentState() State {
	return s.state
}

// Stats returns a snapshot of the cycle counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		CyclesCompleted: s.completed,
		CyclesFailed:    s.failed,
		LastCycleTime:   s.lastCycle,
	}
}
