package pipeline

import (
	"image"
	"image/color"
	"math"

	"gorgonia.org/tensor"

	"github.com/maskar-ai/go-maskar/colors"
	"github.com/maskar-ai/go-maskar/images"
	"github.com/maskar-ai/go-maskar/inference"
	"github.com/maskar-ai/go-maskar/labels"
	"github.com/maskar-ai/go-maskar/logging"
	"github.com/maskar-ai/go-maskar/masks"
	"github.com/maskar-ai/go-maskar/models/postprocess"
	"github.com/maskar-ai/go-maskar/models/yoloseg"
	"github.com/maskar-ai/go-maskar/profiler"
	"github.com/maskar-ai/go-maskar/spatial"
)

// Pipeline runs the per-cycle chain: decode, NMS, mask synthesis, overlay
// color selection and world placement. It owns no state between cycles
// beyond its configuration; every ProcessCycle call produces a fresh live
// set.
type Pipeline struct {
	cfg    Config
	labels *labels.Set
	caster spatial.Raycaster
	log    logging.Logger

	background image.Image
	prof       *profiler.PipelineProfiler
}

// NewPipeline builds a pipeline.
//
// Arguments:
//   - cfg: Pipeline options; invalid values are clamped.
//   - table: Class label table; nil falls back to the built-in COCO set.
//   - caster: World raycast collaborator; nil disables world placement.
//   - log: Structured logger; nil discards.
//
// Returns:
//   - *Pipeline: The assembled pipeline.
//   - error: An error if the configured class allow-list names a label the
//     table does not know.
func NewPipeline(cfg Config, table *labels.Set, caster spatial.Raycaster, log logging.Logger) (*Pipeline, error) {
	cfg.Clamp()
	if table == nil {
		table = labels.COCO()
	}
	if err := cfg.ResolveAllowList(table); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Pipeline{cfg: cfg, labels: table, caster: caster, log: log}, nil
}

// Config returns the clamped, allow-list-resolved configuration in use.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// SetBackground records the frame the next scheduled cycle was captured
// from. The dispatcher samples it for adaptive overlay colors; pass nil to
// fall back to the first palette entry.
func (p *Pipeline) SetBackground(img image.Image) {
	p.background = img
}

// SetProfiler attaches a profiler that receives the decode, synthesize and
// render stage timings plus the per-cycle detection count. Nil detaches.
func (p *Pipeline) SetProfiler(prof *profiler.PipelineProfiler) {
	p.prof = prof
}

// Dispatcher adapts the pipeline to the scheduler's dispatch signature.
// Every completed cycle is processed and the live set handed to sink.
func (p *Pipeline) Dispatcher(sink func([]LiveDetection)) inference.DispatchFunc {
	return func(det, protos *tensor.Dense, capture spatial.Pose) {
		live := p.ProcessCycle(det, protos, capture, p.background)
		if sink != nil {
			sink(live)
		}
	}
}

// ProcessCycle turns one cycle's output tensors into the live detection
// set. Per-detection failures degrade to fewer masks, never to an error:
// a degenerate crop or failed synthesis keeps the detection without
// bitmaps, and a missed raycast keeps it without a world point.
//
// Arguments:
//   - det: Detection tensor [1, 4+C+K, N].
//   - protos: Prototype tensor [1, K, M, M].
//   - capture: Viewer pose at the time the cycle's input was captured.
//   - background: The capture frame, sampled for adaptive overlay colors.
//     May be nil.
//
// Returns:
//   - []LiveDetection: This cycle's detections, sorted by descending
//     confidence. Nil when decoding fails or nothing survives filtering.
func (p *Pipeline) ProcessCycle(det, protos *tensor.Dense, capture spatial.Pose, background image.Image) []LiveDetection {
	stop := p.timeStage(profiler.StageDecode)
	results, err := yoloseg.Decode(det, p.cfg.Model, p.cfg.Filter)
	stop()
	if err != nil {
		p.log.Warnw("detection decode failed", "error", err)
		return nil
	}
	if len(results) == 0 {
		return nil
	}

	live := make([]LiveDetection, 0, len(results))
	inputSize := float32(p.cfg.Model.InputSize)
	for _, r := range results {
		d := LiveDetection{
			Class:      r.Class,
			ClassName:  p.labels.NameOrIndex(r.Class),
			Confidence: r.Score,
			Box:        r.Box,
		}
		d.NormWidth = r.Box.Width() / inputSize
		d.NormHeight = r.Box.Height() / inputSize
		d.Coverage = d.NormWidth * d.NormHeight
		d.Overlay = p.overlayFor(r.Box, background)

		p.attachMask(&d, r, protos)
		p.attachWorldPoint(&d, capture)
		live = append(live, d)
	}
	if p.prof != nil {
		p.prof.RecordMetric(profiler.MetricDetections, float64(len(live)))
	}
	p.log.Debugw("cycle processed", "detections", len(live))
	return live
}

// nopTimer is handed out when no profiler is attached.
var nopTimer = func() {}

// timeStage starts a profiler timer for one stage, or a no-op when no
// profiler is attached.
func (p *Pipeline) timeStage(stage string) func() {
	if p.prof == nil {
		return nopTimer
	}
	return p.prof.Time(stage)
}

// overlayFor picks the mask color for one detection.
func (p *Pipeline) overlayFor(box images.RectF, background image.Image) color.NRGBA {
	if !p.cfg.AdaptiveColor || background == nil {
		c := p.cfg.Palette[0]
		c.A = p.cfg.OverlayAlpha
		return c
	}
	s := float64(p.cfg.Model.InputSize)
	region := images.RegionF{
		X: float64(box.X1) / s,
		Y: float64(box.Y1) / s,
		W: float64(box.Width()) / s,
		H: float64(box.Height()) / s,
	}
	bg := colors.SampleBackground(background, region, p.cfg.ColorSamples)
	return colors.BestContrast(bg, p.cfg.Palette, p.cfg.OverlayAlpha)
}

// attachMask synthesizes and renders the detection's mask bitmaps.
func (p *Pipeline) attachMask(d *LiveDetection, r postprocess.Result, protos *tensor.Dense) {
	crop := masks.ComputeCrop(r.Box, p.cfg.Model.InputSize, p.cfg.Model.PrototypeSize)
	if crop.Empty() {
		p.log.Debugw("degenerate crop, keeping detection without mask",
			"class", d.ClassName, "box", r.Box)
		return
	}
	stop := p.timeStage(profiler.StageSynthesize)
	m, err := masks.Synthesize(r.Coefficients, protos)
	stop()
	if err != nil {
		p.log.Warnw("mask synthesis failed", "class", d.ClassName, "error", err)
		return
	}

	stop = p.timeStage(profiler.StageRender)
	d.Solid, d.Outline = masks.RenderBoth(m, crop, d.Overlay, p.cfg.OutlineRadius)
	stop()
}

// attachWorldPoint raycasts the box center into the world and derives the
// pinhole size estimate.
func (p *Pipeline) attachWorldPoint(d *LiveDetection, capture spatial.Pose) {
	if p.caster == nil {
		return
	}
	cx, cy := d.Box.Center()
	s := float64(p.cfg.Model.InputSize)
	point, ok := p.caster.CastViewport(float64(cx)/s, float64(cy)/s, capture)
	if !ok {
		return
	}
	d.WorldPoint = point
	d.HasWorldPoint = true

	distance := capture.Position.Sub(point).Norm()
	halfExtent := math.Tan(p.cfg.HorizontalFOV * math.Pi / 360.0)
	d.EstimatedWidth = 2 * distance * halfExtent * float64(d.NormWidth)
	d.EstimatedHeight = 2 * distance * halfExtent * float64(d.NormHeight)
}
