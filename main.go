package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"gorgonia.org/tensor"

	"github.com/maskar-ai/go-maskar/anchors"
	"github.com/maskar-ai/go-maskar/images"
	"github.com/maskar-ai/go-maskar/inference"
	"github.com/maskar-ai/go-maskar/labels"
	"github.com/maskar-ai/go-maskar/logging"
	"github.com/maskar-ai/go-maskar/models/yoloseg"
	"github.com/maskar-ai/go-maskar/onnx"
	"github.com/maskar-ai/go-maskar/pipeline"
	"github.com/maskar-ai/go-maskar/profiler"
	"github.com/maskar-ai/go-maskar/spatial"
	"github.com/maskar-ai/go-maskar/util"
)

const (
	// demoEyeHeight is the simulated viewer's eye height in meters.
	demoEyeHeight = 1.6
	// demoFloorY is the height of the demo floor plane the raycaster
	// intersects.
	demoFloorY = 0.0
	// demoWalkSpeed is how far the viewer advances per cycle once the
	// approach phase starts, in meters.
	demoWalkSpeed = 0.3
)

// COCO class ids the synthetic scene uses.
const (
	classPerson = 0
	classChair  = 56
)

func main() {
	var (
		framesDir       string
		modelPath       string
		ortLib          string
		providerName    string
		labelsPath      string
		cycles          int
		tickInterval    time.Duration
		steps           int
		simLayers       int
		transferTicks   int
		confidence      float64
		classList       string
		adaptiveColor   bool
		outlineRadius   int
		fov             float64
		spawnDistance   float64
		updateInterval  time.Duration
		improvement     float64
		outlineDistance float64
		blendWidth      float64
		reportInterval  time.Duration
		debug           bool
	)
	flag.StringVar(&framesDir, "frames", "", "Directory of numbered frames to replay cyclically (synthetic scene when empty)")
	flag.StringVar(&modelPath, "model", "", "Path to a YOLOv8-seg ONNX model (simulated backend when empty)")
	flag.StringVar(&ortLib, "ort-lib", "", "Override path to the onnxruntime shared library")
	flag.StringVar(&providerName, "provider", "", "Execution provider: cpu, cuda, coreml or openvino")
	flag.StringVar(&labelsPath, "labels", "", "Path to a newline-delimited class label file (built-in COCO when empty)")
	flag.IntVar(&cycles, "cycles", 60, "Number of inference cycles to run")
	flag.DurationVar(&tickInterval, "tick", 10*time.Millisecond, "Delay between scheduler ticks, simulating frame pacing")
	flag.IntVar(&steps, "steps", inference.DefaultStepsPerTick, "Layer budget per tick")
	flag.IntVar(&simLayers, "layers", 150, "Simulated backend depth in layers")
	flag.IntVar(&transferTicks, "transfer-ticks", 1, "Simulated readback latency in polls")
	flag.Float64Var(&confidence, "confidence", 0.75, "Detection confidence threshold")
	flag.StringVar(&classList, "classes", "", "Comma-separated class allow-list (all classes when empty)")
	flag.BoolVar(&adaptiveColor, "adaptive-color", true, "Pick overlay colors by background contrast")
	flag.IntVar(&outlineRadius, "outline-radius", 2, "Edge thickness of outline masks in pixels")
	flag.Float64Var(&fov, "fov", 60, "Horizontal field of view in degrees")
	flag.Float64Var(&spawnDistance, "spawn-distance", 0.25, "Same-class anchor dedup radius in meters")
	flag.DurationVar(&updateInterval, "update-interval", 500*time.Millisecond, "Minimum time between anchor auto-updates")
	flag.Float64Var(&improvement, "improvement", 0.05, "Quality gain required before an anchor is upgraded")
	flag.Float64Var(&outlineDistance, "outline-distance", 2.5, "Viewer distance below which anchors render as outlines, in meters")
	flag.Float64Var(&blendWidth, "blend-width", 0, "Width of the solid/outline blend zone in meters")
	flag.DurationVar(&reportInterval, "report-interval", 2*time.Second, "Profiler status report interval")
	flag.BoolVar(&debug, "debug", false, "Log state transitions and anchor events")
	flag.Parse()

	log := logging.NewLogger("maskar")
	if debug {
		log = logging.NewDebugLogger("maskar")
	}
	defer func() { _ = log.Sync() }()

	cfg := pipeline.DefaultConfig()
	if modelPath == "" {
		cfg.Model = demoParams()
	}
	cfg.Filter.ConfidenceThreshold = float32(confidence)
	cfg.ClassAllowList = parseClassList(classList)
	cfg.AdaptiveColor = adaptiveColor
	cfg.OutlineRadius = outlineRadius
	cfg.HorizontalFOV = fov

	var table *labels.Set
	if labelsPath != "" {
		t, err := labels.LoadFile(labelsPath)
		if err != nil {
			log.Fatalw("label file unreadable", "path", labelsPath, "error", err)
		}
		table = t
	}

	caster := spatial.PlaneRaycaster(demoFloorY, fov)
	pipe, err := pipeline.NewPipeline(cfg, table, caster, log)
	if err != nil {
		log.Fatalw("pipeline construction failed", "error", err)
	}
	cfg = pipe.Config()

	reg := anchors.NewRegistry(anchors.Config{
		SpawnDistance:        spawnDistance,
		UpdateInterval:       updateInterval,
		ImprovementThreshold: improvement,
		SurfaceOffset:        0.01,
		OutlineDistance:      outlineDistance,
		BlendWidth:           blendWidth,
	}, log)

	var device inference.Device
	if modelPath != "" {
		ocfg := onnx.DefaultConfig()
		ocfg.ModelPath = modelPath
		ocfg.Model = cfg.Model
		if ortLib != "" {
			ocfg.LibraryPath = ortLib
		}
		if ocfg.Provider, err = onnx.ParseProvider(providerName); err != nil {
			log.Fatalw("bad -provider", "error", err)
		}
		dev, err := onnx.NewDevice(ocfg, log)
		if err != nil {
			log.Fatalw("onnx backend unavailable", "error", err)
		}
		defer dev.Close()
		device = dev
	} else {
		gen := &sceneGenerator{params: cfg.Model}
		device = inference.NewSimDevice(inference.SimDeviceConfig{
			TotalLayers:   simLayers,
			TransferTicks: transferTicks,
		}, gen.Generate)
	}

	var latest []pipeline.LiveDetection
	sched := inference.NewScheduler(device, pipe.Dispatcher(func(live []pipeline.LiveDetection) {
		latest = live
	}), inference.SchedulerConfig{StepsPerTick: steps}, log)

	prof := profiler.NewPipelineProfiler(profiler.Config{ReportInterval: reportInterval})
	prof.AddMetricsCollector(profiler.CollectorFunc(func() map[string]float64 {
		return map[string]float64{"anchor_count": float64(reg.Len())}
	}))
	pipe.SetProfiler(prof)

	var frames []image.Image
	if framesDir != "" {
		frames = loadReplayFrames(framesDir, cfg.Model.InputSize, log)
	}
	synthetic := syntheticBackground(cfg.Model.InputSize)

	fmt.Printf("\n🚀 Live Segmentation Pipeline\n")
	fmt.Printf("=====================================\n")
	fmt.Printf("⚙️  Configuration:\n")
	if modelPath != "" {
		fmt.Printf("   🧠 Backend: onnx (%s)\n", modelPath)
	} else {
		fmt.Printf("   🧠 Backend: simulated (%d layers, %d per tick)\n", simLayers, steps)
	}
	if framesDir != "" {
		fmt.Printf("   🎞️  Input: %d replay frames from %s\n", len(frames), framesDir)
	} else {
		fmt.Printf("   🎞️  Input: synthetic scene\n")
	}
	fmt.Printf("   📐 Geometry: %d classes, %d proposals, %dpx input, %dpx prototypes\n",
		cfg.Model.NumClasses, cfg.Model.NumAnchors, cfg.Model.InputSize, cfg.Model.PrototypeSize)
	fmt.Printf("   📊 Confidence threshold: %.2f\n", cfg.Filter.ConfidenceThreshold)
	if len(cfg.ClassAllowList) > 0 {
		fmt.Printf("   🎯 Classes: %s\n", strings.Join(cfg.ClassAllowList, ", "))
	} else {
		fmt.Printf("   🎯 Classes: all\n")
	}
	fmt.Printf("   🎨 Adaptive color: %t | outline radius: %d\n", cfg.AdaptiveColor, cfg.OutlineRadius)
	fmt.Printf("   ⚓ Anchors: spawn %.2fm | update %v | improvement %.2f | outline at %.2fm\n",
		spawnDistance, updateInterval, improvement, outlineDistance)
	fmt.Printf("   🔁 Cycles: %d | tick interval: %v\n", cycles, tickInterval)
	fmt.Printf("=====================================\n\n")

	prof.Start()
	defer prof.Stop()

	viewer := spatial.NewPose(r3.Vector{Y: demoEyeHeight}, spatial.IdentityOrientation())
	spawned := false

	for cycle := 0; cycle < cycles; cycle++ {
		frame := image.Image(synthetic)
		if len(frames) > 0 {
			frame = frames[cycle%len(frames)]
		}

		input, err := inference.ImageToTensor(frame, cfg.Model.InputSize)
		if err != nil {
			log.Fatalw("frame conversion failed", "cycle", cycle, "error", err)
		}

		pipe.SetBackground(frame)
		latest = nil
		if !sched.Schedule(input, viewer) {
			log.Warnw("cycle not scheduled", "cycle", cycle)
			continue
		}
		ticks := 0
		for sched.Busy() {
			sched.Tick()
			ticks++
			if tickInterval > 0 {
				time.Sleep(tickInterval)
			}
		}
		prof.RecordMetric("ticks_per_cycle", float64(ticks))

		// The first populated cycle stands in for the user's anchor gesture.
		if !spawned && len(latest) > 0 {
			created := reg.SpawnFromLive(latest, viewer)
			spawned = true
			fmt.Printf("⚓ Anchored %d detections\n", created)
		}
		if upgraded := reg.AutoUpdate(latest, viewer); upgraded > 0 {
			fmt.Printf("⬆️  Upgraded %d anchors\n", upgraded)
		}
		reg.UpdateRenderModes(viewer)

		// Halfway through the run the viewer starts walking toward the
		// scene, driving anchors across the outline-mode distance.
		if cycle >= cycles/2 {
			viewer.Position.Z += demoWalkSpeed
		}

		solid, outline := modeCounts(reg.Anchors())
		fmt.Printf("[Cycle %d] ticks=%d | %s | anchors=%d (solid=%d outline=%d)\n",
			cycle, ticks, describeLive(latest), reg.Len(), solid, outline)
	}

	stats := sched.Stats()
	fmt.Printf("\n=====================================\n")
	fmt.Printf("📊 Run complete: %d cycles, %d failed\n", stats.CyclesCompleted, stats.CyclesFailed)
	fmt.Printf("   Last cycle time: %v\n", stats.LastCycleTime.Truncate(time.Millisecond))
	for _, stage := range []string{profiler.StageDecode, profiler.StageSynthesize, profiler.StageRender} {
		if s, ok := prof.StageStats(stage); ok {
			fmt.Printf("   %-11s avg=%v min=%v max=%v count=%d\n", stage+":",
				s.Avg.Truncate(time.Microsecond), s.Min.Truncate(time.Microsecond),
				s.Max.Truncate(time.Microsecond), s.Count)
		}
	}
	fmt.Printf("   Anchors: %d\n", reg.Len())
	for _, a := range reg.Anchors() {
		fmt.Printf("   ⚓ %-12s %-7s quality=%.2f at (%.2f, %.2f, %.2f)\n",
			a.ClassName, a.Mode.String(), a.Quality,
			a.Pose.Position.X, a.Pose.Position.Y, a.Pose.Position.Z)
	}
	fmt.Printf("=====================================\n")
}

// demoParams shrinks the proposal and prototype grids for the simulated
// backend; class count and input size stay at their COCO values so label
// names and raycast geometry behave as they would live.
func demoParams() yoloseg.Params {
	p := yoloseg.COCOParams()
	p.NumAnchors = 64
	p.PrototypeSize = 64
	return p
}

// parseClassList splits a comma-separated allow-list into names.
func parseClassList(csv string) []string {
	if csv == "" {
		return nil
	}
	var names []string
	for _, part := range strings.Split(csv, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// loadReplayFrames reads, decodes and scales every frame in the
// directory up front: the frames replay cyclically, so resampling once
// here beats resampling on every cycle, and pre-scaled frames skip the
// resize inside the tensor fill.
func loadReplayFrames(dir string, size int, log logging.Logger) []image.Image {
	files, err := util.LoadFrameSequence(dir)
	if err != nil {
		log.Fatalw("frame directory unreadable", "dir", dir, "error", err)
	}
	if len(files) == 0 {
		log.Fatalw("no numbered frames found", "dir", dir)
	}
	frames := make([]image.Image, len(files))
	for i, f := range files {
		img, err := images.DecodeAndResize(f.Image.Data, size, size, f.Image.Format)
		if err != nil {
			log.Fatalw("frame decode failed", "path", f.Path, "error", err)
		}
		frames[i] = images.ToRGBA(img)
	}
	log.Infow("replay frames loaded", "dir", dir, "count", len(frames), "size", size)
	return frames
}

// syntheticBackground paints a simple indoor backdrop: a shaded wall
// above a darker floor, so adaptive color selection has something to
// sample.
func syntheticBackground(size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	horizon := size * 2 / 3
	for y := 0; y < size; y++ {
		shade := uint8(185 - 40*y/size)
		c := color.NRGBA{R: shade, G: shade, B: shade + 10, A: 255}
		if y >= horizon {
			c = color.NRGBA{R: 72, G: 60, B: 48, A: 255}
		}
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// sceneGenerator fabricates segmentation outputs for the simulated
// backend: a person drifting right with slowly improving confidence, an
// overlapping duplicate person for suppression to remove, and a static
// chair. Tensors are freshly allocated every cycle because the device
// contract keeps outputs valid after release.
type sceneGenerator struct {
	params yoloseg.Params
	cycle  int
}

// Generate implements inference.OutputGenerator.
func (g *sceneGenerator) Generate(_ *tensor.Dense) (*tensor.Dense, *tensor.Dense, error) {
	p := g.params
	det := make([]float32, p.Channels()*p.NumAnchors)

	conf := 0.82 + 0.004*float32(g.cycle)
	if conf > 0.95 {
		conf = 0.95
	}
	drift := float32(g.cycle)
	if drift > 100 {
		drift = 100
	}

	g.writeProposal(det, 0, 250+drift, 430, 120, 260, classPerson, conf, 0)
	g.writeProposal(det, 1, 258+drift, 436, 120, 260, classPerson, 0.78, 0)
	g.writeProposal(det, 2, 480, 450, 110, 150, classChair, 0.88, 1)
	g.cycle++

	m := p.PrototypeSize
	protos := make([]float32, p.NumMaskCoeffs*m*m)
	for y := 0; y < m; y++ {
		for x := 0; x < m; x++ {
			// Plane 0 covers everything; plane 1 only the left half.
			protos[y*m+x] = 3
			v := float32(-3)
			if x < m/2 {
				v = 3
			}
			protos[m*m+y*m+x] = v
		}
	}

	return tensor.New(tensor.WithShape(1, p.Channels(), p.NumAnchors), tensor.WithBacking(det)),
		tensor.New(tensor.WithShape(1, p.NumMaskCoeffs, m, m), tensor.WithBacking(protos)),
		nil
}

// writeProposal fills one anchor column of the channel-major detection
// layout: box, then class scores, then mask coefficients.
func (g *sceneGenerator) writeProposal(data []float32, slot int, cx, cy, w, h float32, class int, score float32, coeff int) {
	n := g.params.NumAnchors
	data[0*n+slot] = cx
	data[1*n+slot] = cy
	data[2*n+slot] = w
	data[3*n+slot] = h
	data[(4+class)*n+slot] = score
	data[(4+g.params.NumClasses+coeff)*n+slot] = 1
}

// describeLive renders the live set as name(confidence) pairs for the
// per-cycle console line.
func describeLive(live []pipeline.LiveDetection) string {
	if len(live) == 0 {
		return "no detections"
	}
	parts := make([]string, len(live))
	for i, d := range live {
		parts[i] = fmt.Sprintf("%s(%.2f)", d.ClassName, d.Confidence)
	}
	return strings.Join(parts, " ")
}

// modeCounts tallies anchors by render mode.
func modeCounts(list []anchors.AnchoredMask) (solid, outline int) {
	for _, a := range list {
		if a.Mode == anchors.ModeOutline {
			outline++
		} else {
			solid++
		}
	}
	return solid, outline
}
