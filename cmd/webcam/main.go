// Command webcam runs the segmentation pipeline against a live camera:
// one scheduler tick per displayed frame, with an optional motion gate so
// static scenes do not burn inference cycles.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"

	"github.com/maskar-ai/go-maskar/images"
	"github.com/maskar-ai/go-maskar/inference"
	"github.com/maskar-ai/go-maskar/labels"
	"github.com/maskar-ai/go-maskar/logging"
	"github.com/maskar-ai/go-maskar/onnx"
	"github.com/maskar-ai/go-maskar/pipeline"
	"github.com/maskar-ai/go-maskar/profiler"
	"github.com/maskar-ai/go-maskar/spatial"
)

func main() {
	var (
		deviceID      int
		modelPath     string
		ortLib        string
		providerName  string
		labelsPath    string
		confidence    float64
		classList     string
		steps         int
		useMotionGate bool
		minArea       float64
		showWindow    bool
		debug         bool
	)
	flag.IntVar(&deviceID, "device", 0, "Video capture device id")
	flag.StringVar(&modelPath, "model", "", "Path to a YOLOv8-seg ONNX model (required)")
	flag.StringVar(&ortLib, "ort-lib", "", "Override path to the onnxruntime shared library")
	flag.StringVar(&providerName, "provider", "", "Execution provider: cpu, cuda, coreml or openvino")
	flag.StringVar(&labelsPath, "labels", "", "Path to a newline-delimited class label file (built-in COCO when empty)")
	flag.Float64Var(&confidence, "confidence", 0.5, "Detection confidence threshold")
	flag.StringVar(&classList, "classes", "", "Comma-separated class allow-list (all classes when empty)")
	flag.IntVar(&steps, "steps", inference.DefaultStepsPerTick, "Layer budget per tick")
	flag.BoolVar(&useMotionGate, "motion", true, "Only schedule inference when the scene moves")
	flag.Float64Var(&minArea, "min-area", 3000, "Minimum moving contour area in pixels")
	flag.BoolVar(&showWindow, "show", true, "Display the capture window")
	flag.BoolVar(&debug, "debug", false, "Log state transitions and cycle events")
	flag.Parse()

	log := logging.NewLogger("webcam")
	if debug {
		log = logging.NewDebugLogger("webcam")
	}
	defer func() { _ = log.Sync() }()

	if modelPath == "" {
		log.Fatalw("no model given, pass -model with a YOLOv8-seg ONNX export")
	}

	cfg := pipeline.DefaultConfig()
	cfg.Filter.ConfidenceThreshold = float32(confidence)
	cfg.ClassAllowList = parseClassList(classList)

	var table *labels.Set
	if labelsPath != "" {
		t, err := labels.LoadFile(labelsPath)
		if err != nil {
			log.Fatalw("label file unreadable", "path", labelsPath, "error", err)
		}
		table = t
	}

	// No pose source on a fixed webcam, so world placement stays off.
	pipe, err := pipeline.NewPipeline(cfg, table, nil, log)
	if err != nil {
		log.Fatalw("pipeline construction failed", "error", err)
	}
	cfg = pipe.Config()

	ocfg := onnx.DefaultConfig()
	ocfg.ModelPath = modelPath
	ocfg.Model = cfg.Model
	if ortLib != "" {
		ocfg.LibraryPath = ortLib
	}
	if ocfg.Provider, err = onnx.ParseProvider(providerName); err != nil {
		log.Fatalw("bad -provider", "error", err)
	}
	device, err := onnx.NewDevice(ocfg, log)
	if err != nil {
		log.Fatalw("onnx backend unavailable", "error", err)
	}
	defer device.Close()

	var latest []pipeline.LiveDetection
	sched := inference.NewScheduler(device, pipe.Dispatcher(func(live []pipeline.LiveDetection) {
		latest = live
	}), inference.SchedulerConfig{StepsPerTick: steps}, log)

	prof := profiler.NewPipelineProfiler(profiler.DefaultConfig())
	pipe.SetProfiler(prof)
	prof.Start()
	defer prof.Stop()

	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		log.Fatalw("cannot open capture device", "device", deviceID, "error", err)
	}
	defer webcam.Close()

	var window *gocv.Window
	if showWindow {
		window = gocv.NewWindow("Live Segmentation")
		defer window.Close()
	}

	img := gocv.NewMat()
	defer img.Close()

	var gate *images.MotionGate
	if useMotionGate {
		mcfg := images.DefaultMotionConfig()
		mcfg.MinimumArea = minArea
		gate = images.NewMotionGate(mcfg)
		defer gate.Close()
	}

	fmt.Printf("start reading camera device: %v\n", deviceID)

	// A fixed camera never moves, so every cycle is captured from the
	// same pose.
	capture := spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation())

	// FPS tracking variables
	fps := 0.0
	frameCount := 0
	lastTime := time.Now()

	for {
		if ok := webcam.Read(&img); !ok {
			fmt.Printf("cannot read device %v\n", deviceID)
			return
		}
		if img.Empty() {
			continue
		}

		frameCount++
		currentTime := time.Now()
		if elapsed := currentTime.Sub(lastTime).Seconds(); elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = currentTime
		}

		// The background model sees every frame even while a cycle is in
		// flight, so the gate stays current.
		var motionRects []image.Rectangle
		if gate != nil {
			motionRects, err = gate.Regions(img)
			if err != nil {
				log.Warnw("motion gate failed", "error", err)
			}
		}

		if !sched.Busy() && (gate == nil || len(motionRects) > 0) {
			if err := scheduleFrame(sched, pipe, img, cfg.Model.InputSize, capture); err != nil {
				log.Warnw("frame not scheduled", "error", err)
			}
		}
		sched.Tick()

		drawDetections(&img, latest, cfg.Model.InputSize)
		for _, r := range motionRects {
			gocv.Rectangle(&img, r, color.RGBA{R: 128, G: 128, B: 128, A: 0}, 1)
		}

		stats := sched.Stats()
		status := fmt.Sprintf("FPS: %.1f | cycles: %d | detections: %d", fps, stats.CyclesCompleted, len(latest))
		gocv.PutText(&img, status, image.Pt(10, 30), gocv.FontHersheyPlain, 1.2, color.RGBA{R: 255, G: 255, B: 255, A: 0}, 2)

		if window != nil {
			window.IMShow(img)
			window.WaitKey(1)
		}
	}
}

// scheduleFrame converts the captured Mat into an input tensor and hands
// it to the scheduler. The frame also becomes the background the next
// cycle's overlay colors are sampled from.
func scheduleFrame(sched *inference.Scheduler, pipe *pipeline.Pipeline, img gocv.Mat, inputSize int, capture spatial.Pose) error {
	frame, err := img.ToImage()
	if err != nil {
		return err
	}
	input, err := inference.ImageToTensor(frame, inputSize)
	if err != nil {
		return err
	}
	pipe.SetBackground(frame)
	sched.Schedule(input, capture)
	return nil
}

// drawDetections paints boxes and labels for the current live set, scaled
// from model input space to the frame resolution.
func drawDetections(img *gocv.Mat, live []pipeline.LiveDetection, inputSize int) {
	sx := float64(img.Cols()) / float64(inputSize)
	sy := float64(img.Rows()) / float64(inputSize)
	for _, d := range live {
		rect := image.Rect(
			int(float64(d.Box.X1)*sx), int(float64(d.Box.Y1)*sy),
			int(float64(d.Box.X2)*sx), int(float64(d.Box.Y2)*sy),
		)
		c := color.RGBA{R: d.Overlay.R, G: d.Overlay.G, B: d.Overlay.B, A: 0}
		gocv.Rectangle(img, rect, c, 2)
		label := fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence)
		gocv.PutText(img, label, image.Pt(rect.Min.X, rect.Min.Y-6), gocv.FontHersheyPlain, 1.2, c, 2)
	}
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
