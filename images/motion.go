package images

import (
	"image"

	"gocv.io/x/gocv"
)

// MotionConfig holds the motion gate tunables.
type MotionConfig struct {
	// Threshold is the foreground-mask intensity above which a pixel
	// counts as moving.
	Threshold float32 `json:"threshold" yaml:"threshold"`
	// MinimumArea is the smallest contour area, in pixels, treated as real
	// motion rather than sensor noise.
	MinimumArea float64 `json:"minimum_area" yaml:"minimum_area"`
	// DilationSize is the edge length of the square kernel that closes
	// gaps in the foreground mask before contour extraction.
	DilationSize int `json:"dilation_size" yaml:"dilation_size"`
}

// DefaultMotionConfig returns the standard gating parameters.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		Threshold:    25,
		MinimumArea:  3000,
		DilationSize: 3,
	}
}

// Clamp coerces invalid values into their valid ranges.
func (c *MotionConfig) Clamp() {
	c.Threshold = ClampF32(c.Threshold, 1, 255)
	if c.MinimumArea < 0 {
		c.MinimumArea = 0
	}
	if c.DilationSize < 1 {
		c.DilationSize = 1
	}
}

// MotionGate decides whether a captured frame holds enough motion to be
// worth an inference cycle: background subtraction (MOG2), thresholding
// to a binary mask, dilation to close gaps, then contour extraction with
// an area floor.
//
// The background model is persistent, so frames must arrive in capture
// order. Not safe for concurrent use. Call Close to release the native
// resources.
type MotionGate struct {
	cfg        MotionConfig
	delta      gocv.Mat
	threshold  gocv.Mat
	kernel     gocv.Mat
	subtractor gocv.BackgroundSubtractorMOG2
}

// NewMotionGate builds a gate with a fresh background model. Invalid
// config values are clamped.
func NewMotionGate(cfg MotionConfig) *MotionGate {
	cfg.Clamp()
	return &MotionGate{
		cfg:        cfg,
		delta:      gocv.NewMat(),
		threshold:  gocv.NewMat(),
		kernel:     gocv.GetStructuringElement(gocv.MorphRect, image.Pt(cfg.DilationSize, cfg.DilationSize)),
		subtractor: gocv.NewBackgroundSubtractorMOG2(),
	}
}

// Regions returns the bounding rectangles of every moving blob whose
// contour area reaches MinimumArea. The frame itself is not modified, but
// every call folds it into the background model.
//
// Arguments:
//   - frame: The captured frame, in capture order.
//
// Returns:
//   - []image.Rectangle: Bounding boxes of the detected motion regions.
//   - error: An error if a native operation fails.
func (g *MotionGate) Regions(frame gocv.Mat) ([]image.Rectangle, error) {
	if err := g.subtractor.Apply(frame, &g.delta); err != nil {
		return nil, err
	}
	gocv.Threshold(g.delta, &g.threshold, g.cfg.Threshold, 255, gocv.ThresholdBinary)
	if err := gocv.Dilate(g.threshold, &g.threshold, g.kernel); err != nil {
		return nil, err
	}

	contours := gocv.FindContours(g.threshold, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var regions []image.Rectangle
	for i := 0; i < contours.Size(); i++ {
		if gocv.ContourArea(contours.At(i)) < g.cfg.MinimumArea {
			continue
		}
		regions = append(regions, gocv.BoundingRect(contours.At(i)))
	}
	return regions, nil
}

// Detect reports whether the frame moved relative to the background
// model.
func (g *MotionGate) Detect(frame gocv.Mat) (bool, error) {
	regions, err := g.Regions(frame)
	if err != nil {
		return false, err
	}
	return len(regions) > 0, nil
}

// Close releases the native OpenCV resources.
func (g *MotionGate) Close() {
	g.delta.Close()
	g.threshold.Close()
	g.kernel.Close()
	g.subtractor.Close()
}
