package onnx

import (
	"runtime"

	"github.com/maskar-ai/go-maskar/models/yoloseg"
)

// Config describes the ONNX Runtime session backing a Device.
type Config struct {
	// ModelPath is the segmentation model file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// LibraryPath is the onnxruntime shared library; empty picks the
	// platform default under third_party/.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// InputName is the model's image input node.
	InputName string `json:"input_name" yaml:"input_name"`
	// DetectionsName is the detection head output node.
	DetectionsName string `json:"detections_name" yaml:"detections_name"`
	// PrototypesName is the prototype head output node.
	PrototypesName string `json:"prototypes_name" yaml:"prototypes_name"`
	// Model gives the tensor geometry the session is allocated for.
	Model yoloseg.Params `json:"model" yaml:"model"`
	// Provider picks the acceleration backend; empty runs on CPU.
	Provider Provider `json:"provider" yaml:"provider"`
	// CUDA tunes the CUDA provider when selected.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`
	// OpenVINO tunes the OpenVINO provider when selected.
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
	// IntraOpThreads parallelizes execution inside graph nodes; 0 uses the
	// runtime default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads parallelizes execution across independent graph
	// nodes; 0 uses the runtime default.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
}

// DefaultConfig returns options for a standard YOLOv8 segmentation export:
// one "images" input, "output0" detections and "output1" prototypes.
func DefaultConfig() Config {
	return Config{
		LibraryPath:    DefaultLibraryPath(),
		InputName:      "images",
		DetectionsName: "output0",
		PrototypesName: "output1",
		Model:          yoloseg.COCOParams(),
		Provider:       ProviderCPU,
	}
}

// Clamp coerces invalid values into their valid ranges.
func (c *Config) Clamp() {
	if c.LibraryPath == "" {
		c.LibraryPath = DefaultLibraryPath()
	}
	if c.InputName == "" {
		c.InputName = "images"
	}
	if c.DetectionsName == "" {
		c.DetectionsName = "output0"
	}
	if c.PrototypesName == "" {
		c.PrototypesName = "output1"
	}
	if c.Provider == "" {
		c.Provider = ProviderCPU
	}
	if c.CUDA.DeviceID < 0 {
		c.CUDA.DeviceID = 0
	}
	if c.CUDA.MemoryLimit < 0 {
		c.CUDA.MemoryLimit = 0
	}
	if c.OpenVINO.NumThreads < 0 {
		c.OpenVINO.NumThreads = 0
	}
	if c.IntraOpThreads < 0 {
		c.IntraOpThreads = 0
	}
	if c.InterOpThreads < 0 {
		c.InterOpThreads = 0
	}
	if c.Model.NumClasses < 1 || c.Model.NumMaskCoeffs < 1 || c.Model.NumAnchors < 1 ||
		c.Model.InputSize < 1 || c.Model.PrototypeSize < 1 {
		c.Model = yoloseg.COCOParams()
	}
}

// DefaultLibraryPath returns the expected onnxruntime shared library
// location for this platform, or an empty string when no bundled build
// exists for it.
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "third_party/onnxruntime.dll"
		}
	case "darwin":
		switch runtime.GOARCH {
		case "arm64":
			return "third_party/onnxruntime_arm64.dylib"
		case "amd64":
			return "third_party/onnxruntime_amd64.dylib"
		}
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.so"
		}
		return "third_party/onnxruntime.so"
	}
	return ""
}
