package onnx

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Provider selects the execution backend for the session. The zero value
// runs on the CPU provider; the others offload graph nodes to an
// accelerator and fall back to CPU for anything the backend rejects.
type Provider string

const (
	// ProviderCPU runs the graph on the runtime's default CPU provider.
	ProviderCPU Provider = "cpu"
	// ProviderCUDA offloads to an NVIDIA GPU.
	ProviderCUDA Provider = "cuda"
	// ProviderCoreML offloads to Apple CoreML on darwin.
	ProviderCoreML Provider = "coreml"
	// ProviderOpenVINO offloads to Intel OpenVINO.
	ProviderOpenVINO Provider = "openvino"
)

// ParseProvider maps a backend name to a known Provider. Names are
// case-insensitive; the empty string means CPU.
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return ProviderCPU, nil
	case ProviderCPU, ProviderCUDA, ProviderCoreML, ProviderOpenVINO:
		return p, nil
	default:
		return ProviderCPU, errors.Errorf("unknown execution provider %q", name)
	}
}

// CUDAOptions tunes the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// DeviceID selects the GPU.
	DeviceID int `json:"device_id" yaml:"device_id"`
	// MemoryLimit caps the provider's arena in bytes; 0 leaves the
	// runtime default (unbounded).
	MemoryLimit int64 `json:"memory_limit" yaml:"memory_limit"`
	// ConvAlgoSearch picks the cuDNN convolution algorithm search:
	// EXHAUSTIVE, HEURISTIC or DEFAULT. Empty leaves the runtime default.
	ConvAlgoSearch string `json:"conv_algo_search" yaml:"conv_algo_search"`
}

// toNative builds the runtime's provider options. The caller owns the
// returned options and must Destroy them; the runtime copies their
// contents when they are appended to a session.
func (o CUDAOptions) toNative() (*ort.CUDAProviderOptions, error) {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, err
	}

	keys := map[string]string{
		"device_id": strconv.Itoa(o.DeviceID),
	}
	if o.MemoryLimit > 0 {
		keys["gpu_mem_limit"] = strconv.FormatInt(o.MemoryLimit, 10)
	}
	if o.ConvAlgoSearch != "" {
		keys["cudnn_conv_algo_search"] = o.ConvAlgoSearch
	}
	if err := opts.Update(keys); err != nil {
		opts.Destroy()
		return nil, err
	}
	return opts, nil
}

// OpenVINOOptions tunes the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// DeviceType overrides the accelerator hardware: CPU, GPU or NPU.
	// Empty keeps the default chosen at build time.
	DeviceType string `json:"device_type" yaml:"device_type"`
	// NumThreads overrides the accelerator's thread count; 0 keeps the
	// default.
	NumThreads int `json:"num_threads" yaml:"num_threads"`
}

// toMap renders the options in the key form the runtime expects,
// omitting anything left at its default.
func (o OpenVINOOptions) toMap() map[string]string {
	config := map[string]string{}
	if o.DeviceType != "" {
		config["device_type"] = o.DeviceType
	}
	if o.NumThreads > 0 {
		config["num_of_threads"] = strconv.Itoa(o.NumThreads)
	}
	return config
}

// applyProvider appends the configured execution provider to the session
// options. The CPU provider needs no appending.
func applyProvider(options *ort.SessionOptions, cfg Config) error {
	switch cfg.Provider {
	case "", ProviderCPU:
		return nil
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return errors.Wrap(err, "appending coreml provider")
		}
		return nil
	case ProviderCUDA:
		cuda, err := cfg.CUDA.toNative()
		if err != nil {
			return errors.Wrap(err, "building cuda provider options")
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "appending cuda provider")
		}
		return nil
	case ProviderOpenVINO:
		if err := options.AppendExecutionProviderOpenVINO(cfg.OpenVINO.toMap()); err != nil {
			return errors.Wrap(err, "appending openvino provider")
		}
		return nil
	default:
		return errors.Errorf("unknown execution provider %q", cfg.Provider)
	}
}
