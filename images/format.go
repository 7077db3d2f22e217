package images

import (
	"bytes"
	"path/filepath"
	"strings"
)

// ImageFormat represents supported image formats
type ImageFormat string

const (
	FormatJPEG    ImageFormat = "jpeg"
	FormatPNG     ImageFormat = "png"
	FormatUnknown ImageFormat = ""
)

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
)

// DetectFormat sniffs the format from the magic bytes at the start of the
// data. Returns FormatUnknown when the prefix matches no supported format.
func DetectFormat(data []byte) ImageFormat {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return FormatJPEG
	case bytes.HasPrefix(data, pngMagic):
		return FormatPNG
	default:
		return FormatUnknown
	}
}

// FormatForPath maps a file extension to an ImageFormat.
func FormatForPath(path string) ImageFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".png":
		return FormatPNG
	default:
		return FormatUnknown
	}
}
