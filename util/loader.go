package util

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/maskar-ai/go-maskar/images"
)

// FrameFile is one frame of a recorded sequence.
type FrameFile struct {
	// Path is the file the frame was read from.
	Path string
	// Image carries the encoded bytes, the sniffed format and the pixel
	// dimensions read from the header.
	Image images.Image
	// Index is the frame number parsed from the file name.
	Index int
}

// Decode decodes the frame bytes into an image.
func (f FrameFile) Decode() (image.Image, error) {
	img, err := images.Decode(f.Image.Data, f.Image.Format)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding frame %s", f.Path)
	}
	return img, nil
}

// LoadFrameSequence reads a directory of numbered frames, ordered by the
// trailing number in each file name, so frame-2 sorts before frame-10.
// Files without a trailing number and unsupported extensions are skipped.
//
// Arguments:
// - dir: Directory holding the frame files (.jpg, .jpeg or .png).
//
// Returns:
// - []FrameFile: Frames in ascending index order.
// - error: An error if the directory or any frame cannot be read.
func LoadFrameSequence(dir string) ([]FrameFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading frame directory")
	}

	var frames []FrameFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		format := images.FormatForPath(entry.Name())
		if format == images.FormatUnknown {
			continue
		}

		ext := filepath.Ext(entry.Name())
		stem := entry.Name()[:len(entry.Name())-len(ext)]
		index, ok := frameIndex(stem)
		if !ok {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading frame %s", path)
		}
		// The magic bytes outrank the extension for mislabeled files.
		if sniffed := images.DetectFormat(data); sniffed != images.FormatUnknown {
			format = sniffed
		}

		frame := FrameFile{
			Path:  path,
			Image: images.Image{Format: format, Data: data},
			Index: index,
		}
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			frame.Image.Width = cfg.Width
			frame.Image.Height = cfg.Height
		}
		frames = append(frames, frame)
	}

	sort.Slice(frames, func(i, j int) bool {
		if frames[i].Index != frames[j].Index {
			return frames[i].Index < frames[j].Index
		}
		return frames[i].Path < frames[j].Path
	})

	return frames, nil
}

// frameIndex parses the trailing digit run of a file name stem, so both
// "frame-0012" and "img12" yield 12.
func frameIndex(stem string) (int, bool) {
	end := len(stem)
	for end > 0 && stem[end-1] >= '0' && stem[end-1] <= '9' {
		end--
	}
	if end == len(stem) {
		return 0, false
	}
	n, err := strconv.Atoi(stem[end:])
	if err != nil {
		return 0, false
	}
	return n, true
}
