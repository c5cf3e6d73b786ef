/*
Package wavetable plays wav files decoded into in-memory sample tables.

A Table is a heavy owned resource: it is decoded off the block path by a
loader goroutine and handed to the Player through a hot-swap slot, so a
running graph can replace the sample material without a glitch. A load
superseded by a newer request still completes into its staging space but
is discarded, never committed.
*/
package wavetable

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"
)

var (
	// ErrInvalidFile is returned when the file is not a readable wav.
	ErrInvalidFile = errors.New("wav is not valid")
	// ErrSuperseded is returned on the result channel of a load that was
	// replaced by a newer request before it could commit.
	ErrSuperseded = errors.New("load superseded")
)

// Table is a fully decoded wav file: non-interleaved float64 frames, one
// slice per channel.
type Table struct {
	Path       string
	SampleRate int
	Data       [][]float64
}

// Frames returns the table length in frames.
func (t *Table) Frames() int {
	if t == nil || len(t.Data) == 0 {
		return 0
	}
	return len(t.Data[0])
}

// Decode reads a whole wav file into a Table.
func Decode(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, path)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %v: %w", path, err)
	}
	numChannels := buf.Format.NumChannels
	if numChannels == 0 || len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: %v has no frames", ErrInvalidFile, path)
	}

	divider := bitDepthDivider(buf.SourceBitDepth)
	frames := len(buf.Data) / numChannels
	data := make([][]float64, numChannels)
	for c := range data {
		data[c] = make([]float64, frames)
		for i := 0; i < frames; i++ {
			data[c][i] = float64(buf.Data[i*numChannels+c]) / divider
		}
	}
	return &Table{
		Path:       path,
		SampleRate: buf.Format.SampleRate,
		Data:       data,
	}, nil
}

// bitDepthDivider returns the int-to-float conversion divider for the
// source bit depth.
func bitDepthDivider(bitDepth int) float64 {
	switch bitDepth {
	case 8:
		return float64(math.MaxInt8)
	case 16:
		return float64(math.MaxInt16)
	case 24:
		return float64(1<<23 - 1)
	case 32:
		return float64(math.MaxInt32)
	default:
		return 1
	}
}
