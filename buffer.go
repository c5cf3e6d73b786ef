package graph

// Buffer is a non-interleaved block of float64 signal, one slice per
// channel.
type Buffer [][]float64

// EmptyBuffer returns a zeroed buffer of specified dimensions.
func EmptyBuffer(numChannels, blockSize int) Buffer {
	b := make([][]float64, numChannels)
	for i := range b {
		b[i] = make([]float64, blockSize)
	}
	return b
}

// NumChannels returns the number of channels in the buffer.
func (b Buffer) NumChannels() int {
	return len(b)
}

// Size returns the number of samples per channel.
func (b Buffer) Size() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// Zero fills every channel with zeros.
func (b Buffer) Zero() {
	for i := range b {
		zeroFill(b[i])
	}
}

func zeroFill(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
