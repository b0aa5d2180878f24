package audio

// Buffer accumulates samples and slices them into fixed-size chunks for
// transcription. Chunk boundaries never split a sample and the order of
// appended audio is preserved.
type Buffer struct {
	sampleRate int
	chunkSize  int
	samples    []float32
}

// Chunk is a fixed-size window of samples ready for the backend.
type Chunk struct {
	Samples    []float32
	SampleRate int
}

// Seconds returns the chunk duration.
func (c Chunk) Seconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// NewBuffer builds a buffer that emits chunks of chunkSize samples at the
// given rate.
func NewBuffer(sampleRate, chunkSize int) *Buffer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if chunkSize <= 0 {
		chunkSize = sampleRate * 2
	}
	return &Buffer{sampleRate: sampleRate, chunkSize: chunkSize}
}

// Append adds samples to the pending buffer.
func (b *Buffer) Append(samples []float32) {
	if len(samples) == 0 {
		return
	}
	b.samples = append(b.samples, samples...)
}

// Drain removes and returns every complete chunk currently buffered.
// Samples short of a full chunk remain pending.
func (b *Buffer) Drain() []Chunk {
	var chunks []Chunk
	for len(b.samples) >= b.chunkSize {
		chunk := make([]float32, b.chunkSize)
		copy(chunk, b.samples[:b.chunkSize])
		b.samples = b.samples[b.chunkSize:]
		chunks = append(chunks, Chunk{Samples: chunk, SampleRate: b.sampleRate})
	}
	if len(b.samples) == 0 {
		b.samples = nil
	}
	return chunks
}

// Remainder removes and returns the pending partial chunk, if any.
func (b *Buffer) Remainder() (Chunk, bool) {
	if len(b.samples) == 0 {
		return Chunk{}, false
	}
	rest := make([]float32, len(b.samples))
	copy(rest, b.samples)
	b.samples = nil
	return Chunk{Samples: rest, SampleRate: b.sampleRate}, true
}

// Len returns the number of pending samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// SampleRate returns the rate the buffer was built with.
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// ChunkSize returns the samples per emitted chunk.
func (b *Buffer) ChunkSize() int {
	return b.chunkSize
}
