package audio

import "encoding/binary"

// FrameAlignment is the smallest outbound chunk granularity the carrier
// accepts. Chunk sizes must be a multiple of this.
const FrameAlignment = 320

// ChunkSizeForRate returns the outbound chunk size for 200ms of PCM16LE mono
// audio at the given sample rate: 3200 bytes at 8kHz, 6400 bytes at 16kHz.
func ChunkSizeForRate(sampleRate int) int {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	size := sampleRate * 2 * 2 / 10
	if rem := size % FrameAlignment; rem != 0 {
		size += FrameAlignment - rem
	}
	return size
}

// Chunk splits pcm into fixed-size frames. The final frame may be shorter.
// Concatenating the returned frames reproduces the input exactly.
func Chunk(pcm []byte, chunkSize int) [][]byte {
	if len(pcm) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = ChunkSizeForRate(16000)
	}
	frames := make([][]byte, 0, (len(pcm)+chunkSize-1)/chunkSize)
	for i := 0; i < len(pcm); i += chunkSize {
		end := i + chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		frames = append(frames, pcm[i:end])
	}
	return frames
}

// Resample converts PCM16LE mono audio between sample rates using linear
// interpolation. Rates seen in practice: 24000 (TTS output), 16000, 8000.
func Resample(pcm []byte, fromRate, toRate int) []byte {
	if fromRate <= 0 || toRate <= 0 || fromRate == toRate || len(pcm) < 2 {
		return pcm
	}

	inSamples := len(pcm) / 2
	outSamples := int(int64(inSamples) * int64(toRate) / int64(fromRate))
	if outSamples <= 0 {
		return nil
	}

	out := make([]byte, outSamples*2)
	for i := 0; i < outSamples; i++ {
		// Source position for output sample i, fixed-point over the input.
		pos := int64(i) * int64(fromRate) * 256 / int64(toRate)
		idx := int(pos / 256)
		frac := pos % 256

		if idx >= inSamples-1 {
			idx = inSamples - 1
			frac = 0
		}

		s0 := int16(binary.LittleEndian.Uint16(pcm[idx*2:]))
		s1 := s0
		if idx+1 < inSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(idx+1)*2:]))
		}
		sample := int64(s0) + (int64(s1)-int64(s0))*frac/256
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sample)))
	}
	return out
}

// ActiveSampleRatio reports the fraction of 16-bit samples whose absolute
// amplitude exceeds threshold. Used by the silence gate ahead of STT.
func ActiveSampleRatio(pcm []byte, threshold int) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	active := 0
	for i := 0; i < samples; i++ {
		v := int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		if v < 0 {
			v = -v
		}
		if v > threshold {
			active++
		}
	}
	return float64(active) / float64(samples)
}

// Silence returns d seconds worth of zeroed PCM16LE mono audio at sampleRate.
func Silence(seconds float64, sampleRate int) []byte {
	if seconds <= 0 || sampleRate <= 0 {
		return nil
	}
	return make([]byte, int(seconds*float64(sampleRate))*2)
}
