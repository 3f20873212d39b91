package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func TestChunkSizeForRate(t *testing.T) {
	cases := []struct {
		rate int
		want int
	}{
		{8000, 3200},
		{16000, 6400},
		{0, 3200},
	}
	for _, tc := range cases {
		got := ChunkSizeForRate(tc.rate)
		if got != tc.want {
			t.Errorf("ChunkSizeForRate(%d) = %d, want %d", tc.rate, got, tc.want)
		}
		if got%FrameAlignment != 0 {
			t.Errorf("ChunkSizeForRate(%d) = %d, not a multiple of %d", tc.rate, got, FrameAlignment)
		}
	}
}

func TestChunkLosslessFraming(t *testing.T) {
	pcm := make([]byte, 7001)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	frames := Chunk(pcm, 3200)
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	var joined []byte
	for i, f := range frames {
		if len(f) > 3200 {
			t.Fatalf("frame %d size %d exceeds chunk size", i, len(f))
		}
		if i < len(frames)-1 && len(f)%FrameAlignment != 0 {
			t.Fatalf("frame %d size %d not aligned", i, len(f))
		}
		joined = append(joined, f...)
	}
	if !bytes.Equal(joined, pcm) {
		t.Fatalf("concatenated frames differ from input")
	}
}

func TestChunkEmptyInput(t *testing.T) {
	if frames := Chunk(nil, 3200); frames != nil {
		t.Fatalf("Chunk(nil) = %v, want nil", frames)
	}
}

func TestResampleLengthRatio(t *testing.T) {
	cases := []struct {
		from, to int
	}{
		{24000, 16000},
		{24000, 8000},
		{16000, 8000},
		{8000, 16000},
	}
	in := sine(24000, 440, 0.25)
	for _, tc := range cases {
		out := Resample(in, tc.from, tc.to)
		inLen := float64(len(in)/2) / float64(tc.from)
		outLen := float64(len(out)/2) / float64(tc.to)
		if math.Abs(outLen-inLen) > 1.0/float64(tc.to) {
			t.Errorf("Resample %d->%d: duration %v, want %v", tc.from, tc.to, outLen, inLen)
		}
	}
}

func TestResampleSameRateIsIdentity(t *testing.T) {
	in := sine(16000, 200, 0.1)
	out := Resample(in, 16000, 16000)
	if !bytes.Equal(in, out) {
		t.Fatalf("same-rate resample modified the signal")
	}
}

func TestActiveSampleRatio(t *testing.T) {
	if r := ActiveSampleRatio(make([]byte, 3200), 100); r != 0 {
		t.Fatalf("all-zero buffer ratio = %v, want 0", r)
	}

	loud := make([]byte, 200)
	for i := 0; i < 100; i++ {
		binary.LittleEndian.PutUint16(loud[i*2:], uint16(int16(5000)))
	}
	if r := ActiveSampleRatio(loud, 100); r != 1 {
		t.Fatalf("loud buffer ratio = %v, want 1", r)
	}
}

func TestSilence(t *testing.T) {
	s := Silence(1, 8000)
	if len(s) != 16000 {
		t.Fatalf("1s of 8kHz silence = %d bytes, want 16000", len(s))
	}
	for _, b := range s {
		if b != 0 {
			t.Fatalf("silence contains non-zero byte")
		}
	}
}

func TestWAVHeaderRoundTrip(t *testing.T) {
	pcm := sine(8000, 300, 0.05)
	wav, err := EncodeWAVPCM16LE(pcm, 8000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if len(wav) != len(pcm)+44 {
		t.Fatalf("wav size = %d, want %d", len(wav), len(pcm)+44)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 8000 {
		t.Fatalf("sample rate in header = %d, want 8000", got)
	}
	if !bytes.Equal(StripWAVHeader(wav), pcm) {
		t.Fatalf("StripWAVHeader did not recover the PCM payload")
	}
}

func TestStripWAVHeaderPassthrough(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	if !bytes.Equal(StripWAVHeader(raw), raw) {
		t.Fatalf("non-WAV input should pass through unchanged")
	}
}

func sine(rate int, freq float64, seconds float64) []byte {
	n := int(float64(rate) * seconds)
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
