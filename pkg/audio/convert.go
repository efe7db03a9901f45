package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrMisaligned is returned when a PCM16 buffer has an odd byte count.
var ErrMisaligned = errors.New("audio: pcm16 buffer has odd byte count")

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "24000Hz mono".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Converter turns mono PCM16 buffers received from the bridge into clips in
// an output device format. It logs once on the first format mismatch.
// Create one per sink.
type Converter struct {
	// Source is the format of the buffers passed to Convert. Only mono
	// sources are supported.
	Source Format

	// Target is the device output format (mono or stereo).
	Target Format

	warnedMismatch sync.Once
}

// Convert validates pcm and converts it to the target format. If the formats
// already match, pcm is returned in the clip unchanged. Conversion order:
// resample first, then channel expansion.
func (c *Converter) Convert(pcm []byte) (Clip, error) {
	if len(pcm)%2 != 0 {
		return Clip{}, fmt.Errorf("%w (%d bytes)", ErrMisaligned, len(pcm))
	}
	if len(pcm) == 0 {
		return Clip{}, errors.New("audio: empty pcm buffer")
	}
	if c.Source == c.Target {
		return Clip{PCM: pcm, Format: c.Target}, nil
	}
	if c.Source.Channels != 1 {
		return Clip{}, fmt.Errorf("audio: unsupported source format %s", c.Source)
	}

	c.warnedMismatch.Do(func() {
		slog.Debug("audio output format differs from bridge format, converting",
			"from", c.Source.String(),
			"to", c.Target.String(),
		)
	})

	out := ResampleMono16(pcm, c.Source.SampleRate, c.Target.SampleRate)
	if c.Target.Channels == 2 {
		out = MonoToStereo(out)
	}
	return Clip{PCM: out, Format: c.Target}, nil
}

// MonoToStereo duplicates each int16 mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// ResampleMono16 resamples little-endian int16 mono PCM from srcRate to
// dstRate using linear interpolation. Invalid rates or equal rates return the
// input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	sample := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sample(idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sample(idx + 1)
		}
		v := int16(s0*(1-frac) + s1*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
