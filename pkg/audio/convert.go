// Package audio holds the PCM types and conversion primitives shared by the
// capture, listening, and playback stages: frames, channel downmix,
// resampling, RMS energy, and the WAV container used for the STT hand-off.
package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// FormatConverter converts captured frames to a target format, typically
// 48 kHz stereo gateway audio down to 16 kHz mono for transcription.
// Conversion order is downmix first, then resample, so the resampler only
// ever runs over a mono stream.
//
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns frame converted to the target format. A frame that already
// matches the target is returned unchanged. Frames whose payload is not an
// even number of bytes are malformed int16 PCM and come back with empty Data;
// callers drop those silently.
func (c *FormatConverter) Convert(frame Frame) Frame {
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio: odd byte count in PCM payload, dropping frame",
				"bytes", len(frame.Data),
				"speaker", frame.SpeakerID,
			)
		})
		frame.Data = nil
		frame.SampleRate = c.Target.SampleRate
		frame.Channels = c.Target.Channels
		return frame
	}

	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio: format mismatch, converting",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := frame.Data

	if frame.Channels == 2 && c.Target.Channels == 1 {
		pcm = DownmixStereo(pcm)
	} else if frame.Channels == 1 && c.Target.Channels == 2 {
		pcm = MonoToStereo(pcm)
	}

	if frame.SampleRate != c.Target.SampleRate {
		if c.Target.Channels == 1 {
			pcm = ResampleMono16(pcm, frame.SampleRate, c.Target.SampleRate)
		} else {
			pcm = ResampleStereo16(pcm, frame.SampleRate, c.Target.SampleRate)
		}
	}

	frame.Data = pcm
	frame.SampleRate = c.Target.SampleRate
	frame.Channels = c.Target.Channels
	return frame
}

// DownmixStereo averages the L and R samples of each interleaved stereo frame
// (4 bytes) into a single mono sample. int32 arithmetic avoids overflow; the
// average is always in int16 range.
func DownmixStereo(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((l+r)/2)))
	}
	return out
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	samples := len(pcm) / 2
	out := make([]byte, samples*4)
	for i := range samples {
		s := binary.LittleEndian.Uint16(pcm[i*2:])
		binary.LittleEndian.PutUint16(out[i*4:], s)
		binary.LittleEndian.PutUint16(out[i*4+2:], s)
	}
	return out
}

// ResampleMono16 resamples mono int16 PCM from srcRate to dstRate using
// linear interpolation. If the rates match the input is returned unchanged.
// Pure silence in yields pure silence out: interpolating between zero
// samples produces only zeros.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[idx*2:]))
		s1 := s0
		if idx+1 < srcSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(idx+1)*2:]))
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// ResampleStereo16 resamples interleaved stereo int16 PCM from srcRate to
// dstRate using per-channel linear interpolation.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 4 {
		return pcm
	}
	srcFrames := len(pcm) / 4
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*4)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		l0 := int16(binary.LittleEndian.Uint16(pcm[idx*4:]))
		r0 := int16(binary.LittleEndian.Uint16(pcm[idx*4+2:]))
		l1, r1 := l0, r0
		if idx+1 < srcFrames {
			l1 = int16(binary.LittleEndian.Uint16(pcm[(idx+1)*4:]))
			r1 = int16(binary.LittleEndian.Uint16(pcm[(idx+1)*4+2:]))
		}

		binary.LittleEndian.PutUint16(out[i*4:], uint16(int16(float64(l0)*(1-frac)+float64(l1)*frac)))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(int16(float64(r0)*(1-frac)+float64(r1)*frac)))
	}
	return out
}

// formatString renders a rate and channel count as e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
