// Package audio decodes, concatenates and encodes PCM WAV clips.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// DefaultSampleRate matches the 16 kHz linear16 output requested from providers.
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultBitDepth   = 16

	wavFormatPCM = 1
)

// ErrFormatMismatch is returned by Concat when two clips differ in sample
// rate, channel count or bit depth.
var ErrFormatMismatch = errors.New("audio: clip formats differ")

// Clip is a decoded block of PCM samples.
type Clip struct {
	buf      *goaudio.IntBuffer
	bitDepth int
}

// Frames returns the number of sample frames in the clip.
func (c *Clip) Frames() int {
	if c == nil || c.buf == nil {
		return 0
	}
	return c.buf.NumFrames()
}

// SampleRate returns the clip sample rate in Hz.
func (c *Clip) SampleRate() int { return c.buf.Format.SampleRate }

// Channels returns the number of interleaved channels.
func (c *Clip) Channels() int { return c.buf.Format.NumChannels }

// BitDepth returns the bits per sample.
func (c *Clip) BitDepth() int { return c.bitDepth }

// Duration returns the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	if c.Frames() == 0 || c.SampleRate() == 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate())
}

// Decode parses a PCM WAV container.
func Decode(data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("audio: empty input")
	}
	d := wav.NewDecoder(bytes.NewReader(data))
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode pcm: %w", err)
	}
	if d.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("audio: unsupported wav format %d", d.WavAudioFormat)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return nil, fmt.Errorf("audio: wav header missing format")
	}
	return &Clip{buf: buf, bitDepth: int(d.BitDepth)}, nil
}

// Concat returns a new clip holding a followed by b.
func Concat(a, b *Clip) (*Clip, error) {
	if a.SampleRate() != b.SampleRate() || a.Channels() != b.Channels() || a.bitDepth != b.bitDepth {
		return nil, fmt.Errorf("%w: %dHz/%dch/%dbit vs %dHz/%dch/%dbit", ErrFormatMismatch,
			a.SampleRate(), a.Channels(), a.bitDepth,
			b.SampleRate(), b.Channels(), b.bitDepth)
	}
	data := make([]int, 0, len(a.buf.Data)+len(b.buf.Data))
	data = append(data, a.buf.Data...)
	data = append(data, b.buf.Data...)
	return &Clip{
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: a.Channels(), SampleRate: a.SampleRate()},
			Data:           data,
			SourceBitDepth: a.bitDepth,
		},
		bitDepth: a.bitDepth,
	}, nil
}

// Encode writes the clip as a PCM WAV container.
func Encode(c *Clip) ([]byte, error) {
	out := &seekBuffer{}
	enc := wav.NewEncoder(out, c.SampleRate(), c.bitDepth, c.Channels(), wavFormatPCM)
	if err := enc.Write(c.buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: finalize wav: %w", err)
	}
	return out.Bytes(), nil
}

// FromPCM16 builds a clip from raw signed 16-bit little-endian PCM.
func FromPCM16(pcm []byte, sampleRate, channels int) *Clip {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return &Clip{
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			Data:           samples,
			SourceBitDepth: 16,
		},
		bitDepth: 16,
	}
}

// PCM16 returns the clip samples as signed 16-bit little-endian PCM. Clips
// with a different bit depth are rescaled.
func (c *Clip) PCM16() []byte {
	out := make([]byte, 2*len(c.buf.Data))
	shift := c.bitDepth - 16
	for i, s := range c.buf.Data {
		switch {
		case shift > 0:
			s >>= shift
		case shift < 0:
			s <<= -shift
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s)))
	}
	return out
}

// WrapPCM16 encodes raw 16-bit PCM as a WAV container.
func WrapPCM16(pcm []byte, sampleRate, channels int) ([]byte, error) {
	return Encode(FromPCM16(pcm, sampleRate, channels))
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if end := s.pos + len(p); end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}
	n := copy(s.buf[s.pos:], p)
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos) + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("audio: negative seek position")
	}
	s.pos = int(abs)
	return abs, nil
}

func (s *seekBuffer) Bytes() []byte { return s.buf }
