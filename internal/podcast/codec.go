package podcast

import (
	"fmt"

	"github.com/nupi-ai/plugin-tts-podcast/internal/audio"
)

// Clip is a decoded audio handle produced by a Codec.
type Clip interface {
	// Frames returns the number of sample frames. An empty clip counts as a
	// failed turn.
	Frames() int
}

// Codec decodes synthesized clips, joins them and encodes the finished track.
type Codec interface {
	Decode(data []byte) (Clip, error)
	Concat(a, b Clip) (Clip, error)
	Encode(c Clip) ([]byte, error)
}

// WAVCodec is the Codec for PCM WAV clips.
type WAVCodec struct{}

func (WAVCodec) Decode(data []byte) (Clip, error) {
	return audio.Decode(data)
}

func (WAVCodec) Concat(a, b Clip) (Clip, error) {
	ac, bc, err := wavClips(a, b)
	if err != nil {
		return nil, err
	}
	return audio.Concat(ac, bc)
}

func (WAVCodec) Encode(c Clip) ([]byte, error) {
	wc, ok := c.(*audio.Clip)
	if !ok {
		return nil, fmt.Errorf("podcast: wav codec cannot encode %T", c)
	}
	return audio.Encode(wc)
}

func wavClips(a, b Clip) (*audio.Clip, *audio.Clip, error) {
	ac, ok := a.(*audio.Clip)
	if !ok {
		return nil, nil, fmt.Errorf("podcast: wav codec cannot join %T", a)
	}
	bc, ok := b.(*audio.Clip)
	if !ok {
		return nil, nil, fmt.Errorf("podcast: wav codec cannot join %T", b)
	}
	return ac, bc, nil
}
