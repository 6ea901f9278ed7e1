package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/eleven-am/voice-widget/internal/shared"
	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes an mp3 fragment to mono PCM16. go-mp3 always yields
// interleaved stereo.
func DecodeMP3(data []byte) (Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Clip{}, fmt.Errorf("%w: mp3: %v", shared.ErrDecode, err)
	}

	raw, err := io.ReadAll(dec)
	if len(raw) == 0 {
		return Clip{}, fmt.Errorf("%w: mp3 read: %v", shared.ErrDecode, err)
	}

	return Clip{
		Samples:    downmix(PCMBytesToInt16(raw)),
		SampleRate: dec.SampleRate(),
	}, nil
}
