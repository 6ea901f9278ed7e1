package audio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eleven-am/voice-widget/internal/shared"
)

type Codec string

const (
	CodecPCM  Codec = "pcm"
	CodecMP3  Codec = "mp3"
	CodecULaw Codec = "ulaw"
)

// Format describes an endpoint audio format such as "pcm_16000" or
// "mp3_44100_128".
type Format struct {
	Codec      Codec
	SampleRate int
	Bitrate    int
}

var DefaultFormat = Format{Codec: CodecPCM, SampleRate: TargetSampleRate}

func ParseFormat(s string) (Format, error) {
	if s == "" {
		return DefaultFormat, nil
	}

	parts := strings.Split(strings.ToLower(s), "_")
	if len(parts) < 2 {
		return Format{}, fmt.Errorf("invalid audio format %q", s)
	}

	f := Format{Codec: Codec(parts[0])}
	switch f.Codec {
	case CodecPCM, CodecMP3, CodecULaw:
	default:
		return Format{}, fmt.Errorf("unsupported codec %q", parts[0])
	}

	rate, err := strconv.Atoi(parts[1])
	if err != nil || rate <= 0 {
		return Format{}, fmt.Errorf("invalid sample rate in %q", s)
	}
	f.SampleRate = rate

	if len(parts) > 2 {
		if br, err := strconv.Atoi(parts[2]); err == nil {
			f.Bitrate = br
		}
	}
	return f, nil
}

func (f Format) String() string {
	if f.Bitrate > 0 {
		return fmt.Sprintf("%s_%d_%d", f.Codec, f.SampleRate, f.Bitrate)
	}
	return fmt.Sprintf("%s_%d", f.Codec, f.SampleRate)
}

// DecodeFragment turns a wire audio fragment into a playable clip.
func DecodeFragment(data []byte, f Format) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, fmt.Errorf("%w: empty fragment", shared.ErrDecode)
	}

	switch f.Codec {
	case CodecPCM, "":
		rate := f.SampleRate
		if rate <= 0 {
			rate = TargetSampleRate
		}
		return Clip{Samples: PCMBytesToInt16(data), SampleRate: rate}, nil
	case CodecULaw:
		return Clip{Samples: DecodeULaw(data), SampleRate: f.SampleRate}, nil
	case CodecMP3:
		return DecodeMP3(data)
	}
	return Clip{}, fmt.Errorf("%w: unsupported codec %q", shared.ErrDecode, f.Codec)
}
