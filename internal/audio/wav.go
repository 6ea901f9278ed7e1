package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/eleven-am/voice-widget/internal/shared"
)

const WAVHeaderSize = 44

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// WrapWAV prefixes mono PCM16 bytes with a canonical 44-byte RIFF header.
func WrapWAV(pcm []byte, sampleRate int) []byte {
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+len(pcm)))
	_ = binary.Write(buf, binary.LittleEndian, header)
	buf.Write(pcm)
	return buf.Bytes()
}

// ParseWAV decodes a mono or stereo PCM16 WAV container. Stereo input is
// downmixed. Non-data chunks between fmt and data are skipped.
func ParseWAV(data []byte) (Clip, error) {
	if len(data) < 12 {
		return Clip{}, fmt.Errorf("%w: wav too short (%d bytes)", shared.ErrDecode, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("%w: not a RIFF/WAVE container", shared.ErrDecode)
	}

	var (
		channels   uint16
		sampleRate uint32
		bits       uint16
		haveFmt    bool
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if body+16 > len(data) {
				return Clip{}, fmt.Errorf("%w: truncated fmt chunk", shared.ErrDecode)
			}
			if format := binary.LittleEndian.Uint16(data[body:]); format != 1 {
				return Clip{}, fmt.Errorf("%w: unsupported wav format %d", shared.ErrDecode, format)
			}
			channels = binary.LittleEndian.Uint16(data[body+2:])
			sampleRate = binary.LittleEndian.Uint32(data[body+4:])
			bits = binary.LittleEndian.Uint16(data[body+14:])
			haveFmt = true
		case "data":
			if !haveFmt {
				return Clip{}, fmt.Errorf("%w: data chunk before fmt", shared.ErrDecode)
			}
			if bits != 16 || channels == 0 || channels > 2 || sampleRate == 0 {
				return Clip{}, fmt.Errorf("%w: unsupported wav layout (%d ch, %d bit)", shared.ErrDecode, channels, bits)
			}
			end := body + size
			if end > len(data) {
				end = len(data)
			}
			samples := PCMBytesToInt16(data[body:end])
			if channels == 2 {
				samples = downmix(samples)
			}
			return Clip{Samples: samples, SampleRate: int(sampleRate)}, nil
		}

		pos = body + size + size%2
	}

	return Clip{}, fmt.Errorf("%w: missing data chunk", shared.ErrDecode)
}

func downmix(interleaved []int16) []int16 {
	out := make([]int16, len(interleaved)/2)
	for i := range out {
		out[i] = int16((int32(interleaved[2*i]) + int32(interleaved[2*i+1])) / 2)
	}
	return out
}
