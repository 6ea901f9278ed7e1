package audio

import (
	"errors"
	"testing"

	"github.com/eleven-am/voice-widget/internal/shared"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", DefaultFormat, false},
		{"pcm_16000", Format{Codec: CodecPCM, SampleRate: 16000}, false},
		{"pcm_44100", Format{Codec: CodecPCM, SampleRate: 44100}, false},
		{"mp3_44100_128", Format{Codec: CodecMP3, SampleRate: 44100, Bitrate: 128}, false},
		{"ulaw_8000", Format{Codec: CodecULaw, SampleRate: 8000}, false},
		{"opus_48000", Format{}, true},
		{"pcm", Format{}, true},
		{"pcm_abc", Format{}, true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestFormat_String(t *testing.T) {
	if s := (Format{Codec: CodecMP3, SampleRate: 44100, Bitrate: 128}).String(); s != "mp3_44100_128" {
		t.Errorf("unexpected %s", s)
	}
	if s := DefaultFormat.String(); s != "pcm_16000" {
		t.Errorf("unexpected %s", s)
	}
}

func TestDecodeFragment_PCM(t *testing.T) {
	clip, err := DecodeFragment(Int16ToBytes([]int16{5, -5}), Format{Codec: CodecPCM, SampleRate: 22050})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clip.SampleRate != 22050 || len(clip.Samples) != 2 || clip.Samples[1] != -5 {
		t.Errorf("unexpected clip %+v", clip)
	}
}

func TestDecodeFragment_ULaw(t *testing.T) {
	clip, err := DecodeFragment([]byte{0xFF, 0x7F, 0x00, 0x80}, Format{Codec: CodecULaw, SampleRate: 8000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clip.Samples[0] != 0 || clip.Samples[1] != 0 {
		t.Errorf("0xFF and 0x7F should decode to silence, got %v", clip.Samples[:2])
	}
	if clip.Samples[2] != -32124 || clip.Samples[3] != 32124 {
		t.Errorf("unexpected extremes %v", clip.Samples[2:])
	}
}

func TestDecodeFragment_Errors(t *testing.T) {
	if _, err := DecodeFragment(nil, DefaultFormat); !errors.Is(err, shared.ErrDecode) {
		t.Errorf("empty fragment should be ErrDecode, got %v", err)
	}
	if _, err := DecodeFragment([]byte("not an mp3 stream"), Format{Codec: CodecMP3, SampleRate: 44100}); !errors.Is(err, shared.ErrDecode) {
		t.Errorf("garbage mp3 should be ErrDecode, got %v", err)
	}
}
