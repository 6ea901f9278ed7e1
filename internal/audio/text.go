package audio

import (
	"encoding/base64"
	"log/slog"
)

func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 never fails: malformed input yields an empty payload.
func DecodeBase64(text string) []byte {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		slog.Warn("discarding malformed base64 payload", "length", len(text), "error", err)
		return []byte{}
	}
	return data
}
