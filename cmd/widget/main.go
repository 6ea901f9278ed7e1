package main

import (
	"log/slog"

	"github.com/eleven-am/voice-widget/internal/bootstrap"
	"github.com/eleven-am/voice-widget/internal/device"
	"github.com/eleven-am/voice-widget/internal/device/portaudio"
)

func main() {
	bootstrap.Run(func(log *slog.Logger) device.Backend {
		return portaudio.New(log)
	})
}
