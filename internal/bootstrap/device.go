package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/voice-widget/internal/capture"
	"github.com/eleven-am/voice-widget/internal/device"
	"go.uber.org/fx"
)

// HardwareBackend builds the sound-card backend. It is supplied by the
// binary so that cgo stays out of this package.
type HardwareBackend func(*slog.Logger) device.Backend

func ProvideBackend(cfg *Config, hw HardwareBackend, log *slog.Logger) device.Backend {
	if cfg.AudioBackend == "memory" || hw == nil {
		log.Info("using in-memory audio backend", "sample_rate", cfg.CaptureSampleRate)
		return device.NewMemoryBackend(cfg.CaptureSampleRate)
	}
	return hw(log)
}

func ProvidePlatform(cfg *Config) device.Platform {
	return device.ParsePlatform(cfg.Platform)
}

// ProvideDeviceClass honours DEVICE_CLASS and otherwise derives the class
// from the platform.
func ProvideDeviceClass(cfg *Config, platform device.Platform) device.Class {
	if cfg.DeviceClass != "" {
		return device.ParseClass(cfg.DeviceClass)
	}
	return platform.DefaultClass()
}

func ProvideRegistry(lc fx.Lifecycle, backend device.Backend, platform device.Platform, log *slog.Logger) *device.Registry {
	reg := device.NewRegistry(backend, platform, log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return reg.Release()
		},
	})
	return reg
}

func ProvideInputConfig(cfg *Config) device.InputConfig {
	in := device.DefaultInputConfig()
	if cfg.CaptureSampleRate > 0 {
		in.SampleRate = cfg.CaptureSampleRate
	}
	return in
}

func ProvideCaptureSource(lc fx.Lifecycle, reg *device.Registry, in device.InputConfig, log *slog.Logger) *capture.Source {
	src := capture.NewSource(reg, in, log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			src.Shutdown()
			return nil
		},
	})
	return src
}

var DeviceModule = fx.Options(
	fx.Provide(
		ProvideBackend,
		ProvidePlatform,
		ProvideDeviceClass,
		ProvideRegistry,
		ProvideInputConfig,
		ProvideCaptureSource,
		device.NewSpeaker,
	),
)
