//go:build portaudio

package main

import (
	"log/slog"

	"github.com/brightclean/callbridge/internal/config"
	"github.com/brightclean/callbridge/pkg/audio"
	"github.com/brightclean/callbridge/pkg/audio/portaudio"
)

// openDevices binds the microphone and speaker through PortAudio. The bridge
// sends mono audio at the wire rate, which the sink resamples to
// output_sample_rate.
func openDevices(cfg *config.Config) (audio.Microphone, audio.Sink, error) {
	out := audio.Format{SampleRate: cfg.Audio.OutputSampleRate, Channels: 1}
	sink, err := portaudio.NewSink(cfg.Audio.OutputDevice, audio.WireFormat, out, cfg.Audio.BlockSize)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("using portaudio devices",
		"input", deviceName(cfg.Audio.InputDevice),
		"output", deviceName(cfg.Audio.OutputDevice),
		"output_format", out.String(),
	)
	return portaudio.Microphone{Device: cfg.Audio.InputDevice}, sink, nil
}

func deviceName(n string) string {
	if n == "" {
		return "default"
	}
	return n
}
