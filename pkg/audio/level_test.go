package audio_test

import (
	"math"
	"testing"

	"github.com/brightclean/callbridge/pkg/audio"
)

func TestLevelOf(t *testing.T) {
	full := make([]float32, 256)
	for i := range full {
		full[i] = 1
		if i%2 == 1 {
			full[i] = -1
		}
	}
	quiet := make([]float32, 256)
	for i := range quiet {
		quiet[i] = 0.0001 // -80 dBFS
	}
	sine := make([]float32, 1600)
	for i := range sine {
		sine[i] = float32(0.1 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}

	tests := []struct {
		name     string
		samples  []float32
		min, max float64
	}{
		{"empty", nil, 0, 0},
		{"silence", make([]float32, 128), 0, 0},
		{"below floor", quiet, 0, 0},
		{"full scale", full, 100, 100},
		{"speech level", sine, 55, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := audio.LevelOf(tt.samples)
			if got < tt.min || got > tt.max {
				t.Errorf("LevelOf = %.2f, want in [%v, %v]", got, tt.min, tt.max)
			}
		})
	}
}
