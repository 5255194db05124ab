package opl

import (
	"errors"
	"fmt"
	"math"
)

// OPL3 master clock / 288.
const chipRate = 49716.0

// fnumBlock returns the F-number and block for a (fractional) MIDI key.
func fnumBlock(key float64) (fnum uint16, block uint8) {
	hz := 440 * math.Pow(2, (key-69)/12)
	for block = 0; block < 7; block++ {
		f := hz * float64(uint32(1)<<(20-block)) / chipRate
		if f < 1024 {
			return uint16(math.Round(math.Min(f, 1023))), block
		}
	}
	f := hz * float64(uint32(1)<<13) / chipRate
	return uint16(math.Round(math.Min(f, 1023))), 7
}

// -------------------- Volume models --------------------

var ErrVolumeModel = errors.New("opl: unknown volume model")

// VolumeModel maps velocity, volume and expression to operator attenuation.
type VolumeModel string

const (
	VolumeGeneric VolumeModel = "generic"
	VolumeLinear  VolumeModel = "linear"
)

// VolumeModels lists the accepted models in display order.
var VolumeModels = []VolumeModel{VolumeGeneric, VolumeLinear}

// ParseVolumeModel returns the named model or ErrVolumeModel.
func ParseVolumeModel(s string) (VolumeModel, error) {
	for _, m := range VolumeModels {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrVolumeModel, s)
}

// attenuation converts velocity, channel volume and expression (all 0-127)
// into a total-level offset in 0.75 dB steps, 0..63.
func (m VolumeModel) attenuation(vel, vol, expr uint8) uint8 {
	level := float64(vel) * float64(vol) * float64(expr) / (127 * 127 * 127)
	if level <= 0 {
		return 63
	}
	var att float64
	switch m {
	case VolumeLinear:
		att = 63 * (1 - level)
	default:
		att = -20 * math.Log10(level) / 0.75
	}
	return uint8(math.Min(63, math.Max(0, math.Round(att))))
}
