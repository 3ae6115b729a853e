package venue

import (
	"fmt"
	"math"
)

// normalizeVolume floors volume to the symbol's volume step and checks it
// against the min/max bounds. Rules with a zero step leave volume untouched.
func normalizeVolume(info *SymbolInfo, volume float64) (float64, error) {
	if info == nil {
		return volume, nil
	}

	normalized := volume
	if info.VolumeStep > 0 {
		// Count decimals in the step so 0.01 -> 2, 1 -> 0, 0.1 -> 1.
		precision := 0
		for step := info.VolumeStep; step < 1 && precision < 8; step *= 10 {
			precision++
		}
		multiplier := math.Pow(10, float64(precision))
		steps := math.Floor(volume/info.VolumeStep + 1e-9)
		normalized = math.Round(steps*info.VolumeStep*multiplier) / multiplier
	}

	if info.VolumeMin > 0 && normalized < info.VolumeMin {
		return 0, fmt.Errorf("volume %.4f is below the minimum %.4f for %s", volume, info.VolumeMin, info.Name)
	}
	if info.VolumeMax > 0 && normalized > info.VolumeMax {
		return 0, fmt.Errorf("volume %.4f is above the maximum %.4f for %s", volume, info.VolumeMax, info.Name)
	}
	return normalized, nil
}
