package venue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVolume(t *testing.T) {
	info := &SymbolInfo{Name: "XAUUSD", VolumeMin: 0.01, VolumeMax: 50, VolumeStep: 0.01}

	tests := []struct {
		name    string
		volume  float64
		want    float64
		wantErr string
	}{
		{name: "on step", volume: 0.02, want: 0.02},
		{name: "floored to step", volume: 0.029, want: 0.02},
		{name: "below minimum", volume: 0.005, wantErr: "below the minimum"},
		{name: "above maximum", volume: 51, wantErr: "above the maximum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeVolume(info, tt.volume)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestNormalizeVolume_NoRules(t *testing.T) {
	got, err := normalizeVolume(nil, 0.123)
	assert.NoError(t, err)
	assert.Equal(t, 0.123, got)

	got, err = normalizeVolume(&SymbolInfo{VolumeStep: 1, VolumeMin: 1}, 2.7)
	assert.NoError(t, err)
	assert.Equal(t, 2.0, got)
}
