//go:build darwin

package smc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPower(t *testing.T) {
	tests := []struct {
		name         string
		keys         map[string][]byte
		want         Power
		wantAC       bool
		wantCharging bool
	}{
		{
			name:         "charging",
			keys:         map[string][]byte{keyBatteryCharge: {73}, keyACPower: {1}, keyChargeInhibit: {0}, keyAdapterOff: {0}},
			want:         Power{Charge: 73, PluggedIn: true, ChargingAllowed: true, AdapterEnabled: true},
			wantAC:       true,
			wantCharging: true,
		},
		{
			name:   "charge inhibited",
			keys:   map[string][]byte{keyBatteryCharge: {80}, keyACPower: {1}, keyChargeInhibit: {2}, keyAdapterOff: {0}},
			want:   Power{Charge: 80, PluggedIn: true, AdapterEnabled: true},
			wantAC: true,
		},
		{
			name: "adapter disabled",
			keys: map[string][]byte{keyBatteryCharge: {80}, keyACPower: {1}, keyChargeInhibit: {0}, keyAdapterOff: {8}},
			want: Power{Charge: 80, PluggedIn: true, ChargingAllowed: true},
		},
		{
			name:   "no adapter key",
			keys:   map[string][]byte{keyBatteryCharge: {100}, keyACPower: {1}, keyChargeInhibit: {0}},
			want:   Power{Charge: 100, PluggedIn: true, ChargingAllowed: true, AdapterEnabled: true},
			wantAC: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewMock(tt.keys).ReadPower()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantAC, got.OnACPower())
			assert.Equal(t, tt.wantCharging, got.Charging())
		})
	}
}

func TestReadPowerNoBattery(t *testing.T) {
	_, err := NewMock(map[string][]byte{keyACPower: {1}}).ReadPower()
	assert.Error(t, err)
}
