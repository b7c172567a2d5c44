package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/bydgazer/internal/api/byd"
)

const vehicleOnState = 1

func testVehicle() *byd.Vehicle {
	return &byd.Vehicle{VIN: "LGXC76C40N0123456", ModelName: "Seal"}
}

func TestMergeTelemetryAllFresh(t *testing.T) {
	now := time.Now().UTC()
	fresh := fetchResult{
		Realtime: &byd.Realtime{VehicleState: 0},
		Energy:   &byd.Energy{},
		Hvac:     &byd.Hvac{IsOn: true},
		Charging: &byd.Charging{IsConnected: true},
	}

	snap, err := mergeTelemetry(testVehicle(), fresh, nil, vehicleOnState, now)
	require.NoError(t, err)
	assert.Same(t, fresh.Realtime, snap.Realtime)
	assert.Same(t, fresh.Hvac, snap.Hvac)
	assert.Same(t, fresh.Charging, snap.Charging)
	assert.Equal(t, now, snap.UpdatedAt)
	assert.Empty(t, snap.Failures)
}

func TestMergeTelemetryFallsBackToCachedRealtime(t *testing.T) {
	previous := &Snapshot{
		Realtime: &byd.Realtime{VehicleState: 0},
		Energy:   &byd.Energy{},
	}
	fresh := fetchResult{
		Charging: &byd.Charging{},
		Failures: map[string]string{"realtime": "boom", "energy": "boom"},
	}

	snap, err := mergeTelemetry(testVehicle(), fresh, previous, vehicleOnState, time.Now().UTC())
	require.NoError(t, err)
	assert.Same(t, previous.Realtime, snap.Realtime)
	assert.Same(t, previous.Energy, snap.Energy)
	assert.Same(t, fresh.Charging, snap.Charging)
	assert.Contains(t, snap.Failures, "realtime")
}

func TestMergeTelemetryHvacFallbackOnlyWhileOn(t *testing.T) {
	previous := &Snapshot{Hvac: &byd.Hvac{IsOn: true}}

	// Vehicle on: stale HVAC is carried over.
	on := fetchResult{Realtime: &byd.Realtime{VehicleState: vehicleOnState}}
	snap, err := mergeTelemetry(testVehicle(), on, previous, vehicleOnState, time.Now().UTC())
	require.NoError(t, err)
	assert.Same(t, previous.Hvac, snap.Hvac)

	// Vehicle off: stale HVAC is dropped.
	off := fetchResult{Realtime: &byd.Realtime{VehicleState: 0}}
	snap, err = mergeTelemetry(testVehicle(), off, previous, vehicleOnState, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, snap.Hvac)
}

func TestMergeTelemetryFailsWithoutAnyData(t *testing.T) {
	_, err := mergeTelemetry(testVehicle(), fetchResult{}, nil, vehicleOnState, time.Now().UTC())
	assert.ErrorIs(t, err, errNothingFetched)
}

func TestMergeTelemetryFailsWithoutRealtime(t *testing.T) {
	previous := &Snapshot{Energy: &byd.Energy{}}
	fresh := fetchResult{Energy: &byd.Energy{}}

	_, err := mergeTelemetry(testVehicle(), fresh, previous, vehicleOnState, time.Now().UTC())
	assert.ErrorIs(t, err, errNoRealtime)
}

func TestMergeTelemetryServesCacheWhenNothingFetched(t *testing.T) {
	previous := &Snapshot{
		Realtime: &byd.Realtime{VehicleState: 0},
		Charging: &byd.Charging{},
	}

	snap, err := mergeTelemetry(testVehicle(), fetchResult{}, previous, vehicleOnState, time.Now().UTC())
	require.NoError(t, err)
	assert.Same(t, previous.Realtime, snap.Realtime)
	assert.Same(t, previous.Charging, snap.Charging)
}

func TestIsVehicleOn(t *testing.T) {
	assert.Nil(t, isVehicleOn(nil, vehicleOnState))

	on := isVehicleOn(&byd.Realtime{VehicleState: vehicleOnState}, vehicleOnState)
	require.NotNil(t, on)
	assert.True(t, *on)

	off := isVehicleOn(&byd.Realtime{VehicleState: 2}, vehicleOnState)
	require.NotNil(t, off)
	assert.False(t, *off)
}
