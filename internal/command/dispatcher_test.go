package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/bydgazer/internal/api/byd"
	"github.com/langchou/bydgazer/internal/api/byd/bydtest"
	"github.com/langchou/bydgazer/internal/coordinator"
	"github.com/langchou/bydgazer/internal/freshness"
	"github.com/langchou/bydgazer/internal/session"
)

const testVIN = "LGXC76C40N0123456"

func newTestDispatcher(t *testing.T, client *bydtest.Client) (*Dispatcher, *coordinator.Account) {
	t.Helper()
	gateway := session.NewGateway(zap.NewNop(), func() (byd.Client, error) {
		return client, nil
	})
	account := coordinator.NewAccount(zap.NewNop(), gateway, freshness.NewTracker(), coordinator.AccountConfig{
		Telemetry: coordinator.TelemetryConfig{
			PollInterval:     300 * time.Second,
			ActiveInterval:   60 * time.Second,
			InactiveInterval: 300 * time.Second,
			VehicleOnState:   1,
		},
		GPS: coordinator.GPSConfig{Interval: 300 * time.Second},
	})
	d := NewDispatcher(zap.NewNop(), gateway, account)

	client.GetVehiclesFunc = func(ctx context.Context) ([]byd.Vehicle, error) {
		return []byd.Vehicle{{VIN: testVIN, ModelName: "Seal"}}, nil
	}
	_, err := account.Discover(context.Background())
	require.NoError(t, err)
	return d, account
}

func TestDispatchSuccess(t *testing.T) {
	client := &bydtest.Client{}
	d, _ := newTestDispatcher(t, client)

	out, err := d.Dispatch(context.Background(), testVIN, byd.CommandLock, Params{})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, out.Accepted)
	assert.False(t, out.SoftRejected)
	assert.Equal(t, byd.CommandLock, out.Command)
	assert.Equal(t, 1, client.CallCount(byd.CommandLock))
	assert.Contains(t, d.Pending(testVIN), byd.CommandLock)
}

func TestDispatchSoftRejectionStaysOptimistic(t *testing.T) {
	client := &bydtest.Client{
		ControlFunc: func(ctx context.Context, command, vin string) (*byd.RemoteControlResult, error) {
			res := &byd.RemoteControlResult{Success: false, ControlState: 2, RequestSerial: "xyz"}
			return res, byd.NewRemoteError(byd.KindControlRejected, "control state 2", nil)
		},
	}
	d, _ := newTestDispatcher(t, client)

	out, err := d.Dispatch(context.Background(), testVIN, byd.CommandUnlock, Params{})
	require.NoError(t, err, "a soft rejection is not an error for the caller")
	require.NotNil(t, out)
	assert.True(t, out.Accepted)
	assert.True(t, out.SoftRejected)
	assert.Equal(t, 2, out.ControlState)
	assert.Equal(t, "xyz", out.RequestSerial)
	assert.Contains(t, d.Pending(testVIN), byd.CommandUnlock, "optimistic state is kept")
}

func TestDispatchHardFailureRollsBackPending(t *testing.T) {
	client := &bydtest.Client{
		ControlFunc: func(ctx context.Context, command, vin string) (*byd.RemoteControlResult, error) {
			return nil, byd.NewRemoteError(byd.KindRateLimit, "throttled", nil)
		},
	}
	d, _ := newTestDispatcher(t, client)

	_, err := d.Dispatch(context.Background(), testVIN, byd.CommandFlashLights, Params{})
	require.Error(t, err)
	assert.Empty(t, d.Pending(testVIN), "failed command leaves nothing pending")
}

func TestDispatchUnsupportedShortCircuits(t *testing.T) {
	client := &bydtest.Client{
		ControlFunc: func(ctx context.Context, command, vin string) (*byd.RemoteControlResult, error) {
			return nil, byd.NewRemoteError(byd.KindUnsupported, "not available", nil)
		},
	}
	d, _ := newTestDispatcher(t, client)

	_, err := d.Dispatch(context.Background(), testVIN, byd.CommandBatteryHeatOn, Params{})
	assert.ErrorIs(t, err, ErrCommandUnsupported)
	assert.Equal(t, 1, client.CallCount(byd.CommandBatteryHeatOn))

	// The rejection is remembered: no second network call.
	_, err = d.Dispatch(context.Background(), testVIN, byd.CommandBatteryHeatOn, Params{})
	assert.ErrorIs(t, err, ErrCommandUnsupported)
	assert.Equal(t, 1, client.CallCount(byd.CommandBatteryHeatOn))

	// The paired opposite is hidden as well.
	assert.False(t, d.IsSupported(testVIN, byd.CommandBatteryHeatOff))
}

func TestDispatchUnknownCommand(t *testing.T) {
	client := &bydtest.Client{}
	d, _ := newTestDispatcher(t, client)

	_, err := d.Dispatch(context.Background(), testVIN, "warp_drive", Params{})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDispatchClimateDefaults(t *testing.T) {
	client := &bydtest.Client{}
	d, _ := newTestDispatcher(t, client)

	out, err := d.Dispatch(context.Background(), testVIN, byd.CommandStartClimate, Params{})
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, 1, client.CallCount(byd.CommandStartClimate))
}

func TestPendingClearedByNextSnapshot(t *testing.T) {
	client := &bydtest.Client{}
	d, account := newTestDispatcher(t, client)

	_, err := d.Dispatch(context.Background(), testVIN, byd.CommandLock, Params{})
	require.NoError(t, err)
	require.Contains(t, d.Pending(testVIN), byd.CommandLock)

	tel, err := account.Telemetry(testVIN)
	require.NoError(t, err)
	require.NoError(t, tel.Refresh(context.Background()))

	assert.Empty(t, d.Pending(testVIN), "snapshot publication settles pending commands")
}
