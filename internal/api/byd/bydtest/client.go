// Package bydtest provides a configurable in-memory Client for tests.
package bydtest

import (
	"context"
	"sync"

	"github.com/langchou/bydgazer/internal/api/byd"
)

// Client implements byd.Client with swappable function fields. Methods
// without an override return empty payloads. Every call is recorded.
type Client struct {
	mu     sync.Mutex
	calls  []string
	closed bool

	GetVehiclesFunc        func(ctx context.Context) ([]byd.Vehicle, error)
	GetVehicleRealtimeFunc func(ctx context.Context, vin string) (*byd.Realtime, error)
	GetEnergyFunc          func(ctx context.Context, vin string) (*byd.Energy, error)
	GetHvacFunc            func(ctx context.Context, vin string) (*byd.Hvac, error)
	GetChargingFunc        func(ctx context.Context, vin string) (*byd.Charging, error)
	GetGpsFunc             func(ctx context.Context, vin string) (*byd.Gps, error)
	ControlFunc            func(ctx context.Context, command, vin string) (*byd.RemoteControlResult, error)
}

var _ byd.Client = (*Client)(nil)

func (c *Client) record(name string) {
	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.mu.Unlock()
}

// Calls returns the method names invoked so far, in order.
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns how often one method was invoked.
func (c *Client) CallCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == name {
			n++
		}
	}
	return n
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) GetVehicles(ctx context.Context) ([]byd.Vehicle, error) {
	c.record("GetVehicles")
	if c.GetVehiclesFunc != nil {
		return c.GetVehiclesFunc(ctx)
	}
	return nil, nil
}

func (c *Client) GetVehicleRealtime(ctx context.Context, vin string) (*byd.Realtime, error) {
	c.record("GetVehicleRealtime")
	if c.GetVehicleRealtimeFunc != nil {
		return c.GetVehicleRealtimeFunc(ctx, vin)
	}
	return &byd.Realtime{}, nil
}

func (c *Client) GetEnergyConsumption(ctx context.Context, vin string) (*byd.Energy, error) {
	c.record("GetEnergyConsumption")
	if c.GetEnergyFunc != nil {
		return c.GetEnergyFunc(ctx, vin)
	}
	return &byd.Energy{}, nil
}

func (c *Client) GetHvacStatus(ctx context.Context, vin string) (*byd.Hvac, error) {
	c.record("GetHvacStatus")
	if c.GetHvacFunc != nil {
		return c.GetHvacFunc(ctx, vin)
	}
	return &byd.Hvac{}, nil
}

func (c *Client) GetChargingStatus(ctx context.Context, vin string) (*byd.Charging, error) {
	c.record("GetChargingStatus")
	if c.GetChargingFunc != nil {
		return c.GetChargingFunc(ctx, vin)
	}
	return &byd.Charging{}, nil
}

func (c *Client) GetGpsInfo(ctx context.Context, vin string) (*byd.Gps, error) {
	c.record("GetGpsInfo")
	if c.GetGpsFunc != nil {
		return c.GetGpsFunc(ctx, vin)
	}
	return &byd.Gps{}, nil
}

func (c *Client) control(ctx context.Context, command, vin string) (*byd.RemoteControlResult, error) {
	c.record(command)
	if c.ControlFunc != nil {
		return c.ControlFunc(ctx, command, vin)
	}
	return &byd.RemoteControlResult{Success: true}, nil
}

func (c *Client) Lock(ctx context.Context, vin string) (*byd.RemoteControlResult, error) {
	return c.control(ctx, byd.CommandLock, vin)
}

func (c *Client) Unlock(ctx context.Context, vin string) (*byd.RemoteControlResult, error) {
	return c.control(ctx, byd.CommandUnlock, vin)
}

func (c *Client) StartClimate(ctx context.Context, vin string, targetTemp float64, durationMin int) (*byd.RemoteControlResult, error) {
	return c.control(ctx, byd.CommandStartClimate, vin)
}

func (c *Client) StopClimate(ctx context.Context, vin string) (*byd.RemoteControlResult, error) {
	return c.control(ctx, byd.CommandStopClimate, vin)
}

func (c *Client) SetBatteryHeat(ctx context.Context, vin string, on bool) (*byd.RemoteControlResult, error) {
	if on {
		return c.control(ctx, byd.CommandBatteryHeatOn, vin)
	}
	return c.control(ctx, byd.CommandBatteryHeatOff, vin)
}

func (c *Client) SetSeatClimate(ctx context.Context, vin string, seat, level int) (*byd.RemoteControlResult, error) {
	return c.control(ctx, byd.CommandSetSeatClimate, vin)
}

func (c *Client) FlashLights(ctx context.Context, vin string) (*byd.RemoteControlResult, error) {
	return c.control(ctx, byd.CommandFlashLights, vin)
}

func (c *Client) FindCar(ctx context.Context, vin string) (*byd.RemoteControlResult, error) {
	return c.control(ctx, byd.CommandFindCar, vin)
}

func (c *Client) CloseWindows(ctx context.Context, vin string) (*byd.RemoteControlResult, error) {
	return c.control(ctx, byd.CommandCloseWindows, vin)
}

func (c *Client) HonkHorn(ctx context.Context, vin string) (*byd.RemoteControlResult, error) {
	return c.control(ctx, byd.CommandHonkHorn, vin)
}

func (c *Client) SetCarPower(ctx context.Context, vin string, on bool) (*byd.RemoteControlResult, error) {
	if on {
		return c.control(ctx, byd.CommandCarOn, vin)
	}
	return c.control(ctx, byd.CommandCarOff, vin)
}

func (c *Client) SetSteeringWheelHeat(ctx context.Context, vin string, on bool) (*byd.RemoteControlResult, error) {
	if on {
		return c.control(ctx, byd.CommandSteeringWheelHeatOn, vin)
	}
	return c.control(ctx, byd.CommandSteeringWheelHeatOff, vin)
}

func (c *Client) ToggleSmartCharging(ctx context.Context, vin string, enable bool) error {
	c.record("ToggleSmartCharging")
	return nil
}

func (c *Client) SaveChargingSchedule(ctx context.Context, vin string, cfg byd.SmartChargingConfig) error {
	c.record("SaveChargingSchedule")
	return nil
}

func (c *Client) RenameVehicle(ctx context.Context, vin, name string) error {
	c.record("RenameVehicle")
	return nil
}

func (c *Client) GetPushState(ctx context.Context, vin string) (*byd.PushNotificationState, error) {
	c.record("GetPushState")
	return &byd.PushNotificationState{}, nil
}

func (c *Client) SetPushState(ctx context.Context, vin string, enable bool) error {
	c.record("SetPushState")
	return nil
}

func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
