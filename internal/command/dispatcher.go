// Package command executes remote vehicle commands with optimistic
// acknowledgement: the requested state is assumed to hold until the next
// telemetry snapshot confirms or corrects it.
package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/bydgazer/internal/api/byd"
	"github.com/langchou/bydgazer/internal/coordinator"
	"github.com/langchou/bydgazer/internal/session"
)

// ErrCommandUnsupported is returned for commands the cloud has already
// rejected as unsupported for this vehicle.
var ErrCommandUnsupported = errors.New("command not supported by vehicle")

// ErrUnknownCommand is returned for command names outside the known set.
var ErrUnknownCommand = errors.New("unknown command")

// Params carries the optional arguments of parameterized commands.
// Zero values fall back to sensible defaults.
type Params struct {
	TargetTemp  float64 `json:"target_temp,omitempty"`
	DurationMin int     `json:"duration_min,omitempty"`
	Seat        int     `json:"seat,omitempty"`
	Level       int     `json:"level,omitempty"`
}

const (
	defaultClimateTemp     = 22.0
	defaultClimateDuration = 15
)

// Outcome describes a dispatched command.
type Outcome struct {
	Command string `json:"command"`
	// Accepted means the cloud acknowledged the command. It stays true
	// for soft rejections: the cloud answered but flagged the control
	// state, which in practice still executes more often than not.
	Accepted bool `json:"accepted"`
	// SoftRejected marks a success=false answer that was kept optimistic
	// instead of rolled back.
	SoftRejected  bool      `json:"soft_rejected,omitempty"`
	ControlState  int       `json:"control_state,omitempty"`
	RequestSerial string    `json:"request_serial,omitempty"`
	DispatchedAt  time.Time `json:"dispatched_at"`
}

// Dispatcher runs remote commands through the session gateway and tracks
// which commands are optimistically pending per vehicle. Pending marks
// are cleared by the next published telemetry snapshot, which carries
// the authoritative state.
type Dispatcher struct {
	logger  *zap.Logger
	gateway *session.Gateway
	account *coordinator.Account

	mu      sync.Mutex
	pending map[string]map[string]time.Time
}

// NewDispatcher creates a dispatcher wired to the account's snapshot
// stream for pending-flag clearing.
func NewDispatcher(logger *zap.Logger, gateway *session.Gateway, account *coordinator.Account) *Dispatcher {
	d := &Dispatcher{
		logger:  logger,
		gateway: gateway,
		account: account,
		pending: make(map[string]map[string]time.Time),
	}
	account.OnSnapshot(func(vin string, _ *coordinator.Snapshot) {
		d.clearPending(vin)
	})
	return d
}

// Dispatch executes a named command for a vehicle. On success and on a
// soft rejection the command stays pending and a forced refresh is
// scheduled; every other failure rolls the pending mark back.
func (d *Dispatcher) Dispatch(ctx context.Context, vin, command string, params Params) (*Outcome, error) {
	handler, err := buildHandler(vin, command, params)
	if err != nil {
		return nil, err
	}
	if !d.gateway.IsCommandSupported(vin, command) {
		return nil, fmt.Errorf("%w: %s", ErrCommandUnsupported, command)
	}

	d.markPending(vin, command)

	res, err := d.gateway.CallCommand(ctx, vin, command, handler)
	if err != nil {
		if byd.IsControlRejected(err) {
			// The cloud answered but flagged the request. Empirically the
			// command usually executes anyway, so keep the optimistic
			// state and let the next snapshot settle it.
			d.logger.Warn("command soft-rejected, keeping optimistic state",
				zap.String("vin", shortVIN(vin)),
				zap.String("command", command),
				zap.Error(err))
			outcome := d.outcome(command, res, true)
			d.forceRefresh(vin)
			return outcome, nil
		}

		d.rollbackPending(vin, command)
		if byd.IsUnsupported(err) {
			return nil, fmt.Errorf("%w: %s", ErrCommandUnsupported, command)
		}
		return nil, fmt.Errorf("dispatch %s for %s: %w", command, shortVIN(vin), err)
	}

	d.logger.Info("command dispatched",
		zap.String("vin", shortVIN(vin)),
		zap.String("command", command))
	outcome := d.outcome(command, res, false)
	d.forceRefresh(vin)
	return outcome, nil
}

func (d *Dispatcher) outcome(command string, res *byd.RemoteControlResult, soft bool) *Outcome {
	out := &Outcome{
		Command:      command,
		Accepted:     true,
		SoftRejected: soft,
		DispatchedAt: time.Now().UTC(),
	}
	if res != nil {
		out.ControlState = res.ControlState
		out.RequestSerial = res.RequestSerial
	}
	return out
}

func (d *Dispatcher) forceRefresh(vin string) {
	if err := d.account.ForceRefresh(vin); err != nil {
		d.logger.Debug("post-command refresh skipped", zap.Error(err))
	}
}

// IsSupported reports command availability without a network call.
func (d *Dispatcher) IsSupported(vin, command string) bool {
	return d.gateway.IsCommandSupported(vin, command)
}

// Pending lists the commands still awaiting snapshot confirmation.
func (d *Dispatcher) Pending(vin string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.pending[vin]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}

func (d *Dispatcher) markPending(vin, command string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.pending[vin]
	if !ok {
		set = make(map[string]time.Time)
		d.pending[vin] = set
	}
	set[command] = time.Now().UTC()
}

func (d *Dispatcher) rollbackPending(vin, command string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending[vin], command)
}

func (d *Dispatcher) clearPending(vin string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, vin)
}

// buildHandler maps a command name onto the client call that executes it.
func buildHandler(vin, command string, params Params) (session.CommandHandler, error) {
	switch command {
	case byd.CommandLock:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.Lock(ctx, vin)
		}, nil
	case byd.CommandUnlock:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.Unlock(ctx, vin)
		}, nil
	case byd.CommandStartClimate:
		temp := params.TargetTemp
		if temp == 0 {
			temp = defaultClimateTemp
		}
		duration := params.DurationMin
		if duration == 0 {
			duration = defaultClimateDuration
		}
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.StartClimate(ctx, vin, temp, duration)
		}, nil
	case byd.CommandStopClimate:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.StopClimate(ctx, vin)
		}, nil
	case byd.CommandBatteryHeatOn:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.SetBatteryHeat(ctx, vin, true)
		}, nil
	case byd.CommandBatteryHeatOff:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.SetBatteryHeat(ctx, vin, false)
		}, nil
	case byd.CommandSetSeatClimate:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.SetSeatClimate(ctx, vin, params.Seat, params.Level)
		}, nil
	case byd.CommandFlashLights:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.FlashLights(ctx, vin)
		}, nil
	case byd.CommandFindCar:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.FindCar(ctx, vin)
		}, nil
	case byd.CommandCloseWindows:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.CloseWindows(ctx, vin)
		}, nil
	case byd.CommandHonkHorn:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.HonkHorn(ctx, vin)
		}, nil
	case byd.CommandCarOn:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.SetCarPower(ctx, vin, true)
		}, nil
	case byd.CommandCarOff:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.SetCarPower(ctx, vin, false)
		}, nil
	case byd.CommandSteeringWheelHeatOn:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.SetSteeringWheelHeat(ctx, vin, true)
		}, nil
	case byd.CommandSteeringWheelHeatOff:
		return func(ctx context.Context, c byd.Client) (*byd.RemoteControlResult, error) {
			return c.SetSteeringWheelHeat(ctx, vin, false)
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
}

func shortVIN(vin string) string {
	if len(vin) <= 6 {
		return vin
	}
	return vin[len(vin)-6:]
}
