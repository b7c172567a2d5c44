package coordinator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/langchou/bydgazer/internal/api/byd"
	"github.com/langchou/bydgazer/internal/freshness"
	"github.com/langchou/bydgazer/internal/session"
)

// ErrUnknownVehicle is returned for VINs not owned by this account.
var ErrUnknownVehicle = fmt.Errorf("unknown vehicle")

// AccountConfig carries the polling settings applied to every vehicle.
type AccountConfig struct {
	Telemetry TelemetryConfig
	GPS       GPSConfig
}

type vehiclePair struct {
	telemetry *Telemetry
	gps       *GPS
}

// Account owns the discovered vehicles of one BYD account and runs a
// telemetry and a GPS coordinator per VIN. All cloud traffic flows
// through the shared session gateway, so the per-vehicle loops never
// overlap on the wire.
type Account struct {
	logger  *zap.Logger
	gateway *session.Gateway
	tracker *freshness.Tracker
	cfg     AccountConfig

	mu       sync.Mutex
	vehicles []byd.Vehicle
	pairs    map[string]*vehiclePair
	started  bool

	snapshotListeners []Listener
	positionListeners []GPSListener
}

// NewAccount creates an account coordinator. Call Discover before Start.
func NewAccount(logger *zap.Logger, gateway *session.Gateway, tracker *freshness.Tracker, cfg AccountConfig) *Account {
	return &Account{
		logger:  logger,
		gateway: gateway,
		tracker: tracker,
		cfg:     cfg,
		pairs:   make(map[string]*vehiclePair),
	}
}

// OnSnapshot registers an account-wide listener for telemetry snapshots.
// Applies to already-discovered vehicles and to any discovered later.
func (a *Account) OnSnapshot(fn Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshotListeners = append(a.snapshotListeners, fn)
	for _, p := range a.pairs {
		p.telemetry.Subscribe(fn)
	}
}

// OnPosition registers an account-wide listener for GPS positions.
func (a *Account) OnPosition(fn GPSListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positionListeners = append(a.positionListeners, fn)
	for _, p := range a.pairs {
		p.gps.Subscribe(fn)
	}
}

// Discover fetches the vehicle list and builds coordinators for VINs not
// seen before. Safe to call repeatedly; existing coordinators are kept.
func (a *Account) Discover(ctx context.Context) ([]byd.Vehicle, error) {
	res, err := a.gateway.Call(ctx, func(ctx context.Context, client byd.Client) (any, error) {
		return client.GetVehicles(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("discover vehicles: %w", err)
	}
	vehicles, ok := res.([]byd.Vehicle)
	if !ok {
		return nil, fmt.Errorf("unexpected vehicle list type %T", res)
	}
	if len(vehicles) == 0 {
		a.logger.Warn("account has no vehicles")
	}

	a.mu.Lock()
	a.vehicles = vehicles
	started := a.started
	var fresh []*vehiclePair
	for _, v := range vehicles {
		if _, exists := a.pairs[v.VIN]; exists {
			continue
		}
		telemetry := NewTelemetry(a.logger, a.gateway, a.tracker, v, a.cfg.Telemetry)
		gps := NewGPS(a.logger, a.gateway, a.tracker, v.VIN, telemetry, a.cfg.GPS)
		for _, fn := range a.snapshotListeners {
			telemetry.Subscribe(fn)
		}
		for _, fn := range a.positionListeners {
			gps.Subscribe(fn)
		}
		p := &vehiclePair{telemetry: telemetry, gps: gps}
		a.pairs[v.VIN] = p
		fresh = append(fresh, p)
		a.logger.Info("vehicle discovered",
			zap.String("vin", shortVIN(v.VIN)),
			zap.String("model", v.ModelName))
	}
	a.mu.Unlock()

	if started {
		for _, p := range fresh {
			p.telemetry.Start(ctx)
			p.gps.Start(ctx)
		}
	}
	return vehicles, nil
}

// Start launches all coordinator loops.
func (a *Account) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	pairs := a.pairList()
	a.mu.Unlock()

	for _, p := range pairs {
		p.telemetry.Start(ctx)
		p.gps.Start(ctx)
	}
}

// Stop halts all coordinator loops and waits for them to exit.
func (a *Account) Stop() {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.started = false
	pairs := a.pairList()
	a.mu.Unlock()

	for _, p := range pairs {
		p.telemetry.Stop()
		p.gps.Stop()
	}
}

func (a *Account) pairList() []*vehiclePair {
	pairs := make([]*vehiclePair, 0, len(a.pairs))
	for _, p := range a.pairs {
		pairs = append(pairs, p)
	}
	return pairs
}

// Vehicles returns the last discovered vehicle list.
func (a *Account) Vehicles() []byd.Vehicle {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]byd.Vehicle, len(a.vehicles))
	copy(out, a.vehicles)
	return out
}

func (a *Account) pair(vin string) (*vehiclePair, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pairs[vin]
	return p, ok
}

// Telemetry returns the telemetry coordinator for a VIN.
func (a *Account) Telemetry(vin string) (*Telemetry, error) {
	p, ok := a.pair(vin)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVehicle, shortVIN(vin))
	}
	return p.telemetry, nil
}

// GPS returns the position coordinator for a VIN.
func (a *Account) GPS(vin string) (*GPS, error) {
	p, ok := a.pair(vin)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVehicle, shortVIN(vin))
	}
	return p.gps, nil
}

// ForceRefresh requests out-of-band telemetry and position fetches.
func (a *Account) ForceRefresh(vin string) error {
	p, ok := a.pair(vin)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVehicle, shortVIN(vin))
	}
	p.telemetry.ForceRefresh()
	p.gps.ForceRefresh()
	return nil
}

// SetPollingEnabled pauses or resumes both loops of one vehicle. Cached
// data keeps being served while paused.
func (a *Account) SetPollingEnabled(vin string, enabled bool) error {
	p, ok := a.pair(vin)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVehicle, shortVIN(vin))
	}
	p.telemetry.SetPollingEnabled(enabled)
	p.gps.SetPollingEnabled(enabled)
	a.logger.Info("vehicle polling toggled",
		zap.String("vin", shortVIN(vin)), zap.Bool("enabled", enabled))
	return nil
}

// CombinedSnapshot merges the telemetry snapshot with the latest GPS
// position into one view for the API surface. Returns nil when no
// telemetry cycle has completed yet.
func (a *Account) CombinedSnapshot(vin string) (*Snapshot, error) {
	p, ok := a.pair(vin)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVehicle, shortVIN(vin))
	}
	snap := p.telemetry.Snapshot()
	if snap == nil {
		return nil, nil
	}
	combined := *snap
	combined.Gps = p.gps.Position()
	return &combined, nil
}
