package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/bydgazer/internal/api/byd"
	"github.com/langchou/bydgazer/internal/freshness"
	"github.com/langchou/bydgazer/internal/session"
)

// TelemetryConfig tunes one vehicle's telemetry polling.
type TelemetryConfig struct {
	// PollInterval is the initial cadence before any freshness data
	// exists.
	PollInterval time.Duration
	// ActiveInterval is used while telemetry changed recently; it also
	// acts as the recency threshold for "recently".
	ActiveInterval time.Duration
	// InactiveInterval is used once telemetry has gone quiet.
	InactiveInterval time.Duration
	// VehicleOnState is the realtime vehicle_state value meaning "on".
	// Firmware revisions disagree on the mapping, so it is configured,
	// not hardcoded.
	VehicleOnState int
}

// Listener receives every published snapshot for a vehicle.
type Listener func(vin string, snap *Snapshot)

// Telemetry polls realtime, energy, HVAC and charging data for a single
// VIN and merges the results into one snapshot per cycle.
type Telemetry struct {
	logger  *zap.Logger
	gateway *session.Gateway
	tracker *freshness.Tracker
	vehicle byd.Vehicle
	vin     string
	cfg     TelemetryConfig

	lifecycle *lifecycle

	mu              sync.Mutex
	snap            *Snapshot
	currentInterval time.Duration
	pollingEnabled  bool
	forceNext       bool
	lastErr         error
	listeners       []Listener

	running bool
	stopCh  chan struct{}
	forceCh chan struct{}
	wg      sync.WaitGroup
}

// NewTelemetry creates a telemetry coordinator for one vehicle. Polling
// does not start until Start is called.
func NewTelemetry(logger *zap.Logger, gateway *session.Gateway, tracker *freshness.Tracker, vehicle byd.Vehicle, cfg TelemetryConfig) *Telemetry {
	return &Telemetry{
		logger:          logger,
		gateway:         gateway,
		tracker:         tracker,
		vehicle:         vehicle,
		vin:             vehicle.VIN,
		cfg:             cfg,
		lifecycle:       newLifecycle(),
		currentInterval: cfg.PollInterval,
		pollingEnabled:  true,
		forceCh:         make(chan struct{}, 1),
	}
}

// VIN returns the vehicle identification string.
func (t *Telemetry) VIN() string { return t.vin }

// Vehicle returns the immutable vehicle metadata.
func (t *Telemetry) Vehicle() byd.Vehicle { return t.vehicle }

// Subscribe registers a listener for published snapshots.
func (t *Telemetry) Subscribe(fn Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Start launches the polling loop.
func (t *Telemetry) Start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run(ctx)
}

// Stop halts the polling loop and waits for it to exit.
func (t *Telemetry) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	stopCh := t.stopCh
	t.mu.Unlock()

	close(stopCh)
	t.wg.Wait()
}

func (t *Telemetry) run(ctx context.Context) {
	defer t.wg.Done()

	t.mu.Lock()
	stopCh := t.stopCh
	t.mu.Unlock()

	if err := t.Refresh(ctx); err != nil {
		t.logger.Error("initial telemetry refresh failed",
			zap.String("vin", shortVIN(t.vin)), zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-t.forceCh:
		case <-time.After(t.CurrentInterval()):
		}
		if err := t.Refresh(ctx); err != nil {
			t.logger.Error("telemetry refresh failed",
				zap.String("vin", shortVIN(t.vin)), zap.Error(err))
		}
	}
}

// ForceRefresh requests an out-of-band cycle that bypasses the due check
// and the polling toggle. Used after commands to converge quickly.
func (t *Telemetry) ForceRefresh() {
	t.mu.Lock()
	t.forceNext = true
	t.mu.Unlock()
	select {
	case t.forceCh <- struct{}{}:
	default:
	}
}

// PollingEnabled reports whether scheduled polls hit the cloud.
func (t *Telemetry) PollingEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pollingEnabled
}

// SetPollingEnabled pauses or resumes scheduled polling. Cached data is
// kept; only forced refreshes reach the cloud while disabled.
func (t *Telemetry) SetPollingEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pollingEnabled = enabled
}

// Snapshot returns the last published snapshot, or nil.
func (t *Telemetry) Snapshot() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// CurrentInterval returns the adaptive polling interval in effect.
func (t *Telemetry) CurrentInterval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentInterval
}

// LifecycleState exposes the coordinator state for introspection.
func (t *Telemetry) LifecycleState() string { return t.lifecycle.current() }

// TelemetryFreshness returns the last material-change timestamp.
func (t *Telemetry) TelemetryFreshness() time.Time {
	return t.tracker.TelemetryFreshness(t.vin)
}

// TelemetryLastReceived returns the last payload timestamp.
func (t *Telemetry) TelemetryLastReceived() time.Time {
	return t.tracker.TelemetryLastReceived(t.vin)
}

// LastTransmission returns the latest embedded payload timestamp.
func (t *Telemetry) LastTransmission() time.Time {
	return t.tracker.LastTransmission(t.vin)
}

// LastError returns the error of the most recent failed cycle, or nil
// after a successful one.
func (t *Telemetry) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *Telemetry) consumeForce() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	force := t.forceNext
	t.forceNext = false
	return force
}

// desiredInterval picks the cadence from freshness recency: recently
// changing telemetry is polled tighter.
func (t *Telemetry) desiredInterval() time.Duration {
	fresh := t.tracker.TelemetryFreshness(t.vin)
	if fresh.IsZero() {
		return t.cfg.InactiveInterval
	}
	if time.Since(fresh) <= t.cfg.ActiveInterval {
		return t.cfg.ActiveInterval
	}
	return t.cfg.InactiveInterval
}

func (t *Telemetry) adjustInterval() {
	desired := t.desiredInterval()
	t.mu.Lock()
	current := t.currentInterval
	if current != desired {
		t.currentInterval = desired
	}
	t.mu.Unlock()
	if current != desired {
		t.logger.Info("telemetry adaptive polling",
			zap.String("vin", shortVIN(t.vin)),
			zap.Duration("from", current),
			zap.Duration("to", desired))
	}
}

// isDue reports whether the freshness age has reached the current
// interval, i.e. whether a poll should actually hit the cloud.
func (t *Telemetry) isDue() bool {
	fresh := t.tracker.TelemetryFreshness(t.vin)
	if fresh.IsZero() {
		return true
	}
	return time.Since(fresh) >= t.CurrentInterval()
}

// Refresh runs one full cycle: consume the force flag, honor the polling
// toggle, recompute the adaptive interval, skip when not due, otherwise
// fetch, merge against cached data and publish.
func (t *Telemetry) Refresh(ctx context.Context) error {
	force := t.consumeForce()

	if !t.PollingEnabled() && !force {
		// Keep serving cached data while polling is paused.
		t.publish(t.cachedOrVehicleOnly())
		return nil
	}

	t.adjustInterval()

	if prev := t.Snapshot(); !force && prev != nil && !t.isDue() {
		t.logger.Debug("telemetry refresh skipped",
			zap.String("vin", shortVIN(t.vin)),
			zap.Duration("interval", t.CurrentInterval()),
			zap.Time("freshness", t.tracker.TelemetryFreshness(t.vin)))
		t.publish(prev)
		return nil
	}

	if !t.lifecycle.begin() {
		t.logger.Debug("telemetry refresh already in flight",
			zap.String("vin", shortVIN(t.vin)))
		return nil
	}

	prev := t.Snapshot()
	res, err := t.gateway.Call(ctx, func(ctx context.Context, client byd.Client) (any, error) {
		return t.fetch(ctx, client, prev)
	})
	if err != nil {
		t.lifecycle.abort()
		t.setLastError(err)
		return fmt.Errorf("telemetry fetch for %s: %w", shortVIN(t.vin), err)
	}

	fresh, ok := res.(fetchResult)
	if !ok {
		t.lifecycle.abort()
		return fmt.Errorf("unexpected fetch result type %T", res)
	}

	snap, err := mergeTelemetry(&t.vehicle, fresh, prev, t.cfg.VehicleOnState, time.Now().UTC())
	if err != nil {
		t.lifecycle.abort()
		t.setLastError(err)
		return fmt.Errorf("telemetry merge for %s: %w", shortVIN(t.vin), err)
	}

	// Receipt bookkeeping uses the fresh payloads only: a cycle that fell
	// back to cache for everything did not receive anything. The digest
	// runs over the merged view so a gated-off sub-fetch does not read as
	// a material change.
	t.tracker.UpdateTransmission(t.vin, fresh.Realtime, nil, fresh.Charging)
	if !fresh.empty() {
		t.tracker.UpdateLastReceived(t.vin, fresh.Realtime, fresh.Charging)
	}
	if t.tracker.UpdateTelemetry(t.vin, snap.Realtime, snap.Hvac, snap.Charging, snap.Energy) {
		t.logger.Debug("telemetry freshness advanced", zap.String("vin", shortVIN(t.vin)))
	}
	// Recompute once more so the next tick already reflects the new state.
	t.adjustInterval()

	t.setSnapshot(snap)
	t.lifecycle.merged()
	t.setLastError(nil)
	t.publish(snap)

	if len(snap.Failures) > 0 {
		t.logger.Warn("telemetry partial refresh",
			zap.String("vin", shortVIN(t.vin)),
			zap.Any("failures", snap.Failures))
	}
	return nil
}

// fetch retrieves the sub-resources in fixed order. Each fetch is
// individually guarded: recoverable failures are collected and the
// resource falls back to cache during merge, while auth and session
// errors abort the whole round immediately.
func (t *Telemetry) fetch(ctx context.Context, client byd.Client, prev *Snapshot) (fetchResult, error) {
	res := fetchResult{Failures: make(map[string]string)}

	realtime, err := client.GetVehicleRealtime(ctx, t.vin)
	if err != nil {
		if !byd.IsRecoverable(err) {
			return res, err
		}
		res.Failures["realtime"] = err.Error()
		t.logger.Warn("realtime fetch failed", zap.String("vin", shortVIN(t.vin)), zap.Error(err))
	} else {
		res.Realtime = realtime
	}

	energy, err := client.GetEnergyConsumption(ctx, t.vin)
	if err != nil {
		if !byd.IsRecoverable(err) {
			return res, err
		}
		res.Failures["energy"] = err.Error()
		t.logger.Warn("energy fetch failed", zap.String("vin", shortVIN(t.vin)), zap.Error(err))
	} else {
		res.Energy = energy
	}

	if t.shouldFetchHvac(prev, res.Realtime) {
		hvac, err := client.GetHvacStatus(ctx, t.vin)
		if err != nil {
			if !byd.IsRecoverable(err) {
				return res, err
			}
			res.Failures["hvac"] = err.Error()
			t.logger.Warn("hvac fetch failed", zap.String("vin", shortVIN(t.vin)), zap.Error(err))
		} else {
			res.Hvac = hvac
		}
	} else {
		t.logger.Debug("hvac fetch skipped, vehicle not on", zap.String("vin", shortVIN(t.vin)))
	}

	if t.shouldFetchCharging(prev, res.Realtime) {
		charging, err := client.GetChargingStatus(ctx, t.vin)
		if err != nil {
			if !byd.IsRecoverable(err) {
				return res, err
			}
			res.Failures["charging"] = err.Error()
			t.logger.Warn("charging fetch failed", zap.String("vin", shortVIN(t.vin)), zap.Error(err))
		} else {
			res.Charging = charging
		}
	} else {
		t.logger.Debug("charging fetch skipped, not charging or plugged",
			zap.String("vin", shortVIN(t.vin)))
	}

	if len(res.Failures) == 0 {
		res.Failures = nil
	}
	return res, nil
}

// shouldFetchHvac gates the HVAC sub-fetch: always on the first cycle to
// seed state, afterwards only while the vehicle is on.
func (t *Telemetry) shouldFetchHvac(prev *Snapshot, realtime *byd.Realtime) bool {
	if prev == nil || prev.Hvac == nil {
		return true
	}
	on := isVehicleOn(realtime, t.cfg.VehicleOnState)
	return on != nil && *on
}

// shouldFetchCharging gates the charging sub-fetch: always on the first
// cycle, then while actively charging or plugged in. Unknown state errs
// toward fetching so a plug-in event is never missed.
func (t *Telemetry) shouldFetchCharging(prev *Snapshot, realtime *byd.Realtime) bool {
	if prev == nil || prev.Charging == nil {
		return true
	}
	if realtime == nil {
		return true
	}
	if realtime.IsCharging {
		return true
	}
	if realtime.ChargingState != nil {
		return *realtime.ChargingState != -1
	}
	return prev.Charging.IsConnected
}

func (t *Telemetry) cachedOrVehicleOnly() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap != nil {
		return t.snap
	}
	return &Snapshot{Vehicle: &t.vehicle, UpdatedAt: time.Now().UTC()}
}

func (t *Telemetry) setSnapshot(snap *Snapshot) {
	t.mu.Lock()
	t.snap = snap
	t.mu.Unlock()
}

func (t *Telemetry) setLastError(err error) {
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()
}

func (t *Telemetry) publish(snap *Snapshot) {
	t.mu.Lock()
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()
	for _, fn := range listeners {
		fn(t.vin, snap)
	}
}

func shortVIN(vin string) string {
	if len(vin) <= 6 {
		return vin
	}
	return vin[len(vin)-6:]
}
