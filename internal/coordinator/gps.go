package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/bydgazer/internal/api/byd"
	"github.com/langchou/bydgazer/internal/freshness"
	"github.com/langchou/bydgazer/internal/session"
)

// errInvalidPosition rejects payloads with out-of-range or null-island
// coordinates, which the cloud occasionally returns for parked vehicles.
var errInvalidPosition = errors.New("invalid gps coordinates")

// GPSConfig tunes one vehicle's position polling.
type GPSConfig struct {
	// Interval is the fixed cadence when smart polling is off.
	Interval time.Duration
	// ActiveInterval applies while the vehicle is moving.
	ActiveInterval time.Duration
	// InactiveInterval applies while parked.
	InactiveInterval time.Duration
	// SmartPolling switches between the fixed and the adaptive cadence.
	SmartPolling bool
}

// GPSListener receives every published position for a vehicle.
type GPSListener func(vin string, gps *byd.Gps)

// GPS polls the vehicle position on its own cadence, separate from
// telemetry. When smart polling is on, the interval tightens while the
// vehicle is moving and relaxes while it is parked.
type GPS struct {
	logger  *zap.Logger
	gateway *session.Gateway
	tracker *freshness.Tracker
	vin     string
	cfg     GPSConfig

	// telemetry is the sibling coordinator for the same VIN, consulted
	// for the realtime speed. May be nil.
	telemetry *Telemetry

	mu              sync.Mutex
	position        *byd.Gps
	currentInterval time.Duration
	pollingEnabled  bool
	forceNext       bool
	lastErr         error
	listeners       []GPSListener

	running bool
	stopCh  chan struct{}
	forceCh chan struct{}
	wg      sync.WaitGroup
}

// NewGPS creates a position coordinator for one vehicle.
func NewGPS(logger *zap.Logger, gateway *session.Gateway, tracker *freshness.Tracker, vin string, telemetry *Telemetry, cfg GPSConfig) *GPS {
	interval := cfg.Interval
	if cfg.SmartPolling {
		interval = cfg.InactiveInterval
	}
	return &GPS{
		logger:          logger,
		gateway:         gateway,
		tracker:         tracker,
		vin:             vin,
		cfg:             cfg,
		telemetry:       telemetry,
		currentInterval: interval,
		pollingEnabled:  true,
		forceCh:         make(chan struct{}, 1),
	}
}

// Subscribe registers a listener for published positions.
func (g *GPS) Subscribe(fn GPSListener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Start launches the polling loop.
func (g *GPS) Start(ctx context.Context) {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return
	}
	g.running = true
	g.stopCh = make(chan struct{})
	g.mu.Unlock()

	g.wg.Add(1)
	go g.run(ctx)
}

// Stop halts the polling loop and waits for it to exit.
func (g *GPS) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	stopCh := g.stopCh
	g.mu.Unlock()

	close(stopCh)
	g.wg.Wait()
}

func (g *GPS) run(ctx context.Context) {
	defer g.wg.Done()

	g.mu.Lock()
	stopCh := g.stopCh
	g.mu.Unlock()

	if err := g.Refresh(ctx); err != nil {
		g.logger.Error("initial gps refresh failed",
			zap.String("vin", shortVIN(g.vin)), zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-g.forceCh:
		case <-time.After(g.CurrentInterval()):
		}
		if err := g.Refresh(ctx); err != nil {
			g.logger.Error("gps refresh failed",
				zap.String("vin", shortVIN(g.vin)), zap.Error(err))
		}
	}
}

// ForceRefresh requests an out-of-band position fetch that bypasses the
// polling toggle. Used after commands to converge quickly.
func (g *GPS) ForceRefresh() {
	g.mu.Lock()
	g.forceNext = true
	g.mu.Unlock()
	select {
	case g.forceCh <- struct{}{}:
	default:
	}
}

func (g *GPS) consumeForce() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	force := g.forceNext
	g.forceNext = false
	return force
}

// SetPollingEnabled pauses or resumes scheduled position polling.
func (g *GPS) SetPollingEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pollingEnabled = enabled
}

// PollingEnabled reports whether scheduled polls hit the cloud.
func (g *GPS) PollingEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pollingEnabled
}

// Position returns the last known position, or nil.
func (g *GPS) Position() *byd.Gps {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position
}

// CurrentInterval returns the polling interval in effect.
func (g *GPS) CurrentInterval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentInterval
}

// GpsFreshness returns the timestamp of the newest accepted position.
func (g *GPS) GpsFreshness() time.Time {
	return g.tracker.GpsFreshness(g.vin)
}

// LastError returns the error of the most recent failed cycle.
func (g *GPS) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

// isMoving reports whether the vehicle appears to be in motion. The
// realtime speed from the sibling telemetry coordinator is preferred;
// the last GPS speed is the fallback. Unknown means not moving.
func (g *GPS) isMoving() bool {
	if g.telemetry != nil {
		if snap := g.telemetry.Snapshot(); snap != nil && snap.Realtime != nil && snap.Realtime.Speed != nil {
			return *snap.Realtime.Speed > 0
		}
	}
	if pos := g.Position(); pos != nil && pos.Speed != nil {
		return *pos.Speed > 0
	}
	return false
}

func (g *GPS) desiredInterval() time.Duration {
	if !g.cfg.SmartPolling {
		return g.cfg.Interval
	}
	if g.isMoving() {
		return g.cfg.ActiveInterval
	}
	return g.cfg.InactiveInterval
}

func (g *GPS) adjustInterval() {
	desired := g.desiredInterval()
	g.mu.Lock()
	current := g.currentInterval
	if current != desired {
		g.currentInterval = desired
	}
	g.mu.Unlock()
	if current != desired {
		g.logger.Info("gps adaptive polling",
			zap.String("vin", shortVIN(g.vin)),
			zap.Duration("from", current),
			zap.Duration("to", desired))
	}
}

// Refresh fetches the current position. A recoverable fetch failure
// falls back to the cached position; the cycle hard-fails only when
// nothing was fetched and no cache exists. A forced refresh reaches the
// cloud even while polling is paused.
func (g *GPS) Refresh(ctx context.Context) error {
	force := g.consumeForce()

	if !g.PollingEnabled() && !force {
		if pos := g.Position(); pos != nil {
			g.publish(pos)
		}
		return nil
	}

	g.adjustInterval()

	res, err := g.gateway.Call(ctx, func(ctx context.Context, client byd.Client) (any, error) {
		return client.GetGpsInfo(ctx, g.vin)
	})
	if err != nil {
		if !byd.IsRecoverable(err) {
			g.setLastError(err)
			return fmt.Errorf("gps fetch for %s: %w", shortVIN(g.vin), err)
		}
		cached := g.Position()
		if cached == nil {
			g.setLastError(err)
			return fmt.Errorf("gps fetch for %s failed with no cached position: %w", shortVIN(g.vin), err)
		}
		g.logger.Warn("gps fetch failed, keeping cached position",
			zap.String("vin", shortVIN(g.vin)), zap.Error(err))
		g.setLastError(nil)
		g.publish(cached)
		return nil
	}

	gps, ok := res.(*byd.Gps)
	if !ok || gps == nil {
		return fmt.Errorf("unexpected gps result type %T", res)
	}
	if !validPosition(gps) {
		cached := g.Position()
		if cached == nil {
			g.setLastError(errInvalidPosition)
			return fmt.Errorf("gps fetch for %s: %w", shortVIN(g.vin), errInvalidPosition)
		}
		g.logger.Warn("discarding invalid position",
			zap.String("vin", shortVIN(g.vin)),
			zap.Float64("lat", gps.Latitude),
			zap.Float64("lon", gps.Longitude))
		g.publish(cached)
		return nil
	}

	if g.tracker.UpdateGps(g.vin, gps) {
		g.logger.Debug("gps freshness advanced", zap.String("vin", shortVIN(g.vin)))
	}
	g.tracker.UpdateTransmission(g.vin, nil, gps, nil)

	g.mu.Lock()
	g.position = gps
	g.mu.Unlock()

	g.adjustInterval()
	g.setLastError(nil)
	g.publish(gps)
	return nil
}

func (g *GPS) setLastError(err error) {
	g.mu.Lock()
	g.lastErr = err
	g.mu.Unlock()
}

func validPosition(gps *byd.Gps) bool {
	if gps.Latitude == 0 && gps.Longitude == 0 {
		return false
	}
	if gps.Latitude < -90 || gps.Latitude > 90 {
		return false
	}
	return gps.Longitude >= -180 && gps.Longitude <= 180
}

func (g *GPS) publish(gps *byd.Gps) {
	g.mu.Lock()
	listeners := make([]GPSListener, len(g.listeners))
	copy(listeners, g.listeners)
	g.mu.Unlock()
	for _, fn := range listeners {
		fn(g.vin, gps)
	}
}
