// Package freshness tracks when a vehicle's telemetry last materially
// changed, as opposed to when the cloud last answered. The BYD cloud
// happily returns identical cached payloads on every poll, so receipt
// time alone says nothing about vehicle activity.
package freshness

import (
	"sync"
	"time"

	"github.com/langchou/bydgazer/internal/api/byd"
)

type record struct {
	digest       string
	freshness    time.Time
	lastReceived time.Time
	transmission time.Time
	gpsFreshness time.Time
}

// Tracker keeps per-VIN freshness state. All timestamps are monotonically
// non-decreasing and survive until process restart.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		records: make(map[string]*record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (t *Tracker) record(vin string) *record {
	r, ok := t.records[vin]
	if !ok {
		r = &record{}
		t.records[vin] = r
	}
	return r
}

// UpdateTelemetry advances telemetry freshness when the material snapshot
// digest changed. The timestamp comes from the payload's own epoch when
// present, else wall clock. Returns true only on a digest change.
func (t *Tracker) UpdateTelemetry(vin string, realtime *byd.Realtime, hvac *byd.Hvac, charging *byd.Charging, energy *byd.Energy) bool {
	digest := materialDigest(realtime, hvac, charging, energy)
	if digest == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.record(vin)
	if digest == r.digest {
		return false
	}

	observed := latestPayloadTime(realtime, charging)
	if observed.IsZero() {
		observed = t.now()
	}

	r.digest = digest
	if observed.After(r.freshness) {
		r.freshness = observed
	}
	return true
}

// UpdateLastReceived advances the last-received timestamp on every
// successful telemetry payload regardless of content.
func (t *Tracker) UpdateLastReceived(vin string, realtime *byd.Realtime, charging *byd.Charging) {
	observed := latestPayloadTime(realtime, charging)
	if observed.IsZero() {
		observed = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.record(vin)
	if observed.After(r.lastReceived) {
		r.lastReceived = observed
	}
}

// UpdateTransmission stores the latest embedded payload timestamp seen
// across realtime, gps and charging feeds.
func (t *Tracker) UpdateTransmission(vin string, realtime *byd.Realtime, gps *byd.Gps, charging *byd.Charging) {
	var latest time.Time
	if realtime != nil {
		latest = maxTime(latest, byd.NormalizeEpoch(realtime.Timestamp))
	}
	if gps != nil {
		latest = maxTime(latest, byd.NormalizeEpoch(gps.GpsTimestamp))
	}
	if charging != nil {
		latest = maxTime(latest, byd.NormalizeEpoch(charging.UpdateTime))
	}
	if latest.IsZero() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.record(vin)
	if latest.After(r.transmission) {
		r.transmission = latest
	}
}

// UpdateGps advances GPS freshness when the payload timestamp is newer
// than the stored one. No content hashing: a valid position is expected
// to always move.
func (t *Tracker) UpdateGps(vin string, gps *byd.Gps) bool {
	if gps == nil {
		return false
	}
	observed := byd.NormalizeEpoch(gps.GpsTimestamp)
	if observed.IsZero() {
		observed = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.record(vin)
	if !observed.After(r.gpsFreshness) {
		return false
	}
	r.gpsFreshness = observed
	return true
}

// TelemetryFreshness returns the last material-change timestamp, or the
// zero time when no change was ever observed.
func (t *Tracker) TelemetryFreshness(vin string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record(vin).freshness
}

// TelemetryLastReceived returns the last payload timestamp.
func (t *Tracker) TelemetryLastReceived(vin string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record(vin).lastReceived
}

// LastTransmission returns the latest embedded payload timestamp.
func (t *Tracker) LastTransmission(vin string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record(vin).transmission
}

// GpsFreshness returns the last GPS timestamp.
func (t *Tracker) GpsFreshness(vin string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record(vin).gpsFreshness
}

func latestPayloadTime(realtime *byd.Realtime, charging *byd.Charging) time.Time {
	var latest time.Time
	if realtime != nil {
		latest = maxTime(latest, byd.NormalizeEpoch(realtime.Timestamp))
	}
	if charging != nil {
		latest = maxTime(latest, byd.NormalizeEpoch(charging.UpdateTime))
	}
	return latest
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
