package coordinator

import (
	"errors"
	"time"

	"github.com/langchou/bydgazer/internal/api/byd"
)

// errNoRealtime fails a telemetry cycle that produced no realtime data
// and has no cached realtime to fall back on. A snapshot is never
// published without a realtime entry.
var errNoRealtime = errors.New("no realtime data available, fresh or cached")

// errNothingFetched fails a cycle in which every sub-fetch failed and no
// cache exists at all.
var errNothingFetched = errors.New("all telemetry fetches failed and no cached data exists")

// Snapshot is the merged per-vehicle view handed to the platform. Each
// resource is either fresh from this cycle or carried over from the
// previous snapshot.
type Snapshot struct {
	Vehicle  *byd.Vehicle  `json:"vehicle"`
	Realtime *byd.Realtime `json:"realtime,omitempty"`
	Energy   *byd.Energy   `json:"energy,omitempty"`
	Hvac     *byd.Hvac     `json:"hvac,omitempty"`
	Charging *byd.Charging `json:"charging,omitempty"`
	Gps      *byd.Gps      `json:"gps,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
	// Failures lists sub-resources that fell back to cached data this
	// cycle, keyed by resource name with the error text as value.
	Failures map[string]string `json:"failures,omitempty"`
}

// fetchResult carries the outcome of one telemetry fetch round before
// merging. Nil fields either failed or were gated off; Failures
// distinguishes the two.
type fetchResult struct {
	Realtime *byd.Realtime
	Energy   *byd.Energy
	Hvac     *byd.Hvac
	Charging *byd.Charging
	Failures map[string]string
}

func (r fetchResult) empty() bool {
	return r.Realtime == nil && r.Energy == nil && r.Hvac == nil && r.Charging == nil
}

// mergeTelemetry combines a fetch round with the previous snapshot.
// Fallback rules: realtime, energy and charging keep the prior value
// when the fresh fetch failed; HVAC only falls back while the vehicle is
// still on, since stale HVAC data is meaningless once the vehicle is
// confirmed off. Pure function, unit-testable without any network.
func mergeTelemetry(vehicle *byd.Vehicle, fresh fetchResult, previous *Snapshot, onState int, now time.Time) (*Snapshot, error) {
	if fresh.empty() && previous == nil {
		return nil, errNothingFetched
	}

	snap := &Snapshot{
		Vehicle:   vehicle,
		Realtime:  fresh.Realtime,
		Energy:    fresh.Energy,
		Hvac:      fresh.Hvac,
		Charging:  fresh.Charging,
		UpdatedAt: now,
		Failures:  fresh.Failures,
	}
	if previous != nil {
		if snap.Realtime == nil {
			snap.Realtime = previous.Realtime
		}
		if snap.Energy == nil {
			snap.Energy = previous.Energy
		}
		if snap.Charging == nil {
			snap.Charging = previous.Charging
		}
		if snap.Hvac == nil && previous.Hvac != nil {
			if on := isVehicleOn(snap.Realtime, onState); on != nil && *on {
				snap.Hvac = previous.Hvac
			}
		}
	}

	if snap.Realtime == nil {
		return nil, errNoRealtime
	}
	return snap, nil
}

// isVehicleOn interprets the realtime vehicle_state field. The on-value
// mapping differs between firmware revisions and is therefore supplied
// from configuration rather than hardcoded. Returns nil when unknown.
func isVehicleOn(realtime *byd.Realtime, onState int) *bool {
	if realtime == nil {
		return nil
	}
	on := realtime.VehicleState == onState
	return &on
}
