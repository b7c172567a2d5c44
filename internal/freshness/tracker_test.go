package freshness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/bydgazer/internal/api/byd"
)

const testVIN = "LGXC76C40N0123456"

func newTestTracker(now time.Time) *Tracker {
	t := NewTracker()
	t.now = func() time.Time { return now }
	return t
}

func floatPtr(v float64) *float64 { return &v }

func realtimeWithSoc(soc float64, ts int64) *byd.Realtime {
	return &byd.Realtime{Timestamp: ts, VehicleState: 0, ElecPercent: floatPtr(soc)}
}

func TestUpdateTelemetryAdvancesOnMaterialChange(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(now)

	changed := tracker.UpdateTelemetry(testVIN, realtimeWithSoc(80, now.Unix()), nil, nil, nil)
	require.True(t, changed, "first payload always counts as a change")
	first := tracker.TelemetryFreshness(testVIN)
	assert.Equal(t, now, first)

	// Same material content, newer timestamp: no freshness advance.
	changed = tracker.UpdateTelemetry(testVIN, realtimeWithSoc(80, now.Add(5*time.Minute).Unix()), nil, nil, nil)
	assert.False(t, changed)
	assert.Equal(t, first, tracker.TelemetryFreshness(testVIN))

	// Material change advances freshness to the payload timestamp.
	later := now.Add(10 * time.Minute)
	changed = tracker.UpdateTelemetry(testVIN, realtimeWithSoc(79, later.Unix()), nil, nil, nil)
	require.True(t, changed)
	assert.Equal(t, later, tracker.TelemetryFreshness(testVIN))
}

func TestUpdateTelemetryIsMonotonic(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(now)

	tracker.UpdateTelemetry(testVIN, realtimeWithSoc(80, now.Unix()), nil, nil, nil)

	// A changed payload carrying an older embedded timestamp must not
	// move freshness backwards.
	old := now.Add(-1 * time.Hour)
	changed := tracker.UpdateTelemetry(testVIN, realtimeWithSoc(75, old.Unix()), nil, nil, nil)
	require.True(t, changed)
	assert.Equal(t, now, tracker.TelemetryFreshness(testVIN))
}

func TestUpdateTelemetryFallsBackToWallClock(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(now)

	changed := tracker.UpdateTelemetry(testVIN, &byd.Realtime{ElecPercent: floatPtr(50)}, nil, nil, nil)
	require.True(t, changed)
	assert.Equal(t, now, tracker.TelemetryFreshness(testVIN))
}

func TestUpdateTelemetryIgnoresEmptyPayload(t *testing.T) {
	tracker := newTestTracker(time.Now().UTC())
	changed := tracker.UpdateTelemetry(testVIN, nil, nil, nil, nil)
	assert.False(t, changed)
	assert.True(t, tracker.TelemetryFreshness(testVIN).IsZero())
}

func TestUpdateLastReceivedAdvancesWithoutContentChange(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(now)

	tracker.UpdateTelemetry(testVIN, realtimeWithSoc(80, now.Unix()), nil, nil, nil)
	tracker.UpdateLastReceived(testVIN, realtimeWithSoc(80, now.Unix()), nil)
	first := tracker.TelemetryLastReceived(testVIN)

	later := now.Add(5 * time.Minute)
	tracker.UpdateLastReceived(testVIN, realtimeWithSoc(80, later.Unix()), nil)
	assert.True(t, tracker.TelemetryLastReceived(testVIN).After(first))
	// Freshness stays put: content is identical.
	assert.Equal(t, now, tracker.TelemetryFreshness(testVIN))
}

func TestUpdateGpsAdvancesOnlyForward(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(now)

	ok := tracker.UpdateGps(testVIN, &byd.Gps{GpsTimestamp: now.Unix(), Latitude: 52.1, Longitude: 4.3})
	require.True(t, ok)
	assert.Equal(t, now, tracker.GpsFreshness(testVIN))

	// Same fix re-polled: no advance.
	ok = tracker.UpdateGps(testVIN, &byd.Gps{GpsTimestamp: now.Unix(), Latitude: 52.1, Longitude: 4.3})
	assert.False(t, ok)

	// Older fix: no advance.
	ok = tracker.UpdateGps(testVIN, &byd.Gps{GpsTimestamp: now.Add(-time.Hour).Unix(), Latitude: 52.0, Longitude: 4.2})
	assert.False(t, ok)
	assert.Equal(t, now, tracker.GpsFreshness(testVIN))
}

func TestUpdateTransmissionTakesLatestAcrossFeeds(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(now)

	realtime := &byd.Realtime{Timestamp: now.Add(-10 * time.Minute).Unix()}
	gps := &byd.Gps{GpsTimestamp: now.Add(-2 * time.Minute).Unix()}
	charging := &byd.Charging{UpdateTime: now.Add(-30 * time.Minute).Unix()}

	tracker.UpdateTransmission(testVIN, realtime, gps, charging)
	assert.Equal(t, now.Add(-2*time.Minute), tracker.LastTransmission(testVIN))

	// Millisecond epochs normalize to the same scale.
	tracker.UpdateTransmission(testVIN, &byd.Realtime{Timestamp: now.Add(time.Minute).UnixMilli()}, nil, nil)
	assert.Equal(t, now.Add(time.Minute), tracker.LastTransmission(testVIN))
}

func TestMaterialDigestExcludesTimestamps(t *testing.T) {
	a := materialDigest(realtimeWithSoc(80, 1000), nil, nil, nil)
	b := materialDigest(realtimeWithSoc(80, 2000), nil, nil, nil)
	assert.Equal(t, a, b, "timestamp-only differences are immaterial")

	c := materialDigest(realtimeWithSoc(81, 1000), nil, nil, nil)
	assert.NotEqual(t, a, c)

	assert.Empty(t, materialDigest(nil, nil, nil, nil))
}

func TestTrackersAreIndependentPerVIN(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(now)

	tracker.UpdateTelemetry("VIN-A", realtimeWithSoc(80, now.Unix()), nil, nil, nil)
	assert.True(t, tracker.TelemetryFreshness("VIN-B").IsZero())
}
