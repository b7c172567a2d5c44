package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/bydgazer/internal/api/byd"
	"github.com/langchou/bydgazer/internal/api/byd/bydtest"
	"github.com/langchou/bydgazer/internal/freshness"
	"github.com/langchou/bydgazer/internal/session"
)

func testGPSConfig(smart bool) GPSConfig {
	return GPSConfig{
		Interval:         300 * time.Second,
		ActiveInterval:   30 * time.Second,
		InactiveInterval: 600 * time.Second,
		SmartPolling:     smart,
	}
}

func newTestGPS(client *bydtest.Client, smart bool) *GPS {
	gateway := session.NewGateway(zap.NewNop(), func() (byd.Client, error) {
		return client, nil
	})
	tracker := freshness.NewTracker()
	return NewGPS(zap.NewNop(), gateway, tracker, testVIN, nil, testGPSConfig(smart))
}

func validFix(speed float64) *byd.Gps {
	return &byd.Gps{
		GpsTimestamp: time.Now().Unix(),
		Latitude:     52.37,
		Longitude:    4.89,
		Speed:        fPtr(speed),
	}
}

func TestGpsRefreshStoresPosition(t *testing.T) {
	fix := validFix(0)
	client := &bydtest.Client{
		GetGpsFunc: func(ctx context.Context, vin string) (*byd.Gps, error) {
			return fix, nil
		},
	}
	gps := newTestGPS(client, false)

	var published *byd.Gps
	gps.Subscribe(func(vin string, p *byd.Gps) { published = p })

	require.NoError(t, gps.Refresh(context.Background()))
	assert.Same(t, fix, gps.Position())
	assert.Same(t, fix, published)
	assert.False(t, gps.GpsFreshness().IsZero())
}

func TestGpsRefreshRejectsNullIsland(t *testing.T) {
	fix := &byd.Gps{GpsTimestamp: time.Now().Unix(), Latitude: 0, Longitude: 0}
	client := &bydtest.Client{
		GetGpsFunc: func(ctx context.Context, vin string) (*byd.Gps, error) {
			return fix, nil
		},
	}
	gps := newTestGPS(client, false)

	// No cache: the cycle fails.
	err := gps.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errInvalidPosition)

	// With a cached fix the invalid payload is discarded silently.
	good := validFix(0)
	client.GetGpsFunc = func(ctx context.Context, vin string) (*byd.Gps, error) { return good, nil }
	require.NoError(t, gps.Refresh(context.Background()))

	client.GetGpsFunc = func(ctx context.Context, vin string) (*byd.Gps, error) { return fix, nil }
	require.NoError(t, gps.Refresh(context.Background()))
	assert.Same(t, good, gps.Position())
}

func TestGpsRefreshKeepsCacheOnRecoverableFailure(t *testing.T) {
	good := validFix(0)
	fail := false
	client := &bydtest.Client{
		GetGpsFunc: func(ctx context.Context, vin string) (*byd.Gps, error) {
			if fail {
				return nil, byd.NewRemoteError(byd.KindTransport, "timeout", nil)
			}
			return good, nil
		},
	}
	gps := newTestGPS(client, false)

	require.NoError(t, gps.Refresh(context.Background()))

	fail = true
	require.NoError(t, gps.Refresh(context.Background()), "cached position makes the failure recoverable")
	assert.Same(t, good, gps.Position())
}

func TestGpsRefreshFailsHardWithoutCache(t *testing.T) {
	client := &bydtest.Client{
		GetGpsFunc: func(ctx context.Context, vin string) (*byd.Gps, error) {
			return nil, byd.NewRemoteError(byd.KindAPI, "down", nil)
		},
	}
	gps := newTestGPS(client, false)

	err := gps.Refresh(context.Background())
	require.Error(t, err)
	assert.Nil(t, gps.Position())
}

func TestGpsRefreshPropagatesAuthErrors(t *testing.T) {
	client := &bydtest.Client{
		GetGpsFunc: func(ctx context.Context, vin string) (*byd.Gps, error) {
			return nil, byd.NewRemoteError(byd.KindAuth, "bad credentials", nil)
		},
	}
	gps := newTestGPS(client, false)

	err := gps.Refresh(context.Background())
	assert.ErrorIs(t, err, session.ErrAuthenticationRequired)
}

func TestGpsSmartPollingFollowsMovement(t *testing.T) {
	speed := 40.0
	client := &bydtest.Client{
		GetGpsFunc: func(ctx context.Context, vin string) (*byd.Gps, error) {
			return validFix(speed), nil
		},
	}
	gps := newTestGPS(client, true)

	// Unknown movement before the first fix: inactive cadence.
	assert.Equal(t, 600*time.Second, gps.CurrentInterval())

	require.NoError(t, gps.Refresh(context.Background()))
	assert.Equal(t, 30*time.Second, gps.CurrentInterval(), "moving vehicle polls tightly")

	speed = 0
	require.NoError(t, gps.Refresh(context.Background()))
	assert.Equal(t, 600*time.Second, gps.CurrentInterval(), "parked vehicle relaxes")
}

func TestGpsFixedIntervalWhenSmartPollingOff(t *testing.T) {
	client := &bydtest.Client{
		GetGpsFunc: func(ctx context.Context, vin string) (*byd.Gps, error) {
			return validFix(80), nil
		},
	}
	gps := newTestGPS(client, false)

	require.NoError(t, gps.Refresh(context.Background()))
	assert.Equal(t, 300*time.Second, gps.CurrentInterval(), "speed is ignored without smart polling")
}

func TestGpsRefreshWhilePollingDisabled(t *testing.T) {
	client := &bydtest.Client{
		GetGpsFunc: func(ctx context.Context, vin string) (*byd.Gps, error) {
			return validFix(0), nil
		},
	}
	gps := newTestGPS(client, false)
	gps.SetPollingEnabled(false)

	require.NoError(t, gps.Refresh(context.Background()))
	assert.Empty(t, client.Calls())

	// A forced refresh must reach the cloud even while polling is paused.
	gps.ForceRefresh()
	require.NoError(t, gps.Refresh(context.Background()))
	assert.Equal(t, 1, client.CallCount("GetGpsInfo"))
	assert.NotNil(t, gps.Position())
}
