package byd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyVendorCode(t *testing.T) {
	tests := []struct {
		name string
		code int
		want ErrorKind
		ok   bool
	}{
		{"success", 0, 0, true},
		{"auth failed", 1001, KindAuth, false},
		{"session expired", 1002, KindSessionExpired, false},
		{"rate limited", 6110, KindRateLimit, false},
		{"not supported", 7000, KindUnsupported, false},
		{"control locked", 6027, KindControlPassword, false},
		{"concurrent op", 6024, KindAPI, false},
		{"unknown code", 9999, KindAPI, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyVendorCode("/test", tt.code, "msg")
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, ErrorIsKind(err, tt.want))
			var re *RemoteError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.code, re.Code)
			assert.Equal(t, "/test", re.Endpoint)
		})
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	assert.NoError(t, classifyHTTPStatus("/p", http.StatusOK, nil))
	assert.True(t, IsAuth(classifyHTTPStatus("/p", http.StatusUnauthorized, nil)))
	assert.True(t, IsRateLimit(classifyHTTPStatus("/p", http.StatusTooManyRequests, nil)))
	assert.True(t, IsUnsupported(classifyHTTPStatus("/p", http.StatusNotFound, nil)))
	assert.True(t, ErrorIsKind(classifyHTTPStatus("/p", http.StatusInternalServerError, nil), KindAPI))
}

func TestNormalizeEpoch(t *testing.T) {
	assert.True(t, NormalizeEpoch(0).IsZero())
	assert.True(t, NormalizeEpoch(-5).IsZero())

	sec := int64(1756728000)
	assert.Equal(t, time.Unix(sec, 0).UTC(), NormalizeEpoch(sec))

	ms := sec*1000 + 250
	assert.Equal(t, time.UnixMilli(ms).UTC(), NormalizeEpoch(ms))
}

func envelopeBody(t *testing.T, code int, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		"code":        code,
		"msg":         "",
		"respondData": json.RawMessage(data),
	})
	require.NoError(t, err)
	return body
}

func newTestServer(t *testing.T, handler func(t *testing.T, path string, body map[string]any, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if r.URL.Path == "/app/account/login" {
			assert.Equal(t, "user@example.com", body["username"])
			_, _ = w.Write(envelopeBody(t, 0, map[string]any{
				"token":     "tok-123",
				"userId":    "user-1",
				"expiresIn": 3600,
			}))
			return
		}

		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "user-1", body["userId"])
		handler(t, r.URL.Path, body, w)
	}))
}

func testClient(url string) *HTTPClient {
	return NewHTTPClient(Config{
		Username:    "user@example.com",
		Password:    "secret",
		BaseURL:     url,
		CountryCode: "NL",
		Language:    "en",
		Timeout:     5 * time.Second,
	}, nil)
}

func TestClientLoginAndFetchRealtime(t *testing.T) {
	srv := newTestServer(t, func(t *testing.T, path string, body map[string]any, w http.ResponseWriter) {
		assert.Equal(t, "/app/vehicle/getVehicleRealtimeInfo", path)
		assert.Equal(t, "VIN123", body["vin"])
		_, _ = w.Write(envelopeBody(t, 0, map[string]any{
			"timestamp":     1756728000,
			"vehicle_state": 1,
			"elec_percent":  78.5,
		}))
	})
	defer srv.Close()

	c := testClient(srv.URL)
	realtime, err := c.GetVehicleRealtime(context.Background(), "VIN123")
	require.NoError(t, err)
	assert.Equal(t, int64(1756728000), realtime.Timestamp)
	assert.Equal(t, 1, realtime.VehicleState)
	require.NotNil(t, realtime.ElecPercent)
	assert.Equal(t, 78.5, *realtime.ElecPercent)
}

func TestClientSessionReuse(t *testing.T) {
	logins := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/app/account/login" {
			logins++
			_, _ = w.Write(envelopeBody(t, 0, map[string]any{
				"token":     "tok-123",
				"userId":    "user-1",
				"expiresIn": 3600,
			}))
			return
		}
		_, _ = w.Write(envelopeBody(t, 0, map[string]any{}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.GetVehicleRealtime(context.Background(), "VIN123")
	require.NoError(t, err)
	_, err = c.GetHvacStatus(context.Background(), "VIN123")
	require.NoError(t, err)
	assert.Equal(t, 1, logins, "the token is reused until it expires")
}

func TestClientMapsSessionExpiredCode(t *testing.T) {
	srv := newTestServer(t, func(t *testing.T, path string, body map[string]any, w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"code":1002,"msg":"session invalidated"}`))
	})
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.GetVehicleRealtime(context.Background(), "VIN123")
	assert.True(t, IsSessionExpired(err))
}

func TestControlReturnsResultOnSoftRejection(t *testing.T) {
	srv := newTestServer(t, func(t *testing.T, path string, body map[string]any, w http.ResponseWriter) {
		assert.Equal(t, "/control/vehicle/lock", path)
		_, _ = w.Write(envelopeBody(t, 0, map[string]any{
			"success":        false,
			"control_state":  2,
			"request_serial": "abc",
		}))
	})
	defer srv.Close()

	c := testClient(srv.URL)
	res, err := c.Lock(context.Background(), "VIN123")
	require.Error(t, err)
	assert.True(t, IsControlRejected(err))
	require.NotNil(t, res, "the rejected result is still returned")
	assert.Equal(t, 2, res.ControlState)
	assert.Equal(t, "abc", res.RequestSerial)
}

func TestControlIncludesPIN(t *testing.T) {
	srv := newTestServer(t, func(t *testing.T, path string, body map[string]any, w http.ResponseWriter) {
		assert.Equal(t, "1234", body["controlPin"])
		_, _ = w.Write(envelopeBody(t, 0, map[string]any{"success": true}))
	})
	defer srv.Close()

	c := NewHTTPClient(Config{
		Username:   "user@example.com",
		Password:   "secret",
		BaseURL:    srv.URL,
		ControlPIN: "1234",
	}, nil)
	res, err := c.Unlock(context.Background(), "VIN123")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestTraceRecorderSeesEveryExchange(t *testing.T) {
	srv := newTestServer(t, func(t *testing.T, path string, body map[string]any, w http.ResponseWriter) {
		_, _ = w.Write(envelopeBody(t, 0, map[string]any{}))
	})
	defer srv.Close()

	var traces []map[string]any
	c := NewHTTPClient(Config{
		Username: "user@example.com",
		Password: "secret",
		BaseURL:  srv.URL,
	}, func(trace map[string]any) {
		traces = append(traces, trace)
	})

	_, err := c.GetVehicleRealtime(context.Background(), "VIN123")
	require.NoError(t, err)
	require.Len(t, traces, 2, "login and fetch are both traced")
	assert.Equal(t, "/app/account/login", traces[0]["endpoint"])
	assert.Equal(t, "/app/vehicle/getVehicleRealtimeInfo", traces[1]["endpoint"])
}
