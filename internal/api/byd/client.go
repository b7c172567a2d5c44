package byd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Vendor result codes observed on the DiLink oversea endpoints.
const (
	codeOK             = 0
	codeAuthFailed     = 1001
	codeSessionExpired = 1002
	codeConcurrentOp   = 6024 // cloud rejects overlapping calls per account
	codeControlLocked  = 6027
	codeRateLimited    = 6110
	codeNotSupported   = 7000
)

// Command names as recorded in command results and the unsupported set.
const (
	CommandLock                 = "lock"
	CommandUnlock               = "unlock"
	CommandStartClimate         = "start_climate"
	CommandStopClimate          = "stop_climate"
	CommandBatteryHeatOn        = "battery_heat_on"
	CommandBatteryHeatOff       = "battery_heat_off"
	CommandSetSeatClimate       = "set_seat_climate"
	CommandFlashLights          = "flash_lights"
	CommandFindCar              = "find_car"
	CommandCloseWindows         = "close_windows"
	CommandHonkHorn             = "honk_horn"
	CommandCarOn                = "car_on"
	CommandCarOff               = "car_off"
	CommandSteeringWheelHeatOn  = "steering_wheel_heat_on"
	CommandSteeringWheelHeatOff = "steering_wheel_heat_off"
)

// Client is the remote BYD cloud API. One resource getter per vehicle
// sub-resource, one method per remote command. Every method returns a
// typed payload or a *RemoteError.
type Client interface {
	GetVehicles(ctx context.Context) ([]Vehicle, error)
	GetVehicleRealtime(ctx context.Context, vin string) (*Realtime, error)
	GetEnergyConsumption(ctx context.Context, vin string) (*Energy, error)
	GetHvacStatus(ctx context.Context, vin string) (*Hvac, error)
	GetChargingStatus(ctx context.Context, vin string) (*Charging, error)
	GetGpsInfo(ctx context.Context, vin string) (*Gps, error)

	Lock(ctx context.Context, vin string) (*RemoteControlResult, error)
	Unlock(ctx context.Context, vin string) (*RemoteControlResult, error)
	StartClimate(ctx context.Context, vin string, targetTemp float64, durationMin int) (*RemoteControlResult, error)
	StopClimate(ctx context.Context, vin string) (*RemoteControlResult, error)
	SetBatteryHeat(ctx context.Context, vin string, on bool) (*RemoteControlResult, error)
	SetSeatClimate(ctx context.Context, vin string, seat, level int) (*RemoteControlResult, error)
	FlashLights(ctx context.Context, vin string) (*RemoteControlResult, error)
	FindCar(ctx context.Context, vin string) (*RemoteControlResult, error)
	CloseWindows(ctx context.Context, vin string) (*RemoteControlResult, error)
	HonkHorn(ctx context.Context, vin string) (*RemoteControlResult, error)
	SetCarPower(ctx context.Context, vin string, on bool) (*RemoteControlResult, error)
	SetSteeringWheelHeat(ctx context.Context, vin string, on bool) (*RemoteControlResult, error)

	// Undocumented extension endpoints, see ext.go.
	ToggleSmartCharging(ctx context.Context, vin string, enable bool) error
	SaveChargingSchedule(ctx context.Context, vin string, cfg SmartChargingConfig) error
	RenameVehicle(ctx context.Context, vin, name string) error
	GetPushState(ctx context.Context, vin string) (*PushNotificationState, error)
	SetPushState(ctx context.Context, vin string, enable bool) error

	Close(ctx context.Context) error
}

// TraceRecorder receives a copy of every request/response exchange when
// debug dumps are enabled. Must not block.
type TraceRecorder func(trace map[string]any)

// Config holds the per-account settings for the BYD cloud.
type Config struct {
	Username    string
	Password    string
	BaseURL     string
	CountryCode string
	Language    string
	TimeZone    string
	ControlPIN  string
	DeviceID    string
	Timeout     time.Duration
}

// HTTPClient talks to the regional DiLink oversea API.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	trace      TraceRecorder

	mu      sync.Mutex
	token   string
	userID  string
	expires time.Time
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for one account. No network call is made
// until the first request.
func NewHTTPClient(cfg Config, trace TraceRecorder) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		cfg:        cfg,
		trace:      trace,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Code        int             `json:"code"`
	Msg         string          `json:"msg"`
	RespondData json.RawMessage `json:"respondData"`
}

type loginResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	ExpiresIn int64  `json:"expiresIn"`
}

// ensureSession logs in when no valid token is held.
func (c *HTTPClient) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.expires) {
		return nil
	}

	body := map[string]any{
		"username":    c.cfg.Username,
		"password":    c.cfg.Password,
		"countryCode": c.cfg.CountryCode,
		"language":    c.cfg.Language,
		"timeZone":    c.cfg.TimeZone,
		"deviceId":    c.cfg.DeviceID,
	}
	var res loginResponse
	if err := c.exchange(ctx, "/app/account/login", body, &res); err != nil {
		return err
	}
	if res.Token == "" {
		return NewRemoteError(KindAuth, "login returned no token", nil)
	}
	c.token = res.Token
	c.userID = res.UserID
	expires := res.ExpiresIn
	if expires <= 0 {
		expires = 8 * 3600
	}
	// Renew slightly early so in-flight calls do not race the expiry.
	c.expires = time.Now().Add(time.Duration(expires-300) * time.Second)
	return nil
}

// post executes an authenticated envelope call and decodes respondData
// into out (when out is non-nil).
func (c *HTTPClient) post(ctx context.Context, path, vin string, extra map[string]any, out any) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	inner := map[string]any{
		"userId":      c.userID,
		"countryCode": c.cfg.CountryCode,
		"language":    c.cfg.Language,
	}
	c.mu.Unlock()
	if vin != "" {
		inner["vin"] = vin
	}
	for k, v := range extra {
		inner[k] = v
	}

	return c.exchange(ctx, path, inner, out)
}

// exchange performs one HTTP round trip and maps failures onto the
// closed RemoteError taxonomy.
func (c *HTTPClient) exchange(ctx context.Context, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return NewRemoteError(KindAPI, fmt.Sprintf("marshal request for %s", path), err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return NewRemoteError(KindTransport, fmt.Sprintf("build request for %s", path), err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewRemoteError(KindTransport, fmt.Sprintf("read response from %s", path), err)
	}

	if c.trace != nil {
		c.trace(map[string]any{
			"endpoint": path,
			"status":   resp.StatusCode,
			"response": json.RawMessage(raw),
		})
	}

	if err := classifyHTTPStatus(path, resp.StatusCode, raw); err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return NewRemoteError(KindAPI, fmt.Sprintf("decode envelope from %s", path), err)
	}
	if err := classifyVendorCode(path, env.Code, env.Msg); err != nil {
		return err
	}

	if out != nil && len(env.RespondData) > 0 {
		if err := json.Unmarshal(env.RespondData, out); err != nil {
			return NewRemoteError(KindAPI, fmt.Sprintf("decode payload from %s", path), err)
		}
	}
	return nil
}

func classifyTransportError(path string, err error) error {
	msg := fmt.Sprintf("request to %s failed", path)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		msg = fmt.Sprintf("request to %s timed out", path)
	}
	re := NewRemoteError(KindTransport, msg, err)
	re.Endpoint = path
	return re
}

func classifyHTTPStatus(path string, status int, body []byte) error {
	var kind ErrorKind
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status == http.StatusNotFound:
		kind = KindUnsupported
	default:
		kind = KindAPI
	}
	re := NewRemoteError(kind, fmt.Sprintf("unexpected status %d: %s", status, truncate(body, 200)), nil)
	re.Endpoint = path
	re.Code = status
	return re
}

func classifyVendorCode(path string, code int, msg string) error {
	var kind ErrorKind
	switch code {
	case codeOK:
		return nil
	case codeAuthFailed:
		kind = KindAuth
	case codeSessionExpired:
		kind = KindSessionExpired
	case codeRateLimited:
		kind = KindRateLimit
	case codeNotSupported:
		kind = KindUnsupported
	case codeControlLocked:
		kind = KindControlPassword
	case codeConcurrentOp:
		kind = KindAPI
		if msg == "" {
			msg = "concurrent operation rejected by cloud"
		}
	default:
		kind = KindAPI
	}
	re := NewRemoteError(kind, msg, nil)
	re.Endpoint = path
	re.Code = code
	return re
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// --- resource getters ---

func (c *HTTPClient) GetVehicles(ctx context.Context) ([]Vehicle, error) {
	var res struct {
		Vehicles []Vehicle `json:"vehicleList"`
	}
	if err := c.post(ctx, "/app/vehicle/getVehicleList", "", nil, &res); err != nil {
		return nil, err
	}
	return res.Vehicles, nil
}

func (c *HTTPClient) GetVehicleRealtime(ctx context.Context, vin string) (*Realtime, error) {
	var res Realtime
	if err := c.post(ctx, "/app/vehicle/getVehicleRealtimeInfo", vin, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) GetEnergyConsumption(ctx context.Context, vin string) (*Energy, error) {
	var res Energy
	if err := c.post(ctx, "/app/vehicle/getEnergyConsumption", vin, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) GetHvacStatus(ctx context.Context, vin string) (*Hvac, error) {
	var res Hvac
	if err := c.post(ctx, "/app/vehicle/getHvacStatus", vin, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) GetChargingStatus(ctx context.Context, vin string) (*Charging, error) {
	var res Charging
	if err := c.post(ctx, "/app/vehicle/getChargingStatus", vin, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) GetGpsInfo(ctx context.Context, vin string) (*Gps, error) {
	var res Gps
	if err := c.post(ctx, "/app/vehicle/getGpsInfo", vin, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- remote commands ---

// control executes a remote command endpoint. A cloud-side rejection
// (success=false) returns both the result and a ControlRejected error so
// callers can record the outcome.
func (c *HTTPClient) control(ctx context.Context, path, vin string, extra map[string]any) (*RemoteControlResult, error) {
	if c.cfg.ControlPIN != "" {
		if extra == nil {
			extra = map[string]any{}
		}
		extra["controlPin"] = c.cfg.ControlPIN
	}
	var res RemoteControlResult
	if err := c.post(ctx, path, vin, extra, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		re := NewRemoteError(KindControlRejected, fmt.Sprintf("cloud reported control state %d", res.ControlState), nil)
		re.Endpoint = path
		return &res, re
	}
	return &res, nil
}

func (c *HTTPClient) Lock(ctx context.Context, vin string) (*RemoteControlResult, error) {
	return c.control(ctx, "/control/vehicle/lock", vin, nil)
}

func (c *HTTPClient) Unlock(ctx context.Context, vin string) (*RemoteControlResult, error) {
	return c.control(ctx, "/control/vehicle/unlock", vin, nil)
}

func (c *HTTPClient) StartClimate(ctx context.Context, vin string, targetTemp float64, durationMin int) (*RemoteControlResult, error) {
	return c.control(ctx, "/control/hvac/start", vin, map[string]any{
		"targetTemp":  targetTemp,
		"durationMin": durationMin,
	})
}

func (c *HTTPClient) StopClimate(ctx context.Context, vin string) (*RemoteControlResult, error) {
	return c.control(ctx, "/control/hvac/stop", vin, nil)
}

func (c *HTTPClient) SetBatteryHeat(ctx context.Context, vin string, on bool) (*RemoteControlResult, error) {
	return c.control(ctx, "/control/battery/heat", vin, map[string]any{
		"heatSwitch": boolToInt(on),
	})
}

func (c *HTTPClient) SetSeatClimate(ctx context.Context, vin string, seat, level int) (*RemoteControlResult, error) {
	return c.control(ctx, "/control/seat/climate", vin, map[string]any{
		"seat":  seat,
		"level": level,
	})
}

func (c *HTTPClient) FlashLights(ctx context.Context, vin string) (*RemoteControlResult, error) {
	return c.control(ctx, "/control/vehicle/flashLights", vin, nil)
}

func (c *HTTPClient) FindCar(ctx context.Context, vin string) (*RemoteControlResult, error) {
	return c.control(ctx, "/control/vehicle/findCar", vin, nil)
}

func (c *HTTPClient) CloseWindows(ctx context.Context, vin string) (*RemoteControlResult, error) {
	return c.control(ctx, "/control/vehicle/closeWindows", vin, nil)
}

func (c *HTTPClient) HonkHorn(ctx context.Context, vin string) (*RemoteControlResult, error) {
	return c.control(ctx, "/control/vehicle/honkHorn", vin, nil)
}

func (c *HTTPClient) SetCarPower(ctx context.Context, vin string, on bool) (*RemoteControlResult, error) {
	if on {
		return c.control(ctx, "/control/vehicle/carOn", vin, nil)
	}
	return c.control(ctx, "/control/vehicle/carOff", vin, nil)
}

func (c *HTTPClient) SetSteeringWheelHeat(ctx context.Context, vin string, on bool) (*RemoteControlResult, error) {
	return c.control(ctx, "/control/steeringWheel/heat", vin, map[string]any{
		"heatSwitch": boolToInt(on),
	})
}

// Close drops the session token. The cloud has no logout endpoint.
func (c *HTTPClient) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.userID = ""
	c.expires = time.Time{}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
