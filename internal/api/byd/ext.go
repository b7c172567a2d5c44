// Extension endpoints not part of the documented vehicle API. These are
// the smart-charging, rename and push-notification controls exposed by
// the DiLink app but absent from the official endpoint list. Request and
// response shapes are documented here; anything beyond that is opaque.
package byd

import "context"

const (
	epChargeToggle  = "/control/smartCharge/changeChargeStatue"
	epChargeSave    = "/control/smartCharge/saveOrUpdate"
	epVehicleRename = "/control/vehicle/modifyAutoAlias"
	epPushGet       = "/app/push/getPushSwitchState"
	epPushSet       = "/app/push/setPushSwitchState"
)

// SmartChargingConfig is a smart-charging schedule.
type SmartChargingConfig struct {
	TargetSoc   int `json:"target_soc"`
	StartHour   int `json:"start_hour"`
	StartMinute int `json:"start_minute"`
	EndHour     int `json:"end_hour"`
	EndMinute   int `json:"end_minute"`
}

// DefaultSmartChargingConfig mirrors the app's defaults.
func DefaultSmartChargingConfig() SmartChargingConfig {
	return SmartChargingConfig{TargetSoc: 80, EndHour: 6}
}

// PushNotificationState is the cloud-side push toggle.
type PushNotificationState struct {
	Enabled bool `json:"enabled"`
}

// ToggleSmartCharging switches smart charging on or off.
func (c *HTTPClient) ToggleSmartCharging(ctx context.Context, vin string, enable bool) error {
	return c.post(ctx, epChargeToggle, vin, map[string]any{
		"smartChargeSwitch": boolToInt(enable),
	}, nil)
}

// SaveChargingSchedule stores a smart-charging schedule.
func (c *HTTPClient) SaveChargingSchedule(ctx context.Context, vin string, cfg SmartChargingConfig) error {
	return c.post(ctx, epChargeSave, vin, map[string]any{
		"targetSoc":   cfg.TargetSoc,
		"startHour":   cfg.StartHour,
		"startMinute": cfg.StartMinute,
		"endHour":     cfg.EndHour,
		"endMinute":   cfg.EndMinute,
	}, nil)
}

// RenameVehicle sets the vehicle alias shown in the app.
func (c *HTTPClient) RenameVehicle(ctx context.Context, vin, name string) error {
	return c.post(ctx, epVehicleRename, vin, map[string]any{
		"autoAlias": name,
	}, nil)
}

// GetPushState reads the push-notification switch.
func (c *HTTPClient) GetPushState(ctx context.Context, vin string) (*PushNotificationState, error) {
	var res struct {
		PushSwitch int `json:"pushSwitch"`
	}
	if err := c.post(ctx, epPushGet, vin, nil, &res); err != nil {
		return nil, err
	}
	return &PushNotificationState{Enabled: res.PushSwitch != 0}, nil
}

// SetPushState writes the push-notification switch.
func (c *HTTPClient) SetPushState(ctx context.Context, vin string, enable bool) error {
	return c.post(ctx, epPushSet, vin, map[string]any{
		"pushSwitch": boolToInt(enable),
	}, nil)
}
