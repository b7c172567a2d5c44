package byd

import (
	"encoding/json"
	"time"
)

// Vehicle is the immutable per-VIN metadata from the vehicle list call.
type Vehicle struct {
	VIN         string `json:"vin"`
	ModelName   string `json:"model_name"`
	BrandName   string `json:"brand_name"`
	AutoAlias   string `json:"auto_alias,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	TboxVersion string `json:"tbox_version,omitempty"`
}

// DisplayName returns a friendly name for the vehicle.
func (v *Vehicle) DisplayName() string {
	if v.AutoAlias != "" {
		return v.AutoAlias
	}
	if v.ModelName != "" {
		return v.ModelName
	}
	return v.VIN
}

// Realtime is the main telemetry payload. Optional fields are pointers:
// the cloud omits them for vehicles that lack the hardware.
type Realtime struct {
	Timestamp    int64 `json:"timestamp"` // epoch, sec or ms
	VehicleState int   `json:"vehicle_state"`
	IsOnline     bool  `json:"is_online"`

	ElecPercent      *float64 `json:"elec_percent,omitempty"` // SoC %
	EnduranceMileage *float64 `json:"endurance_mileage,omitempty"`
	EvEndurance      *float64 `json:"ev_endurance,omitempty"`
	TotalMileage     *float64 `json:"total_mileage,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`
	TempInCar        *float64 `json:"temp_in_car,omitempty"`
	PowerBattery     *float64 `json:"power_battery,omitempty"`
	PowerGear        *int     `json:"power_gear,omitempty"`

	IsCharging    bool `json:"is_charging"`
	ChargingState *int `json:"charging_state,omitempty"` // -1 disconnected
	ChargeState   *int `json:"charge_state,omitempty"`

	FullHour         *int `json:"full_hour,omitempty"`
	FullMinute       *int `json:"full_minute,omitempty"`
	RemainingHours   *int `json:"remaining_hours,omitempty"`
	RemainingMinutes *int `json:"remaining_minutes,omitempty"`

	IsLocked        bool `json:"is_locked"`
	IsAnyDoorOpen   bool `json:"is_any_door_open"`
	IsAnyWindowOpen bool `json:"is_any_window_open"`

	LeftFrontTirePressure  *float64 `json:"left_front_tire_pressure,omitempty"`
	RightFrontTirePressure *float64 `json:"right_front_tire_pressure,omitempty"`
	LeftRearTirePressure   *float64 `json:"left_rear_tire_pressure,omitempty"`
	RightRearTirePressure  *float64 `json:"right_rear_tire_pressure,omitempty"`
	TirePressUnit          string   `json:"tire_press_unit,omitempty"`

	SteeringWheelHeatState *int `json:"steering_wheel_heat_state,omitempty"`
}

// Hvac is the climate status payload.
type Hvac struct {
	IsOn                   bool     `json:"is_on"`
	TargetTemp             *float64 `json:"target_temp,omitempty"`
	TempOutCar             *float64 `json:"temp_out_car,omitempty"`
	Pm25                   *float64 `json:"pm,omitempty"`
	WorkMode               *int     `json:"work_mode,omitempty"`
	SteeringWheelHeatState *int     `json:"steering_wheel_heat_state,omitempty"`
	RefrigeratorState      *int     `json:"refrigerator_state,omitempty"`
}

// Charging is the charging session payload.
type Charging struct {
	UpdateTime       int64    `json:"update_time"` // epoch, sec or ms
	IsConnected      bool     `json:"is_connected"`
	IsCharging       bool     `json:"is_charging"`
	Soc              *float64 `json:"soc,omitempty"`
	ChargePower      *float64 `json:"charge_power,omitempty"` // kW
	RemainingMinutes *int     `json:"remaining_minutes,omitempty"`
}

// Gps is the location payload.
type Gps struct {
	GpsTimestamp int64    `json:"gps_timestamp"` // epoch, sec or ms
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Speed        *float64 `json:"speed,omitempty"`
	Heading      *float64 `json:"heading,omitempty"`
}

// Energy is the consumption statistics payload.
type Energy struct {
	TotalPower               *float64 `json:"total_power,omitempty"` // kWh
	Recent50KmEnergy         *float64 `json:"recent_50km_energy,omitempty"`
	NearestEnergyConsumption *float64 `json:"nearest_energy_consumption,omitempty"`
}

// RemoteControlResult is returned by every command endpoint.
type RemoteControlResult struct {
	Success       bool            `json:"success"`
	ControlState  int             `json:"control_state"`
	RequestSerial string          `json:"request_serial"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// NormalizeEpoch converts an epoch value in seconds or milliseconds to
// UTC time. Returns the zero time for non-positive input.
func NormalizeEpoch(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	if v > 1_000_000_000_000 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}
