package freshness

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/langchou/bydgazer/internal/api/byd"
)

// materialSnapshot holds the telemetry fields that matter for change
// detection. Receipt timestamps and cosmetic values (tire pressure unit,
// request serials) are deliberately excluded so an unchanged payload
// with a new timestamp does not count as activity.
type materialSnapshot struct {
	VehicleState  *int     `json:"vehicle_state,omitempty"`
	Soc           *float64 `json:"soc,omitempty"`
	Endurance     *float64 `json:"endurance,omitempty"`
	EvEndurance   *float64 `json:"ev_endurance,omitempty"`
	TotalMileage  *float64 `json:"total_mileage,omitempty"`
	Speed         *float64 `json:"speed,omitempty"`
	TempInCar     *float64 `json:"temp_in_car,omitempty"`
	PowerGear     *int     `json:"power_gear,omitempty"`
	IsCharging    *bool    `json:"is_charging,omitempty"`
	ChargingState *int     `json:"charging_state,omitempty"`
	IsLocked      *bool    `json:"is_locked,omitempty"`
	DoorOpen      *bool    `json:"door_open,omitempty"`
	WindowOpen    *bool    `json:"window_open,omitempty"`
	TireFL        *float64 `json:"tire_fl,omitempty"`
	TireFR        *float64 `json:"tire_fr,omitempty"`
	TireRL        *float64 `json:"tire_rl,omitempty"`
	TireRR        *float64 `json:"tire_rr,omitempty"`

	HvacOn         *bool    `json:"hvac_on,omitempty"`
	HvacTargetTemp *float64 `json:"hvac_target_temp,omitempty"`
	HvacWorkMode   *int     `json:"hvac_work_mode,omitempty"`
	TempOutCar     *float64 `json:"temp_out_car,omitempty"`

	ChargerConnected *bool    `json:"charger_connected,omitempty"`
	ChargerActive    *bool    `json:"charger_active,omitempty"`
	ChargePower      *float64 `json:"charge_power,omitempty"`
	ChargeRemaining  *int     `json:"charge_remaining,omitempty"`

	TotalPower       *float64 `json:"total_power,omitempty"`
	Recent50KmEnergy *float64 `json:"recent_50km_energy,omitempty"`
}

// materialDigest returns a stable hex digest of the material fields, or
// "" when no payload carries material data at all.
func materialDigest(realtime *byd.Realtime, hvac *byd.Hvac, charging *byd.Charging, energy *byd.Energy) string {
	if realtime == nil && hvac == nil && charging == nil && energy == nil {
		return ""
	}

	var snap materialSnapshot
	if realtime != nil {
		state := realtime.VehicleState
		snap.VehicleState = &state
		snap.Soc = realtime.ElecPercent
		snap.Endurance = realtime.EnduranceMileage
		snap.EvEndurance = realtime.EvEndurance
		snap.TotalMileage = realtime.TotalMileage
		snap.Speed = realtime.Speed
		snap.TempInCar = realtime.TempInCar
		snap.PowerGear = realtime.PowerGear
		charging := realtime.IsCharging
		snap.IsCharging = &charging
		snap.ChargingState = realtime.ChargingState
		locked := realtime.IsLocked
		snap.IsLocked = &locked
		door := realtime.IsAnyDoorOpen
		snap.DoorOpen = &door
		window := realtime.IsAnyWindowOpen
		snap.WindowOpen = &window
		snap.TireFL = realtime.LeftFrontTirePressure
		snap.TireFR = realtime.RightFrontTirePressure
		snap.TireRL = realtime.LeftRearTirePressure
		snap.TireRR = realtime.RightRearTirePressure
	}
	if hvac != nil {
		on := hvac.IsOn
		snap.HvacOn = &on
		snap.HvacTargetTemp = hvac.TargetTemp
		snap.HvacWorkMode = hvac.WorkMode
		snap.TempOutCar = hvac.TempOutCar
	}
	if charging != nil {
		connected := charging.IsConnected
		snap.ChargerConnected = &connected
		active := charging.IsCharging
		snap.ChargerActive = &active
		snap.ChargePower = charging.ChargePower
		snap.ChargeRemaining = charging.RemainingMinutes
	}
	if energy != nil {
		snap.TotalPower = energy.TotalPower
		snap.Recent50KmEnergy = energy.Recent50KmEnergy
	}

	encoded, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
