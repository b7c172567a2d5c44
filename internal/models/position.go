package models

import "time"

// Position is one recorded GPS fix. RecordedAt carries the vehicle's
// own GPS timestamp, not the receive time, so re-polled identical fixes
// deduplicate naturally.
type Position struct {
	ID           int64     `json:"id"`
	CarID        int64     `json:"car_id"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Speed        *float64  `json:"speed,omitempty"`
	Heading      *float64  `json:"heading,omitempty"`
	BatteryLevel *float64  `json:"battery_level,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}
