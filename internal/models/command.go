package models

import "time"

// RemoteCommand is one audit row per dispatched remote command attempt.
type RemoteCommand struct {
	ID            int64     `json:"id"`
	CarID         int64     `json:"car_id"`
	Command       string    `json:"command"`
	Success       bool      `json:"success"`
	SoftRejected  bool      `json:"soft_rejected"`
	ControlState  int       `json:"control_state,omitempty"`
	RequestSerial string    `json:"request_serial,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
