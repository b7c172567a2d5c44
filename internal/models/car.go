package models

import "time"

// Car is a vehicle row. VIN is the natural key; the numeric ID exists
// for foreign keys only.
type Car struct {
	ID          int64     `json:"id" db:"id"`
	VIN         string    `json:"vin" db:"vin"`
	Name        string    `json:"name" db:"name"`
	Model       string    `json:"model" db:"model"`
	Brand       string    `json:"brand" db:"brand"`
	TboxVersion string    `json:"tbox_version,omitempty" db:"tbox_version"`
	ImageURL    string    `json:"image_url,omitempty" db:"image_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
