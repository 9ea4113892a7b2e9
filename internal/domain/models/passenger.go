package models

import "time"

// Passenger is a registered rider. Cedula is unique within the collection.
type Passenger struct {
	Base
	Name       string    `json:"name"`
	Cedula     string    `json:"cedula"`
	Department string    `json:"department"`
	QRPayload  string    `json:"qrPayload,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty"`
}

// PassengerUpdate supports PATCH-style edits; only name and department change.
type PassengerUpdate struct {
	Name       *string `json:"name"`
	Department *string `json:"department"`
}
