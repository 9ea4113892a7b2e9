package domain

import "strings"

// ID is used across domain entities.
type ID = string

// Role is a user account role.
type Role string

const (
	RoleRoot      Role = "root"
	RoleAdmin     Role = "admin"
	RoleConductor Role = "conductor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleRoot, RoleAdmin, RoleConductor:
		return true
	}
	return false
}

// Shift is the time-of-day period a boarding session belongs to.
type Shift string

const (
	ShiftMorning Shift = "mañana"
	ShiftNight   Shift = "noche"
)

// ParseShift normalizes user input. An empty string yields ("", nil) so
// callers can tell "not selected" apart from "unknown".
func ParseShift(raw string) (Shift, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return "", nil
	case string(ShiftMorning), "manana", "morning":
		return ShiftMorning, nil
	case string(ShiftNight), "night":
		return ShiftNight, nil
	}
	return "", ValidationError{Field: "shift", Msg: "must be mañana or noche"}
}

// TripStatus represents the lifecycle state of a trip.
type TripStatus string

const (
	TripActive    TripStatus = "active"
	TripFinalized TripStatus = "finalized"
)

// RequestContext carries authenticated user info when available.
type RequestContext struct {
	UserID  ID     `json:"userId"`
	Role    Role   `json:"role"`
	Subject string `json:"subject"`
}
