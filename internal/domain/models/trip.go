package models

import (
	"time"

	"logbook/internal/domain"
)

// Trip is one passenger boarding. Passenger and conductor fields are a
// snapshot taken at start so reports stay correct after later edits.
type Trip struct {
	Base
	GroupID             string            `json:"groupId,omitempty"`
	Shift               domain.Shift      `json:"shift,omitempty"`
	PassengerID         string            `json:"passengerId"`
	PassengerName       string            `json:"passengerName"`
	PassengerCedula     string            `json:"passengerCedula"`
	PassengerDepartment string            `json:"passengerDepartment"`
	ConductorID         string            `json:"conductorId"`
	ConductorName       string            `json:"conductorName"`
	Route               string            `json:"route"`
	StartTime           time.Time         `json:"startTime"`
	EndTime             *time.Time        `json:"endTime,omitempty"`
	Status              domain.TripStatus `json:"status"`
}

func (t Trip) Active() bool { return t.Status == domain.TripActive }
