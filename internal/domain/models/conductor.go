package models

import "time"

type Conductor struct {
	Base
	Name       string    `json:"name"`
	Cedula     string    `json:"cedula"`
	UnitNumber string    `json:"unitNumber"`
	Area       string    `json:"area"`
	Route      string    `json:"route"`
	Photos     []string  `json:"photos,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty"`
}
