package models

import "time"

// Base holds the fields every stored record carries.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

func (b Base) RecordID() string { return b.ID }

func (b *Base) Stamp() *Base { return b }

// Record is implemented by pointers to every stored entity.
type Record interface {
	RecordID() string
	Stamp() *Base
}
