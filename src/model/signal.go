package model

import "time"

// Direction is the side of a signal, order or position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite returns the direction that closes a holding in d.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Signal is produced and consumed within a single scheduler tick. It is never persisted.
type Signal struct {
	Symbol      string    `json:"symbol"`
	Direction   Direction `json:"direction"`
	GeneratedAt time.Time `json:"generated_at"`
}
