package types

import "fmt"

// Slot is one of the two fixed player positions in a game.
type Slot string

const (
	SlotPlayer1 Slot = "player1"
	SlotPlayer2 Slot = "player2"
)

// Slots lists every valid slot in display order.
var Slots = []Slot{SlotPlayer1, SlotPlayer2}

func (s Slot) Valid() bool {
	return s == SlotPlayer1 || s == SlotPlayer2
}

// ParseSlot parses a slot string, accepting only player1 or player2.
func ParseSlot(s string) (Slot, error) {
	slot := Slot(s)
	if !slot.Valid() {
		return "", fmt.Errorf("invalid slot %q: must be %s or %s", s, SlotPlayer1, SlotPlayer2)
	}
	return slot, nil
}

type GameStatus string

const (
	// GameStatusWaiting means at least one slot has no player.
	GameStatusWaiting GameStatus = "waiting"
	// GameStatusActive means both slots are occupied.
	GameStatusActive GameStatus = "active"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}
