package game

import (
	"errors"
	"fmt"

	"github.com/cbodonnell/battlecards/pkg/game/types"
)

type ErrPlayerNotFound struct {
	GameID   string
	PlayerID string
}

func (e *ErrPlayerNotFound) Error() string {
	return fmt.Sprintf("player %s not found in game %s", e.PlayerID, e.GameID)
}

func IsPlayerNotFound(err error) bool {
	var target *ErrPlayerNotFound
	return errors.As(err, &target)
}

type ErrRequestNotFound struct {
	RequestID string
}

func (e *ErrRequestNotFound) Error() string {
	return fmt.Sprintf("request %s not found", e.RequestID)
}

func IsRequestNotFound(err error) bool {
	var target *ErrRequestNotFound
	return errors.As(err, &target)
}

type ErrRequestAlreadyResolved struct {
	RequestID string
	Status    types.RequestStatus
}

func (e *ErrRequestAlreadyResolved) Error() string {
	return fmt.Sprintf("request %s already %s", e.RequestID, e.Status)
}

func IsRequestAlreadyResolved(err error) bool {
	var target *ErrRequestAlreadyResolved
	return errors.As(err, &target)
}
