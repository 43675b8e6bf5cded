package game

import "errors"

// Engine validation errors. All are raised before any state mutation, so a
// rejected action leaves the game exactly as it was.
var (
	ErrGameNotInitialized = errors.New("game not initialized")
	ErrInvalidPlayerCount = errors.New("exactly two players required")
	ErrAlreadyStarted     = errors.New("game already started")
	ErrCardNotFound       = errors.New("card not found")
	ErrInsufficientAzoth  = errors.New("insufficient azoth")
	ErrUnknownAction      = errors.New("unknown action type")
	ErrGameOver           = errors.New("game is over")
	ErrWrongPhase         = errors.New("action not legal in current phase")
	ErrInvalidPlayer      = errors.New("invalid player")
	ErrInvalidTarget      = errors.New("invalid target")
	ErrDeckTooSmall       = errors.New("deck too small")
)
