package credits

import "errors"

var (
	// ErrInsufficientCredits indicates the balance cannot cover the charge.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrAlreadyApplied indicates an entry with the same reason and reference exists.
	ErrAlreadyApplied = errors.New("credit entry already applied")
	ErrInvalidAmount  = errors.New("credit amount must be positive")
)
