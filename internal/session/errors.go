package session

import "errors"

// Structural errors. These are fatal: the workflow halts rather than
// guessing at state.
var (
	ErrNotFound           = errors.New("session file not found")
	ErrUnsupportedVersion = errors.New("unsupported session version")
	ErrStepRegression     = errors.New("current_step may not decrease")
	ErrStepSkip           = errors.New("current_step may only advance by one")
	ErrInvalidStep        = errors.New("step outside workflow range")
)
