package domain

import "errors"

var (
	// ErrUserNotFound is returned when the referenced profile does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrLabNotFound indicates the lab definition could not be loaded.
	ErrLabNotFound = errors.New("lab not found")
	// ErrQuizNotFound indicates the lesson has no quiz content.
	ErrQuizNotFound = errors.New("quiz not found")

	// ErrInvalidAmount rejects zero or negative XP grants; the ledger only
	// rewards, deductions happen through a full reset.
	ErrInvalidAmount = errors.New("xp amount must be a positive integer")
	// ErrInvalidSource rejects grants with an unknown source kind.
	ErrInvalidSource = errors.New("unknown xp source")
	// ErrEmptyCommand is returned when a lab submission is empty after
	// sanitization.
	ErrEmptyCommand = errors.New("command is empty")
	// ErrOptionOutOfRange rejects an answer index outside the question's options.
	ErrOptionOutOfRange = errors.New("option index out of range")
	// ErrInvalidScore rejects a completion whose score is outside [0, total].
	ErrInvalidScore = errors.New("score out of range")

	// ErrAlreadyCompleted signals the at-most-once guard lost a race: another
	// writer completed the same (user, resource) first. Callers treat it as
	// "arrived second", not as a failure.
	ErrAlreadyCompleted = errors.New("already completed")

	// ErrPermissionDenied is returned for administrative operations without
	// valid credentials.
	ErrPermissionDenied = errors.New("permission denied")
)
