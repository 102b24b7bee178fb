package engine

import "errors"

var (
	// ErrRewardNotFound is returned when a reward id is absent from the
	// caller's catalog.
	ErrRewardNotFound = errors.New("reward not found")
	// ErrInsufficientPoints is returned when a purchase costs more than the
	// current balance. The balance is left unchanged.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrNoActiveTask is returned by operations that need a running task.
	ErrNoActiveTask = errors.New("no active task")
)
