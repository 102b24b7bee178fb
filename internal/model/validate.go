package model

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidCost rejects reward costs that are not positive integers.
var ErrInvalidCost = errors.New("cost must be a positive whole number")

// ErrInvalidBalance rejects negative balance overrides.
var ErrInvalidBalance = errors.New("balance must be a non-negative whole number")

// ParseCost reads a reward cost typed by a user.
func ParseCost(input string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n <= 0 {
		return 0, ErrInvalidCost
	}
	return n, nil
}

// ParseBalance reads a balance override typed by an admin.
func ParseBalance(input string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 0 {
		return 0, ErrInvalidBalance
	}
	return n, nil
}
