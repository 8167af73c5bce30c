// Package repository defines the MySQL data access layer and the
// sentinel errors shared across repositories.  Sentinels let handlers
// distinguish failure scenarios: ErrRoomNotFound maps to HTTP 404,
// ErrEmailExists to 409.  Reservation lookups return
// schedule.ErrNotFound so the scheduler's taxonomy stays uniform.
package repository

import "errors"

// ErrRoomNotFound is returned when a room lookup fails.
var ErrRoomNotFound = errors.New("room not found")

// ErrEmailExists is returned when registering with an email that is
// already taken.
var ErrEmailExists = errors.New("email already exists")
