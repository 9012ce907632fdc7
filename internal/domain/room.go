// Package domain contains entities and validation rules, no transport or
// lifecycle logic.
package domain

import (
	"errors"
	"strings"
)

const MaxRoomIDLen = 32

var ErrRoomIDEmpty = errors.New("room id empty")

type (
	// ConnID is the transport-assigned connection identifier. It is opaque
	// and unique for the lifetime of one connection.
	ConnID string

	RoomID string
)

// NormalizeRoomID trims and caps a caller-supplied room id. An id that is
// empty after trimming is rejected.
func NormalizeRoomID(raw string) (RoomID, error) {
	id := strings.TrimSpace(raw)
	if len(id) > MaxRoomIDLen {
		id = id[:MaxRoomIDLen]
	}
	if id == "" {
		return "", ErrRoomIDEmpty
	}
	return RoomID(id), nil
}
