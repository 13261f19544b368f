package domain

import (
	"encoding/json"
	"errors"
)

var ErrRoomURLMissing = errors.New("room_url missing")

// AuthBundle is the opaque payload handed to connect.
type AuthBundle struct {
	Data string
}

// RoomAuth is what AuthBundle decodes to for room based transports.
type RoomAuth struct {
	RoomURL string  `json:"room_url"`
	Token   *string `json:"token,omitempty"`
}

// ParseRoomAuth decodes and validates the bundle payload.
func ParseRoomAuth(b AuthBundle) (RoomAuth, error) {
	var auth RoomAuth
	if err := json.Unmarshal([]byte(b.Data), &auth); err != nil {
		return RoomAuth{}, err
	}
	if auth.RoomURL == "" {
		return RoomAuth{}, ErrRoomURLMissing
	}
	return auth, nil
}
