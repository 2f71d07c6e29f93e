// internal/models/player.go
package models

// Player is a seat in a room. UserID is the durable identity; ID is the
// transport connection currently bound to it and changes across reconnects.
type Player struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	IsBot        bool   `json:"isBot"`
	Disconnected bool   `json:"disconnected"`
}
