package models

import "encoding/json"

// GameAction is an inbound transport action. AckID correlates the
// acknowledgement sent back on the same connection.
type GameAction struct {
	Type    string          `json:"type"`
	AckID   string          `json:"ackId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
