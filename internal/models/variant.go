// internal/models/variant.go
package models

// GameType selects the Rummy variant of a room.
type GameType string

const (
	GameRummy13 GameType = "rummy13"
	GameRummy21 GameType = "rummy21"
)

// Variant holds the fixed parameters of a game type.
type Variant struct {
	Type           GameType `json:"type"`
	CardsPerPlayer int      `json:"cardsPerPlayer"`
	NumDecks       int      `json:"numDecks"`
	UseJokers      bool     `json:"useJokers"`
	MinPlayers     int      `json:"minPlayers"`
	MaxPlayers     int      `json:"maxPlayers"`

	// Meld-completion rule for a legal declare.
	MinPureSequences int `json:"minPureSequences"`
	MinSequences     int `json:"minSequences"`
}

var variants = map[GameType]Variant{
	GameRummy13: {
		Type:             GameRummy13,
		CardsPerPlayer:   13,
		NumDecks:         2,
		UseJokers:        true,
		MinPlayers:       2,
		MaxPlayers:       6,
		MinPureSequences: 1,
		MinSequences:     2,
	},
	GameRummy21: {
		Type:             GameRummy21,
		CardsPerPlayer:   21,
		NumDecks:         3,
		UseJokers:        true,
		MinPlayers:       2,
		MaxPlayers:       6,
		MinPureSequences: 3,
		MinSequences:     4,
	},
}

// LookupVariant returns the variant for a game type.
func LookupVariant(t GameType) (Variant, bool) {
	v, ok := variants[t]
	return v, ok
}
