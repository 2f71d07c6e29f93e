// internal/models/card.go
package models

import "strings"

// Card is a wire/storage token: "<rank>-<suit>" (e.g. "10-H", "Q-S") or WildToken.
// Multiple decks produce duplicate tokens; a hand is a multiset of tokens.
type Card string

// WildToken is the printed joker. It is wild regardless of the session's joker rank.
const WildToken Card = "JOKER"

// Ranks in ascending order, ace low.
var Ranks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

// Suits are hearts, diamonds, clubs and spades.
var Suits = []string{"H", "D", "C", "S"}

var rankOrder = map[string]int{
	"A": 1, "2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 7,
	"8": 8, "9": 9, "10": 10, "J": 11, "Q": 12, "K": 13,
}

// NewCard builds a token from a rank and a suit.
func NewCard(rank, suit string) Card {
	return Card(rank + "-" + suit)
}

// IsWildToken reports whether the card is the printed joker.
func (c Card) IsWildToken() bool {
	return c == WildToken
}

// Rank returns the rank part of the token, or "" for the wild token.
func (c Card) Rank() string {
	if c.IsWildToken() {
		return ""
	}
	i := strings.LastIndexByte(string(c), '-')
	if i <= 0 {
		return ""
	}
	return string(c[:i])
}

// Suit returns the suit part of the token, or "" for the wild token.
func (c Card) Suit() string {
	if c.IsWildToken() {
		return ""
	}
	i := strings.LastIndexByte(string(c), '-')
	if i < 0 || i == len(c)-1 {
		return ""
	}
	return string(c[i+1:])
}

// RankValue is the ace-low ordinal of the rank (A=1 .. K=13), 0 if unknown.
func (c Card) RankValue() int {
	return rankOrder[c.Rank()]
}

// Valid reports whether the token is the wild token or a known rank/suit pair.
func (c Card) Valid() bool {
	if c.IsWildToken() {
		return true
	}
	if c.RankValue() == 0 {
		return false
	}
	switch c.Suit() {
	case "H", "D", "C", "S":
		return true
	}
	return false
}

// IsWild reports whether the card is wild under the given joker rank.
// An empty joker rank means only the printed joker is wild.
func (c Card) IsWild(jokerRank string) bool {
	if c.IsWildToken() {
		return true
	}
	return jokerRank != "" && c.Rank() == jokerRank
}

// RemoveCard removes one occurrence of c from cards. It returns the new slice
// and false if c was not present.
func RemoveCard(cards []Card, c Card) ([]Card, bool) {
	for i, x := range cards {
		if x == c {
			out := make([]Card, 0, len(cards)-1)
			out = append(out, cards[:i]...)
			return append(out, cards[i+1:]...), true
		}
	}
	return cards, false
}

// CountCards returns the multiset of cards as token -> occurrences.
func CountCards(cards []Card) map[Card]int {
	m := make(map[Card]int, len(cards))
	for _, c := range cards {
		m[c]++
	}
	return m
}
