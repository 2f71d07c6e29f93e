// internal/deck/deck.go
package deck

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jason-s-yu/rummy/internal/errs"
	"github.com/jason-s-yu/rummy/internal/models"
)

// CreateDeck returns numDecks full 52-card decks plus two wild tokens when
// useJokers is set. The order is not meaningful; shuffle before use.
func CreateDeck(numDecks int, useJokers bool) []models.Card {
	size := numDecks * len(models.Ranks) * len(models.Suits)
	if useJokers {
		size += 2
	}
	cards := make([]models.Card, 0, size)
	for d := 0; d < numDecks; d++ {
		for _, suit := range models.Suits {
			for _, rank := range models.Ranks {
				cards = append(cards, models.NewCard(rank, suit))
			}
		}
	}
	if useJokers {
		cards = append(cards, models.WildToken, models.WildToken)
	}
	return cards
}

// DecksForPlayers builds a deck for the variant and checks it can deal every
// player plus the starting discard.
func DecksForPlayers(v models.Variant, players int) ([]models.Card, error) {
	cards := CreateDeck(v.NumDecks, v.UseJokers)
	if need := players*v.CardsPerPlayer + 1; need > len(cards) {
		return nil, errs.New(errs.InsufficientCards,
			fmt.Sprintf("need %d cards, deck has %d", need, len(cards)))
	}
	return cards, nil
}

// Shuffler is the source of randomness for dealing, reshuffling and bot moves.
type Shuffler interface {
	Shuffle(cards []models.Card)
	Intn(n int) int
}

// RandShuffler is a Fisher-Yates shuffler backed by math/rand. It is safe for
// concurrent use.
type RandShuffler struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewShuffler returns a time-seeded shuffler.
func NewShuffler() *RandShuffler {
	return NewSeededShuffler(time.Now().UnixNano())
}

// NewSeededShuffler returns a deterministic shuffler for tests and replays.
func NewSeededShuffler(seed int64) *RandShuffler {
	return &RandShuffler{r: rand.New(rand.NewSource(seed))}
}

func (s *RandShuffler) Shuffle(cards []models.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

func (s *RandShuffler) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Intn(n)
}

// Draw pops the last card of the pile. ok is false when the pile is empty.
func Draw(pile []models.Card) (card models.Card, rest []models.Card, ok bool) {
	if len(pile) == 0 {
		return "", pile, false
	}
	return pile[len(pile)-1], pile[:len(pile)-1], true
}
