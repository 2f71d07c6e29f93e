// internal/meld/meld.go
//
// Package meld classifies client-submitted groupings of a hand and decides
// whether they satisfy a variant's declare rule. The server never searches for
// a grouping of its own; a grouping that does not validate is rejected as is.
package meld

import (
	"sort"

	"github.com/jason-s-yu/rummy/internal/errs"
	"github.com/jason-s-yu/rummy/internal/models"
)

// Kind is the classification of a single group.
type Kind string

const (
	PureSequence   Kind = "pure_sequence"
	ImpureSequence Kind = "impure_sequence"
	Set            Kind = "set"
	Invalid        Kind = "invalid"
)

// IsSequence reports whether k is either kind of sequence.
func (k Kind) IsSequence() bool {
	return k == PureSequence || k == ImpureSequence
}

const (
	minGroupSize    = 3
	maxSequenceSize = 13
)

// Group is a submitted group together with its classification.
type Group struct {
	Cards []models.Card `json:"cards"`
	Kind  Kind          `json:"kind"`
}

// Result is the evaluation of a grouping against a hand.
type Result struct {
	Groups          []Group       `json:"groups"`
	PureSequences   int           `json:"pureSequences"`
	ImpureSequences int           `json:"impureSequences"`
	Sets            int           `json:"sets"`
	InvalidGroups   int           `json:"invalidGroups"`
	Deadwood        []models.Card `json:"deadwood"`
	DeadwoodPoints  int           `json:"deadwoodPoints"`
}

// Sequences is the total of pure and impure sequences.
func (r Result) Sequences() int {
	return r.PureSequences + r.ImpureSequences
}

// Melds returns the cards of every valid group.
func (r Result) Melds() [][]models.Card {
	var out [][]models.Card
	for _, g := range r.Groups {
		if g.Kind != Invalid {
			out = append(out, g.Cards)
		}
	}
	return out
}

// Classify decides what a single group is under the session's joker rank.
func Classify(cards []models.Card, jokerRank string) Kind {
	if len(cards) < minGroupSize {
		return Invalid
	}
	for _, c := range cards {
		if !c.Valid() {
			return Invalid
		}
	}

	wilds := 0
	for _, c := range cards {
		if c.IsWild(jokerRank) {
			wilds++
		}
	}
	if wilds == len(cards) {
		return Set
	}

	// Joker-rank cards sitting at their own rank are natural cards, so try the
	// reading where only printed jokers are wild first.
	if used, ok := fitsRun(cards, func(c models.Card) bool { return c.IsWildToken() }); ok && used == 0 {
		return PureSequence
	}
	if used, ok := fitsRun(cards, func(c models.Card) bool { return c.IsWild(jokerRank) }); ok {
		if used == 0 {
			return PureSequence
		}
		return ImpureSequence
	}
	if isSet(cards, jokerRank) {
		return Set
	}
	return Invalid
}

// fitsRun reports whether the cards form a same-suit run once the wild cards
// are used to fill rank gaps. used is the number of wild cards in the group.
func fitsRun(cards []models.Card, wild func(models.Card) bool) (used int, ok bool) {
	if len(cards) > maxSequenceSize {
		return 0, false
	}
	var naturals []models.Card
	for _, c := range cards {
		if wild(c) {
			used++
		} else {
			naturals = append(naturals, c)
		}
	}
	if len(naturals) == 0 {
		return used, true
	}
	suit := naturals[0].Suit()
	for _, c := range naturals[1:] {
		if c.Suit() != suit {
			return 0, false
		}
	}

	// ace low first, then ace high
	for _, aceHigh := range []bool{false, true} {
		ranks := make([]int, len(naturals))
		for i, c := range naturals {
			r := c.RankValue()
			if aceHigh && r == 1 {
				r = 14
			}
			ranks[i] = r
		}
		sort.Ints(ranks)
		gaps, dup := 0, false
		for i := 1; i < len(ranks); i++ {
			d := ranks[i] - ranks[i-1]
			if d == 0 {
				dup = true
				break
			}
			gaps += d - 1
		}
		if !dup && gaps <= used {
			return used, true
		}
	}
	return 0, false
}

func isSet(cards []models.Card, jokerRank string) bool {
	rank := ""
	for _, c := range cards {
		if c.IsWild(jokerRank) {
			continue
		}
		if rank == "" {
			rank = c.Rank()
		} else if c.Rank() != rank {
			return false
		}
	}
	return true
}

// Points is the deadwood value of a card: wild cards 0, aces and faces 10,
// numeric ranks their face value.
func Points(c models.Card, jokerRank string) int {
	if c.IsWild(jokerRank) {
		return 0
	}
	switch v := c.RankValue(); {
	case v == 1, v >= 10:
		return 10
	default:
		return v
	}
}

// DeadwoodPoints sums Points over cards.
func DeadwoodPoints(cards []models.Card, jokerRank string) int {
	total := 0
	for _, c := range cards {
		total += Points(c, jokerRank)
	}
	return total
}

// Evaluate classifies every group and computes deadwood. Groups must be drawn
// from the hand (as a multiset); cards of invalid groups count as deadwood.
func Evaluate(hand []models.Card, groups [][]models.Card, jokerRank string) (Result, error) {
	remaining := models.CountCards(hand)
	res := Result{Groups: make([]Group, 0, len(groups))}
	deadExtra := map[models.Card]int{}

	for _, g := range groups {
		for _, c := range g {
			if remaining[c] == 0 {
				return Result{}, errs.New(errs.RuleViolation, "group_card_not_in_hand")
			}
			remaining[c]--
		}
		kind := Classify(g, jokerRank)
		switch kind {
		case PureSequence:
			res.PureSequences++
		case ImpureSequence:
			res.ImpureSequences++
		case Set:
			res.Sets++
		default:
			res.InvalidGroups++
			for _, c := range g {
				deadExtra[c]++
			}
		}
		res.Groups = append(res.Groups, Group{Cards: append([]models.Card(nil), g...), Kind: kind})
	}

	// keep hand order for deadwood
	for _, c := range hand {
		switch {
		case remaining[c] > 0:
			remaining[c]--
		case deadExtra[c] > 0:
			deadExtra[c]--
		default:
			continue
		}
		res.Deadwood = append(res.Deadwood, c)
	}
	res.DeadwoodPoints = DeadwoodPoints(res.Deadwood, jokerRank)
	return res, nil
}

// Validate evaluates a declare against the variant's meld-completion rule.
func Validate(v models.Variant, hand []models.Card, groups [][]models.Card, jokerRank string) (Result, error) {
	if len(groups) == 0 {
		return Result{}, errs.New(errs.InvalidPayload, "groups_required")
	}
	if len(hand) != v.CardsPerPlayer {
		return Result{}, errs.New(errs.RuleViolation, "card_count_mismatch")
	}
	res, err := Evaluate(hand, groups, jokerRank)
	if err != nil {
		return Result{}, err
	}
	if res.InvalidGroups > 0 {
		return res, errs.New(errs.RuleViolation, "invalid_meld")
	}
	if res.PureSequences < v.MinPureSequences {
		return res, errs.New(errs.RuleViolation, "pure_sequence_required")
	}
	if res.Sequences() < v.MinSequences {
		return res, errs.New(errs.RuleViolation, "insufficient_sequences")
	}
	return res, nil
}
