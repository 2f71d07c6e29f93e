package meld

import (
	"errors"
	"testing"

	"github.com/jason-s-yu/rummy/internal/errs"
	"github.com/jason-s-yu/rummy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cards(tokens ...string) []models.Card {
	out := make([]models.Card, len(tokens))
	for i, t := range tokens {
		out[i] = models.Card(t)
	}
	return out
}

func flatten(groups [][]models.Card) []models.Card {
	var out []models.Card
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		group     []models.Card
		jokerRank string
		want      Kind
	}{
		{"pure run", cards("4-H", "5-H", "6-H"), "K", PureSequence},
		{"unordered pure run", cards("6-H", "4-H", "5-H"), "K", PureSequence},
		{"ace low", cards("A-S", "2-S", "3-S"), "", PureSequence},
		{"ace high", cards("Q-S", "K-S", "A-S"), "", PureSequence},
		{"no wrap around", cards("K-S", "A-S", "2-S"), "", Invalid},
		{"gap filled by joker rank", cards("4-H", "5-H", "7-H", "6-S"), "6", ImpureSequence},
		{"gap without wild", cards("4-H", "5-H", "7-H"), "6", Invalid},
		{"gap filled by wild token", cards("4-H", "JOKER", "6-H"), "", ImpureSequence},
		{"two gaps two wilds", cards("3-D", "JOKER", "5-D", "9-C", "7-D"), "9", ImpureSequence},
		{"trailing wild extends run", cards("4-H", "5-H", "JOKER"), "", ImpureSequence},
		{"joker rank at natural position", cards("5-H", "6-H", "7-H"), "6", PureSequence},
		{"mixed suits", cards("4-H", "5-S", "6-H"), "", Invalid},
		{"duplicate rank in run", cards("5-H", "5-H", "6-H"), "", Invalid},
		{"set", cards("9-C", "9-D", "9-S"), "", Set},
		{"set with wild", cards("9-C", "9-D", "JOKER"), "", Set},
		{"all wild", cards("JOKER", "JOKER", "3-C"), "3", Set},
		{"too short", cards("4-H", "5-H"), "", Invalid},
		{"bad token", cards("4-H", "5-H", "X-Y"), "", Invalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.group, tt.jokerRank))
		})
	}
}

func TestPoints(t *testing.T) {
	assert.Equal(t, 10, Points("A-H", ""))
	assert.Equal(t, 7, Points("7-C", ""))
	assert.Equal(t, 10, Points("10-C", ""))
	assert.Equal(t, 10, Points("Q-D", ""))
	assert.Equal(t, 0, Points("JOKER", ""))
	assert.Equal(t, 0, Points("7-C", "7"))
	assert.Equal(t, 27, DeadwoodPoints(cards("A-H", "7-C", "K-S", "JOKER"), ""))
}

func rummy13Groups() [][]models.Card {
	return [][]models.Card{
		cards("A-H", "2-H", "3-H"),
		cards("5-S", "6-S", "K-D"),
		cards("9-C", "9-D", "9-S"),
		cards("Q-C", "Q-D", "Q-H", "JOKER"),
	}
}

func TestValidateRummy13Thresholds(t *testing.T) {
	v, _ := models.LookupVariant(models.GameRummy13)

	groups := rummy13Groups()
	res, err := Validate(v, flatten(groups), groups, "K")
	require.NoError(t, err)
	assert.Equal(t, 1, res.PureSequences)
	assert.Equal(t, 1, res.ImpureSequences)
	assert.Equal(t, 2, res.Sets)
	assert.Empty(t, res.Deadwood)
	assert.Zero(t, res.DeadwoodPoints)

	onePure := [][]models.Card{
		cards("A-H", "2-H", "3-H"),
		cards("5-S", "5-D", "K-D"),
		cards("9-C", "9-D", "9-S"),
		cards("Q-C", "Q-D", "Q-H", "JOKER"),
	}
	_, err = Validate(v, flatten(onePure), onePure, "K")
	require.Error(t, err)
	assert.Equal(t, "insufficient_sequences", errs.Reason(err))

	noPure := [][]models.Card{
		cards("A-H", "2-H", "JOKER"),
		cards("5-S", "6-S", "K-D"),
		cards("9-C", "9-D", "9-S"),
		cards("Q-C", "Q-D", "Q-H", "3-H"),
	}
	_, err = Validate(v, flatten(noPure), noPure, "K")
	require.Error(t, err)
}

func TestValidateRummy21NeedsFourSequences(t *testing.T) {
	v, _ := models.LookupVariant(models.GameRummy21)
	groups := [][]models.Card{
		cards("A-H", "2-H", "3-H"),
		cards("4-S", "5-S", "6-S"),
		cards("7-D", "8-D", "9-D"),
		cards("10-C", "10-D", "10-H"),
		cards("J-C", "J-D", "J-S"),
		cards("2-C", "2-D", "2-S"),
		cards("Q-C", "Q-D", "Q-S"),
	}
	res, err := Validate(v, flatten(groups), groups, "K")
	require.Error(t, err)
	assert.Equal(t, "insufficient_sequences", errs.Reason(err))
	assert.Equal(t, 3, res.PureSequences)
	assert.Equal(t, 0, res.ImpureSequences)

	groups[3] = cards("10-C", "J-C", "K-H")
	groups[4] = cards("10-D", "J-D", "K-S")
	_, err = Validate(v, flatten(groups), groups, "K")
	assert.NoError(t, err)
}

func TestValidateRejects(t *testing.T) {
	v, _ := models.LookupVariant(models.GameRummy13)
	groups := rummy13Groups()
	hand := flatten(groups)

	_, err := Validate(v, hand, nil, "K")
	assert.True(t, errors.Is(err, errs.InvalidPayload))

	_, err = Validate(v, hand[:12], groups, "K")
	assert.Equal(t, "card_count_mismatch", errs.Reason(err))

	bad := rummy13Groups()
	bad[2] = cards("9-C", "8-D", "9-S")
	_, err = Validate(v, flatten(bad), bad, "K")
	assert.Equal(t, "invalid_meld", errs.Reason(err))

	stolen := rummy13Groups()
	stolen[0] = cards("A-H", "2-H", "4-H")
	_, err = Validate(v, hand, stolen, "K")
	assert.Equal(t, "group_card_not_in_hand", errs.Reason(err))
}

func TestEvaluateDeadwood(t *testing.T) {
	hand := cards("4-H", "5-H", "6-H", "9-C", "K-S", "2-D", "JOKER")
	groups := [][]models.Card{cards("4-H", "5-H", "6-H")}

	res, err := Evaluate(hand, groups, "")
	require.NoError(t, err)
	assert.Equal(t, cards("9-C", "K-S", "2-D", "JOKER"), res.Deadwood)
	assert.Equal(t, 21, res.DeadwoodPoints)

	// invalid groups fall back into deadwood
	res, err = Evaluate(hand, [][]models.Card{cards("9-C", "K-S", "2-D")}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.InvalidGroups)
	assert.Len(t, res.Deadwood, len(hand))
}

func TestValidateIsIdempotent(t *testing.T) {
	v, _ := models.LookupVariant(models.GameRummy13)
	groups := rummy13Groups()
	hand := flatten(groups)

	first, err := Validate(v, hand, groups, "K")
	require.NoError(t, err)
	second, err := Validate(v, hand, first.Melds(), "K")
	require.NoError(t, err)
	assert.Equal(t, first.PureSequences, second.PureSequences)
	assert.Equal(t, first.ImpureSequences, second.ImpureSequences)
	assert.Equal(t, first.Sets, second.Sets)
}
