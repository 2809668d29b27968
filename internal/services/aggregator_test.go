package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/stickerflow/internal/models"
)

func str(s string) *string { return &s }

func sticker(gtin, brand string) models.Sticker {
	s := models.Sticker{}
	if gtin != "" {
		s.GTIN = str(gtin)
	}
	if brand != "" {
		s.Brand = str(brand)
	}
	return s
}

func TestAggregate_IdentifierPolicyMergesByGTIN(t *testing.T) {
	input := []models.Sticker{
		sticker("A", "X"),
		sticker("A", "X"),
		sticker("B", "Y"),
	}

	agg := Aggregate(input, KeyByIdentifier)

	require.Equal(t, 2, agg.Len())
	records := agg.Records()
	assert.Equal(t, "A", *records[0].GTIN)
	assert.Equal(t, "X", *records[0].Brand)
	assert.Equal(t, 2, records[0].Quantity)
	assert.Equal(t, "B", *records[1].GTIN)
	assert.Equal(t, "Y", *records[1].Brand)
	assert.Equal(t, 1, records[1].Quantity)
}

func TestAggregate_IdentifierPolicyKeepsFirstSeenFields(t *testing.T) {
	input := []models.Sticker{
		sticker("A", "First"),
		sticker("A", "Second"),
	}

	agg := Aggregate(input, KeyByIdentifier)

	require.Equal(t, 1, agg.Len())
	rec := agg.Records()[0]
	assert.Equal(t, "First", *rec.Brand)
	assert.Equal(t, 2, rec.Quantity)
}

func TestAggregate_AllFieldsPolicySeparatesDifferingRecords(t *testing.T) {
	input := []models.Sticker{
		sticker("A", "First"),
		sticker("A", "Second"),
		sticker("A", "First"),
	}

	agg := Aggregate(input, KeyByAllFields)

	require.Equal(t, 2, agg.Len())
	assert.Equal(t, 2, agg.Records()[0].Quantity)
	assert.Equal(t, 1, agg.Records()[1].Quantity)
}

func TestAggregate_MissingGTINFallsBackToAllFields(t *testing.T) {
	input := []models.Sticker{
		sticker("", "X"),
		sticker("", "X"),
		sticker("", "Y"),
	}

	agg := Aggregate(input, KeyByIdentifier)

	require.Equal(t, 2, agg.Len())
	assert.Equal(t, 2, agg.Records()[0].Quantity)
}

func TestAggregate_EmptyAndAbsentAreDistinct(t *testing.T) {
	empty := models.Sticker{Brand: str("")}
	absent := models.Sticker{}

	assert.NotEqual(t, DedupKey(empty, KeyByAllFields), DedupKey(absent, KeyByAllFields))
}

func TestAggregate_EmptyInput(t *testing.T) {
	for _, input := range [][]models.Sticker{nil, {}} {
		agg := Aggregate(input, KeyByIdentifier)
		assert.Equal(t, 0, agg.Len())
		assert.Equal(t, 0, agg.Total())
		assert.Empty(t, agg.Records())
	}
}

func TestAggregate_QuantitiesSumToInputLength(t *testing.T) {
	gtins := []string{"A", "B", "A", "C", "", "B", "A", "", "D"}
	brands := []string{"X", "Y", "Z", "X", "X", "Y", "X", "Q", "X"}
	var input []models.Sticker
	for i := range gtins {
		input = append(input, sticker(gtins[i], brands[i]))
	}

	for _, policy := range []KeyPolicy{KeyByIdentifier, KeyByAllFields} {
		for n := 1; n <= len(input); n++ {
			agg := Aggregate(input[:n], policy)
			assert.Equal(t, n, agg.Total(), "policy %s, n=%d", policy, n)
			for key, rec := range agg.ByKey {
				count := 0
				for _, s := range input[:n] {
					if DedupKey(s, policy) == key {
						count++
					}
				}
				assert.Equal(t, count, rec.Quantity, "key %s", key)
			}
		}
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	input := []models.Sticker{
		sticker("A", "X"),
		sticker("B", "Y"),
		sticker("A", "Z"),
	}

	first := Aggregate(input, KeyByIdentifier)
	second := Aggregate(input, KeyByIdentifier)

	assert.Equal(t, first, second)
}

func TestParseKeyPolicy(t *testing.T) {
	p, err := ParseKeyPolicy("")
	require.NoError(t, err)
	assert.Equal(t, KeyByIdentifier, p)

	p, err = ParseKeyPolicy(" All-Fields ")
	require.NoError(t, err)
	assert.Equal(t, KeyByAllFields, p)

	_, err = ParseKeyPolicy("brand")
	assert.Error(t, err)
}
