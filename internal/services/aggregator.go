package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Lllllllleong/stickerflow/internal/models"
)

// KeyPolicy decides when two stickers are the same physical label.
type KeyPolicy string

const (
	// KeyByIdentifier merges stickers sharing a GTIN. The first sticker seen
	// supplies the other field values. Stickers without a GTIN fall back to
	// KeyByAllFields.
	KeyByIdentifier KeyPolicy = "identifier"
	// KeyByAllFields merges stickers only when every field matches.
	KeyByAllFields KeyPolicy = "all-fields"
)

// ParseKeyPolicy validates a configured policy name.
func ParseKeyPolicy(s string) (KeyPolicy, error) {
	switch KeyPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", KeyByIdentifier:
		return KeyByIdentifier, nil
	case KeyByAllFields:
		return KeyByAllFields, nil
	}
	return "", fmt.Errorf("unknown dedup key policy %q", s)
}

// DedupKey computes the key a sticker is grouped under.
func DedupKey(s models.Sticker, policy KeyPolicy) string {
	if policy != KeyByAllFields && s.GTIN != nil {
		return "gtin:" + *s.GTIN
	}
	// Struct field order is fixed and nil encodes as null, so "" and
	// absent stay distinct.
	b, _ := json.Marshal(s)
	return "all:" + string(b)
}

// Aggregation maps each dedup key to its aggregated sticker. Order lists the
// keys in first-seen order, which is also the persistence order.
type Aggregation struct {
	Order []string
	ByKey map[string]models.AggregatedSticker
}

// Len is the number of distinct stickers.
func (a Aggregation) Len() int {
	return len(a.Order)
}

// Total is the sum of all quantities.
func (a Aggregation) Total() int {
	total := 0
	for _, rec := range a.ByKey {
		total += rec.Quantity
	}
	return total
}

// Records returns the aggregated stickers in first-seen order.
func (a Aggregation) Records() []models.AggregatedSticker {
	out := make([]models.AggregatedSticker, 0, len(a.Order))
	for _, key := range a.Order {
		out = append(out, a.ByKey[key])
	}
	return out
}

// Aggregate collapses stickers into per-key quantities. It is pure; an empty
// input yields an empty Aggregation.
func Aggregate(stickers []models.Sticker, policy KeyPolicy) Aggregation {
	agg := Aggregation{
		Order: make([]string, 0, len(stickers)),
		ByKey: make(map[string]models.AggregatedSticker, len(stickers)),
	}
	for _, s := range stickers {
		key := DedupKey(s, policy)
		rec, seen := agg.ByKey[key]
		if !seen {
			rec = models.AggregatedSticker{Sticker: s, Key: key}
			agg.Order = append(agg.Order, key)
		}
		rec.Quantity++
		agg.ByKey[key] = rec
	}
	return agg
}
