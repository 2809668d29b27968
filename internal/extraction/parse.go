// Package extraction turns free-text recognition output into typed stickers.
package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Lllllllleong/stickerflow/internal/models"
)

// ErrMalformed is returned when the recognition output has no parseable
// sticker list.
var ErrMalformed = errors.New("malformed extraction result")

// jsonArrayPattern spans from the first '[' to the last ']' of the response.
var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// fieldAliases maps the lower-cased keys a model may emit onto sticker fields.
var fieldAliases = map[string]string{
	"brand":        "brand",
	"manufacturer": "brand",
	"product":      "product",
	"item":         "product",
	"description":  "product",
	"dimensions":   "dimensions",
	"size":         "dimensions",
	"gtin":         "gtin",
	"udi":          "gtin",
	"ref":          "ref",
	"reference":    "ref",
	"lot":          "lot",
	"lot_number":   "lot",
	"batch":        "lot",
}

// LocateJSONArray returns the JSON array embedded in a larger text response.
func LocateJSONArray(text string) (string, bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	match := jsonArrayPattern.FindString(cleaned)
	if match == "" {
		return "", false
	}
	return match, true
}

// ParseStickers locates and decodes the sticker array in a model response.
// Values that are not strings or numbers are treated as absent.
func ParseStickers(text string) ([]models.Sticker, error) {
	raw, ok := LocateJSONArray(text)
	if !ok {
		return nil, fmt.Errorf("%w: could not find a JSON array in the response", ErrMalformed)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var items []json.RawMessage
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	stickers := make([]models.Sticker, 0, len(items))
	for i, item := range items {
		sticker, err := decodeSticker(item)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrMalformed, i, err)
		}
		stickers = append(stickers, sticker)
	}
	return stickers, nil
}

func decodeSticker(item json.RawMessage) (models.Sticker, error) {
	dec := json.NewDecoder(bytes.NewReader(item))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return models.Sticker{}, err
	}
	if fields == nil {
		return models.Sticker{}, errors.New("element is null")
	}

	var s models.Sticker
	// Canonical keys are applied before aliases so "product" beats "item".
	for _, canonical := range []bool{true, false} {
		for key, value := range fields {
			name := strings.ToLower(strings.TrimSpace(key))
			target, ok := fieldAliases[name]
			if !ok || (target == name) != canonical {
				continue
			}
			v := coerce(value)
			if v == nil {
				continue
			}
			switch target {
			case "brand":
				s.Brand = first(s.Brand, v)
			case "product":
				s.Product = first(s.Product, v)
			case "dimensions":
				s.Dimensions = first(s.Dimensions, v)
			case "gtin":
				s.GTIN = first(s.GTIN, v)
			case "ref":
				s.Ref = first(s.Ref, v)
			case "lot":
				s.Lot = first(s.Lot, v)
			}
		}
	}
	return s, nil
}

// coerce converts a decoded JSON value into an optional string.
func coerce(value interface{}) *string {
	var s string
	switch v := value.(type) {
	case string:
		s = strings.TrimSpace(v)
	case json.Number:
		s = v.String()
	default:
		return nil
	}
	switch strings.ToLower(s) {
	case "", "null", "none", "n/a":
		return nil
	}
	return &s
}

// first keeps an already-set value.
func first(current, candidate *string) *string {
	if current != nil {
		return current
	}
	return candidate
}
