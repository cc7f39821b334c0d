package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// codeFallbackPrefix is used when a product name yields no letters at all.
const codeFallbackPrefix = "LOT"

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// codePrefix derives the three-letter prefix for generated lot codes from
// the product name. Diacritics are folded so "Ñandú" yields "NAN".
func codePrefix(productName string) string {
	folded, _, err := transform.String(stripAccents, productName)
	if err != nil {
		folded = productName
	}
	var letters []rune
	for _, r := range folded {
		if unicode.IsLetter(r) && r < 128 {
			letters = append(letters, unicode.ToUpper(r))
			if len(letters) == 3 {
				break
			}
		}
	}
	if len(letters) == 0 {
		return codeFallbackPrefix
	}
	return string(letters)
}

// generateCode produces the next free correlative code for a product name:
// PREFIX-NN-MM-YYYY, where NN counts up within the current month until an
// unused code is found. Uniqueness is case-insensitive across the whole
// catalog, so the existence check runs against every lot.
func (s *Service) generateCode(ctx context.Context, productName string, now time.Time) (string, error) {
	prefix := codePrefix(productName)
	suffix := now.Format("01-2006")
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%02d-%s", prefix, n, suffix)
		taken, err := s.repo.CodeExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

// normalizeCode canonicalises a human-assigned code for comparison.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
