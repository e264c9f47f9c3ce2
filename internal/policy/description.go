package policy

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxDescriptionRunes is the longest inline quest description accepted.
const MaxDescriptionRunes = 280

var (
	ErrDescriptionLength  = errors.New("policy: description must be 1-280 characters")
	ErrDescriptionBlocked = errors.New("policy: description contains prohibited content")
)

// blocklist terms match case-insensitively anywhere in the text.
var blocklist = []string{
	"kill", "murder", "suicide", "bomb", "terror",
	"child", "minor", "underage",
	"doxx", "swat",
	"nude", "naked", "sex",
	"racist", "slur",
}

// Blocked returns the blocklist terms found in text, in blocklist order.
func Blocked(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, term := range blocklist {
		if strings.Contains(lower, term) {
			out = append(out, term)
		}
	}
	return out
}

// CheckDescription screens an inline quest description before it is stored.
// Length is counted in characters of valid UTF-8; blank text is empty.
func CheckDescription(text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: invalid utf-8", ErrDescriptionLength)
	}
	n := utf8.RuneCountInString(text)
	if strings.TrimSpace(text) == "" || n > MaxDescriptionRunes {
		return fmt.Errorf("%w: got %d", ErrDescriptionLength, n)
	}
	if hits := Blocked(text); len(hits) > 0 {
		return fmt.Errorf("%w: %s", ErrDescriptionBlocked, strings.Join(hits, ", "))
	}
	return nil
}
