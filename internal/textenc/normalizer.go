// Package textenc repairs mojibake produced when an upstream layer decodes
// UTF-8 bytes with a single-byte Western charset. Korean survey answers then
// arrive as strings whose code points are exactly the raw UTF-8 bytes;
// re-encoding them as Latin-1 and decoding as UTF-8 restores the original
// text.
package textenc

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"intakeservice/internal/errdefs"
)

// Normalize returns the repaired text and whether a repair was applied.
//
// The transform only fires when the input can actually be a Latin-1
// misreading of UTF-8 bytes: every rune must fit in a single byte, at least
// one rune must be non-ASCII, and the reinterpreted bytes must form valid
// UTF-8. Already-correct text (ASCII, or anything with runes past U+00FF
// such as Hangul) passes through untouched, which makes Normalize a fixed
// point once applied.
//
// A non-nil error means the input matched the corruption pattern but did not
// redecode to valid UTF-8; the original text is returned unchanged and the
// caller logs the failure, never fails on it.
func Normalize(text string) (string, bool, error) {
	if !looksMisdecoded(text) {
		return text, false, nil
	}

	raw, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return text, false, fmt.Errorf("%w: %w", errdefs.ErrEncodingRecovery, err)
	}
	if !utf8.Valid(raw) {
		return text, false, fmt.Errorf("%w: redecoded bytes are not valid UTF-8", errdefs.ErrEncodingRecovery)
	}
	return string(raw), true, nil
}

// looksMisdecoded reports whether text matches the corruption pattern:
// all runes <= U+00FF with at least one in the upper half.
func looksMisdecoded(text string) bool {
	hasHighByte := false
	for _, r := range text {
		if r > 0xFF {
			return false
		}
		if r >= 0x80 {
			hasHighByte = true
		}
	}
	if !hasHighByte {
		return false
	}
	// Valid UTF-8 containing a byte >= 0x80 always has a multi-byte sequence,
	// so the utf8.Valid check after re-encoding covers the rest.
	return true
}
