// Package phone canonicalizes Egyptian mobile numbers to the digits-only
// international form used as the recipient dedup key.
package phone

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

const (
	CountryCode  = "20"
	trunkPrefix  = "0"
	ReasonFormat = "invalid_format"
)

// ErrInvalidFormat is returned for anything that does not normalize to
// country code plus 10 digits.
var ErrInvalidFormat = errors.New(ReasonFormat)

var canonicalRe = regexp.MustCompile(`^20\d{10}$`)

// Normalize trims the input, strips a leading '+', replaces a single leading
// trunk '0' with the country code and validates the result.
// Full-width and Arabic-Indic digits are folded to ASCII first.
// Normalize(Normalize(x)) == Normalize(x) for every accepted x.
func Normalize(raw string) (string, error) {
	s := foldDigits(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(s, trunkPrefix) {
		s = CountryCode + strings.TrimPrefix(s, trunkPrefix)
	}
	if !canonicalRe.MatchString(s) {
		return "", ErrInvalidFormat
	}
	return s, nil
}

func foldDigits(s string) string {
	s = width.Narrow.String(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '٠' && r <= '٩': // Arabic-Indic
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹': // Extended Arabic-Indic (Persian)
			return '0' + (r - '۰')
		}
		return r
	}, s)
}
