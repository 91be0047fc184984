package segmenter

import (
	"unicode/utf16"
)

const (
	// Billing budgets per segment, in UTF-16 code units.
	maxUCS2Single    = 70
	maxUCS2Multipart = 67 // 70 - 3 code units (6 bytes) for UDH
)

// Segmenter defines the interface for splitting messages.
type Segmenter interface {
	// Units returns the number of billing units the message consumes.
	Units(message string) int
	// Split returns the physical segments and whether UCS2 encoding is needed.
	// A multipart message leaves room in every segment for the concatenation
	// header, so it can have one segment more than Units.
	Split(message string) (segments []string, requiresUCS2 bool)
}

// DefaultSegmenter bills every message on the UCS2 budget.
type DefaultSegmenter struct{}

// NewDefaultSegmenter creates the default segmenter.
func NewDefaultSegmenter() *DefaultSegmenter {
	return &DefaultSegmenter{}
}

// Length reports the message length in UTF-16 code units. Characters outside
// the BMP count as two.
func Length(message string) int {
	n := 0
	for _, r := range message {
		n += utf16.RuneLen(r)
	}
	return n
}

// Units computes billing units: 0 for empty text, 1 up to 70 code units,
// otherwise ceil((length-70)/67)+1.
func Units(message string) int {
	length := Length(message)
	switch {
	case length == 0:
		return 0
	case length <= maxUCS2Single:
		return 1
	}
	overflow := length - maxUCS2Single
	return (overflow+maxUCS2Multipart-1)/maxUCS2Multipart + 1
}

// Units implements Segmenter.
func (s *DefaultSegmenter) Units(message string) int {
	return Units(message)
}

// Split implements Segmenter. A message of up to 70 code units is one
// segment. Longer messages are cut into segments of at most 67 code units,
// each of which is sent with a 6 byte concatenation header. A surrogate
// pair is never split across two segments.
func (s *DefaultSegmenter) Split(message string) ([]string, bool) {
	if message == "" {
		return nil, false
	}
	requiresUCS2 := !isGSM7(message)

	units := utf16.Encode([]rune(message))
	if len(units) <= maxUCS2Single {
		return []string{message}, requiresUCS2
	}

	var segments []string
	pos := 0
	for pos < len(units) {
		end := pos + maxUCS2Multipart
		if end >= len(units) {
			end = len(units)
		} else if utf16.IsSurrogate(rune(units[end-1])) && units[end-1] < 0xDC00 {
			end-- // keep the high surrogate with its pair
		}
		segments = append(segments, string(utf16.Decode(units[pos:end])))
		pos = end
	}
	return segments, requiresUCS2
}

// isGSM7 is a basic ASCII check. Anything outside it is sent as UCS2.
func isGSM7(s string) bool {
	for _, r := range s {
		if r > 0x7F {
			return false
		}
	}
	return true
}

var _ Segmenter = (*DefaultSegmenter)(nil)
