package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	memberIDPrefix = "SP"
	// memberIDSeqWidth is the fixed width of the zero-padded sequence.
	memberIDSeqWidth = 4
	memberIDSeqMax   = 9999
)

// ErrSequenceExhausted is returned when a year already used sequence 9999.
// The id space is fixed-width, so the generator fails closed rather than
// widening or truncating the identifier.
var ErrSequenceExhausted = errors.New("member id sequence exhausted for year")

// ErrMalformedMemberID is returned when the highest stored id for a prefix
// does not end in a numeric sequence.
var ErrMalformedMemberID = errors.New("malformed member id")

// MemberIDPrefix returns the year-scoped prefix, e.g. "SP2024".
func MemberIDPrefix(year int) string {
	return fmt.Sprintf("%s%04d", memberIDPrefix, year)
}

// NextMemberID computes the id following last within the given year.
// last must be the lexicographically highest existing id that carries the
// year's prefix, or "" when the year has none yet.  Because the sequence is
// zero-padded to a fixed width, the lexicographic maximum is also the
// numeric one.
func NextMemberID(year int, last string) (string, error) {
	prefix := MemberIDPrefix(year)
	n := 0
	if last != "" {
		if !strings.HasPrefix(last, prefix) || len(last) < len(prefix)+memberIDSeqWidth {
			return "", fmt.Errorf("%w: %q", ErrMalformedMemberID, last)
		}
		seq, err := strconv.Atoi(last[len(last)-memberIDSeqWidth:])
		if err != nil || seq < 0 {
			return "", fmt.Errorf("%w: %q", ErrMalformedMemberID, last)
		}
		n = seq
	}
	if n+1 > memberIDSeqMax {
		return "", fmt.Errorf("%w %d", ErrSequenceExhausted, year)
	}
	return fmt.Sprintf("%s%0*d", prefix, memberIDSeqWidth, n+1), nil
}

// MemberIDPattern returns the LIKE pattern matching every id of a year.
func MemberIDPattern(year int) string {
	return MemberIDPrefix(year) + "%"
}
