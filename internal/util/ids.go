package util

import (
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoidLength = 21

// Record id prefixes. Every persisted record id is prefix + nanoid.
const (
	PrefixInvestigation = "inv"
	PrefixEntity        = "ent"
	PrefixRelationship  = "rel"
	PrefixCapture       = "cap"
	PrefixExploration   = "exp"
	PrefixConversation  = "conv"
	PrefixMessage       = "msg"
)

// NewID returns a new identifier of the form "<prefix>_<nanoid>".
func NewID(prefix string) string {
	return prefix + "_" + gonanoid.Must()
}

// HasPrefix reports whether id was produced by NewID for the given prefix.
func HasPrefix(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	return ok && isNanoid(rest)
}

func isNanoid(s string) bool {
	if len(s) != nanoidLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// Truncate clips s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
