// Package urlutil decodes percent- and plus-encoded URL components,
// grounded on indigo-web's internal/urlencoded.ExtendedDecode but
// returning a plain string since the request parser commits decoded
// query keys/values straight into kv.Storage.
package urlutil

import (
	"errors"
	"strings"
)

// ErrInvalidEscape is returned for a truncated or non-hex "%HH" escape.
var ErrInvalidEscape = errors.New("urlutil: invalid percent-escape")

// Decode percent-decodes s and translates '+' into a space, then returns
// the result as UTF-8. A malformed escape (truncated, or non-hex digits)
// is reported as ErrInvalidEscape.
func Decode(s string) (string, error) {
	if strings.IndexByte(s, '%') == -1 && strings.IndexByte(s, '+') == -1 {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 >= len(s) {
				return "", ErrInvalidEscape
			}
			hi, ok1 := hexVal(s[i+1])
			lo, ok2 := hexVal(s[i+2])
			if !ok1 || !ok2 {
				return "", ErrInvalidEscape
			}
			b.WriteByte(hi<<4 | lo)
			i += 2
		default:
			b.WriteByte(c)
		}
	}

	return b.String(), nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
