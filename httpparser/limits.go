package httpparser

// Per-field limits enforced by the parser; overflowing any of them is a
// BadRequest per the data model.
const (
	MaxMethodLength      = 16
	MaxURLLength         = 8192
	MaxVersionLength     = 16
	MaxHeaderKeyLength   = 256
	MaxHeaderValueLength = 8192
	MaxHeaderCount       = 100
	MaxBodyLength        = 10 * 1024 * 1024 // 10 MiB
)

// isControl reports whether b is a control byte disallowed in the request
// line outside of its structural delimiters (SP, CR, LF and, inside the
// query, '?', '&', '=').
func isControl(b byte) bool {
	return b <= 0x1f || b == 0x7f
}
