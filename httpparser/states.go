package httpparser

// state is the parser's current position in the request grammar, a
// tagged variant standing in for the class-hierarchy-of-state-objects the
// reference implementation uses - collapsing it to a flat enum plus the
// Feed switch is the idiomatic Go shape, grounded on indigo-web's
// parsingState.
type state uint8

const (
	stMethod state = iota
	stPath
	stQueryKey
	stQueryValue
	stHTTPLiteral
	stVersionMajor
	stVersionMinor
	stRequestLineCR

	stHeaderLineStart
	stHeaderKey
	stHeaderSkipSP
	stHeaderValue
	stHeaderValueCR
	stEndCR

	stBody
	stFinal
)

// httpLiteral is matched byte-for-byte while in stHTTPLiteral.
const httpLiteral = "HTTP/"
