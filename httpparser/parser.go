// Package httpparser implements the HTTP/1.1 (tolerating 1.0) request
// line/header/body grammar as a byte-fed deterministic state machine,
// grounded on indigo-web's httpparser.httpRequestParser but restructured
// around a true one-byte-at-a-time Feed, since the connection layer here
// drains a read buffer byte by byte rather than handing the parser whole
// chunks. A handful of transitions need to reconsider the very byte that
// triggered them against the new state - "did this byte end the current
// header value, or does it start the next header's key?" - so Feed loops
// internally with a pushback of at most one byte rather than requiring
// the caller to re-feed it.
package httpparser

import (
	"strconv"

	"github.com/edadma/microserve/kv"
	"github.com/edadma/microserve/urlutil"
)

// Parser is fed one byte at a time via Feed. It is not safe for
// concurrent use; each connection owns exactly one.
type Parser struct {
	state state

	method string

	urlBuf       []byte
	queryMarkIdx int // index of '?' in urlBuf, or -1
	httpLitIdx   int

	versionMajor []byte
	versionMinor []byte
	versionLen   int
	version      string

	curQueryKey   []byte
	curQueryValue []byte

	headerKeyBuf []byte
	headerValBuf []byte

	query   *kv.Storage
	headers *kv.Storage

	bodyBuf  []byte
	bodyLeft int

	path string
	url  string

	maxBodyLength int
}

// New returns a Parser ready to accept a request's first byte.
func New() *Parser {
	p := &Parser{
		query:         kv.New(),
		headers:       kv.New(),
		maxBodyLength: MaxBodyLength,
	}
	p.Reset()
	return p
}

// SetMaxBodyLength overrides the body size ceiling a Content-Length may
// declare before endOfHeaders rejects the request as a BadRequest. n <= 0
// restores the package default.
func (p *Parser) SetMaxBodyLength(n int) {
	if n <= 0 {
		n = MaxBodyLength
	}
	p.maxBodyLength = n
}

// Reset clears every accumulated field and returns the parser to its
// initial state, ready for the next request on the same connection.
func (p *Parser) Reset() {
	p.state = stMethod
	p.method = ""
	p.urlBuf = p.urlBuf[:0]
	p.queryMarkIdx = -1
	p.httpLitIdx = 0
	p.versionMajor = p.versionMajor[:0]
	p.versionMinor = p.versionMinor[:0]
	p.versionLen = 0
	p.version = ""
	p.curQueryKey = p.curQueryKey[:0]
	p.curQueryValue = p.curQueryValue[:0]
	p.headerKeyBuf = p.headerKeyBuf[:0]
	p.headerValBuf = p.headerValBuf[:0]
	p.query.Clear()
	p.headers.Clear()
	p.bodyBuf = p.bodyBuf[:0]
	p.bodyLeft = 0
	p.path = ""
	p.url = ""
}

// Done reports whether the parser has reached FINAL and is holding a
// request ready to be read out via Result.
func (p *Parser) Done() bool { return p.state == stFinal }

// Result returns the parsed request. Valid only once Done reports true;
// remoteAddress is stamped by the caller, which is the connection layer
// and the only collaborator that knows it.
func (p *Parser) Result(remoteAddress string) *Request {
	return &Request{
		Method:        p.method,
		URL:           p.url,
		Path:          p.path,
		Query:         p.query.Clone(),
		Version:       p.version,
		Headers:       p.headers.Clone(),
		Body:          append([]byte(nil), p.bodyBuf...),
		RemoteAddress: remoteAddress,
	}
}

// Feed advances the state machine by exactly one byte of input. It
// returns done=true the moment the byte completes the request (i.e. the
// parser is now at FINAL); the caller must read out Result and call
// Reset before feeding any further bytes.
func (p *Parser) Feed(b byte) (done bool, err error) {
	if p.state == stFinal {
		return false, fail("parser already finished; call Reset before feeding more bytes")
	}

	st := p.state
	for {
		next, reprocess, finished, ferr := p.step(st, b)
		if ferr != nil {
			return false, ferr
		}
		p.state = next
		if finished {
			return true, nil
		}
		if !reprocess {
			return false, nil
		}
		st = next
	}
}

// step executes one transition of state st on byte b. reprocess signals
// that b was not actually consumed by st and must be fed again against
// next - used exactly once, at the header-line/blank-line boundary.
func (p *Parser) step(st state, b byte) (next state, reprocess, finished bool, err error) {
	switch st {
	case stMethod:
		return p.stepMethod(b)
	case stPath:
		return p.stepPath(b)
	case stQueryKey:
		return p.stepQueryKey(b)
	case stQueryValue:
		return p.stepQueryValue(b)
	case stHTTPLiteral:
		return p.stepHTTPLiteral(b)
	case stVersionMajor:
		return p.stepVersionMajor(b)
	case stVersionMinor:
		return p.stepVersionMinor(b)
	case stRequestLineCR:
		if b != '\n' {
			return st, false, false, fail("malformed request line terminator")
		}
		return stHeaderLineStart, false, false, nil
	case stHeaderLineStart:
		if b == '\r' {
			return stEndCR, false, false, nil
		}
		p.headerKeyBuf = p.headerKeyBuf[:0]
		p.headerValBuf = p.headerValBuf[:0]
		return stHeaderKey, true, false, nil
	case stHeaderKey:
		return p.stepHeaderKey(b)
	case stHeaderSkipSP:
		return p.stepHeaderSkipSP(b)
	case stHeaderValue:
		return p.stepHeaderValue(b)
	case stHeaderValueCR:
		if b != '\n' {
			return st, false, false, fail("malformed header line terminator")
		}
		if err := p.commitHeader(); err != nil {
			return st, false, false, err
		}
		return stHeaderLineStart, false, false, nil
	case stEndCR:
		if b != '\n' {
			return st, false, false, fail("malformed blank line terminator")
		}
		return p.endOfHeaders()
	case stBody:
		p.bodyBuf = append(p.bodyBuf, b)
		p.bodyLeft--
		if p.bodyLeft <= 0 {
			return stFinal, false, true, nil
		}
		return stBody, false, false, nil
	default:
		return st, false, false, fail("parser in unexpected state")
	}
}

func (p *Parser) stepMethod(b byte) (state, bool, bool, error) {
	if b == ' ' {
		if len(p.urlBuf) == 0 {
			return stMethod, false, false, fail("empty method")
		}
		p.method = string(p.urlBuf)
		p.urlBuf = p.urlBuf[:0]
		p.queryMarkIdx = -1
		return stPath, false, false, nil
	}
	if isControl(b) {
		return stMethod, false, false, fail("control byte in method")
	}
	p.urlBuf = append(p.urlBuf, b)
	if len(p.urlBuf) > MaxMethodLength {
		return stMethod, false, false, fail("method too long")
	}
	return stMethod, false, false, nil
}

func (p *Parser) stepPath(b byte) (state, bool, bool, error) {
	switch b {
	case '?':
		p.queryMarkIdx = len(p.urlBuf)
		p.urlBuf = append(p.urlBuf, b)
		p.curQueryKey = p.curQueryKey[:0]
		p.curQueryValue = p.curQueryValue[:0]
		return stQueryKey, false, false, nil
	case ' ':
		if len(p.urlBuf) == 0 {
			return stPath, false, false, fail("empty path")
		}
		return p.finishURL()
	}
	if isControl(b) {
		return stPath, false, false, fail("control byte in path")
	}
	p.urlBuf = append(p.urlBuf, b)
	if len(p.urlBuf) > MaxURLLength {
		return stPath, false, false, fail("url too long")
	}
	return stPath, false, false, nil
}

func (p *Parser) stepQueryKey(b byte) (state, bool, bool, error) {
	switch b {
	case '=':
		if len(p.curQueryKey) == 0 {
			return stQueryKey, false, false, fail("empty query key")
		}
		p.urlBuf = append(p.urlBuf, b)
		if len(p.urlBuf) > MaxURLLength {
			return stQueryKey, false, false, fail("url too long")
		}
		return stQueryValue, false, false, nil
	case '&':
		if err := p.commitQueryPair(true); err != nil {
			return stQueryKey, false, false, err
		}
		p.urlBuf = append(p.urlBuf, b)
		if len(p.urlBuf) > MaxURLLength {
			return stQueryKey, false, false, fail("url too long")
		}
		p.curQueryKey = p.curQueryKey[:0]
		return stQueryKey, false, false, nil
	case ' ':
		if err := p.commitQueryPair(true); err != nil {
			return stQueryKey, false, false, err
		}
		return p.finishURL()
	}
	if isControl(b) {
		return stQueryKey, false, false, fail("control byte in query")
	}
	p.curQueryKey = append(p.curQueryKey, b)
	p.urlBuf = append(p.urlBuf, b)
	if len(p.urlBuf) > MaxURLLength {
		return stQueryKey, false, false, fail("url too long")
	}
	return stQueryKey, false, false, nil
}

func (p *Parser) stepQueryValue(b byte) (state, bool, bool, error) {
	switch b {
	case '&':
		if err := p.commitQueryPair(false); err != nil {
			return stQueryValue, false, false, err
		}
		p.urlBuf = append(p.urlBuf, b)
		if len(p.urlBuf) > MaxURLLength {
			return stQueryValue, false, false, fail("url too long")
		}
		p.curQueryKey = p.curQueryKey[:0]
		p.curQueryValue = p.curQueryValue[:0]
		return stQueryKey, false, false, nil
	case ' ':
		if err := p.commitQueryPair(false); err != nil {
			return stQueryValue, false, false, err
		}
		return p.finishURL()
	}
	if isControl(b) {
		return stQueryValue, false, false, fail("control byte in query")
	}
	p.curQueryValue = append(p.curQueryValue, b)
	p.urlBuf = append(p.urlBuf, b)
	if len(p.urlBuf) > MaxURLLength {
		return stQueryValue, false, false, fail("url too long")
	}
	return stQueryValue, false, false, nil
}

// commitQueryPair decodes and stores the pair currently accumulated in
// curQueryKey/curQueryValue. If onlyKeySeen is true, no '=' was ever
// encountered for this pair (e.g. "?a&b=1"); a wholly empty segment (no
// key characters at all, e.g. a stray "&&") commits nothing.
func (p *Parser) commitQueryPair(onlyKeySeen bool) error {
	if len(p.curQueryKey) == 0 {
		return nil
	}
	key, err := urlutil.Decode(string(p.curQueryKey))
	if err != nil {
		return fail("invalid percent-escape in query key")
	}
	value := ""
	if !onlyKeySeen {
		value, err = urlutil.Decode(string(p.curQueryValue))
		if err != nil {
			return fail("invalid percent-escape in query value")
		}
	}
	p.query.Add(key, value)
	return nil
}

func (p *Parser) finishURL() (state, bool, bool, error) {
	p.url = string(p.urlBuf)
	if p.queryMarkIdx >= 0 {
		p.path = p.url[:p.queryMarkIdx]
	} else {
		p.path = p.url
	}
	p.httpLitIdx = 0
	p.versionLen = 0
	return stHTTPLiteral, false, false, nil
}

func (p *Parser) stepHTTPLiteral(b byte) (state, bool, bool, error) {
	if b != httpLiteral[p.httpLitIdx] {
		return stHTTPLiteral, false, false, fail("unsupported or malformed protocol literal")
	}
	p.versionLen++
	if p.versionLen > MaxVersionLength {
		return stHTTPLiteral, false, false, fail("version too long")
	}
	p.httpLitIdx++
	if p.httpLitIdx == len(httpLiteral) {
		p.versionMajor = p.versionMajor[:0]
		return stVersionMajor, false, false, nil
	}
	return stHTTPLiteral, false, false, nil
}

func (p *Parser) stepVersionMajor(b byte) (state, bool, bool, error) {
	if b == '.' {
		if len(p.versionMajor) == 0 {
			return stVersionMajor, false, false, fail("missing major version")
		}
		p.versionLen++
		if p.versionLen > MaxVersionLength {
			return stVersionMajor, false, false, fail("version too long")
		}
		p.versionMinor = p.versionMinor[:0]
		return stVersionMinor, false, false, nil
	}
	if b < '0' || b > '9' {
		return stVersionMajor, false, false, fail("invalid version")
	}
	p.versionMajor = append(p.versionMajor, b)
	p.versionLen++
	if p.versionLen > MaxVersionLength {
		return stVersionMajor, false, false, fail("version too long")
	}
	return stVersionMajor, false, false, nil
}

func (p *Parser) stepVersionMinor(b byte) (state, bool, bool, error) {
	if b == '\r' {
		if len(p.versionMinor) == 0 {
			return stVersionMinor, false, false, fail("missing minor version")
		}
		p.version = string(p.versionMajor) + "." + string(p.versionMinor)
		return stRequestLineCR, false, false, nil
	}
	if b == '\n' {
		return stVersionMinor, false, false, fail("bare LF in request line")
	}
	if b < '0' || b > '9' {
		return stVersionMinor, false, false, fail("invalid version")
	}
	p.versionMinor = append(p.versionMinor, b)
	p.versionLen++
	if p.versionLen > MaxVersionLength {
		return stVersionMinor, false, false, fail("version too long")
	}
	return stVersionMinor, false, false, nil
}

func (p *Parser) stepHeaderKey(b byte) (state, bool, bool, error) {
	switch b {
	case ':':
		if len(p.headerKeyBuf) == 0 {
			return stHeaderKey, false, false, fail("empty header key")
		}
		return stHeaderSkipSP, false, false, nil
	case '\r', '\n':
		return stHeaderKey, false, false, fail("malformed header line")
	}
	if isControl(b) {
		return stHeaderKey, false, false, fail("control byte in header key")
	}
	p.headerKeyBuf = append(p.headerKeyBuf, b)
	if len(p.headerKeyBuf) > MaxHeaderKeyLength {
		return stHeaderKey, false, false, fail("header key too long")
	}
	return stHeaderKey, false, false, nil
}

func (p *Parser) stepHeaderSkipSP(b byte) (state, bool, bool, error) {
	switch b {
	case ' ', '\t':
		return stHeaderSkipSP, false, false, nil
	case '\r':
		return stHeaderValueCR, false, false, nil
	case '\n':
		return stHeaderSkipSP, false, false, fail("bare LF in header value")
	}
	if isControl(b) {
		return stHeaderSkipSP, false, false, fail("control byte in header value")
	}
	p.headerValBuf = append(p.headerValBuf, b)
	return stHeaderValue, false, false, nil
}

func (p *Parser) stepHeaderValue(b byte) (state, bool, bool, error) {
	switch b {
	case '\r':
		return stHeaderValueCR, false, false, nil
	case '\n':
		return stHeaderValue, false, false, fail("bare LF in header value")
	}
	if isControl(b) && b != '\t' {
		return stHeaderValue, false, false, fail("control byte in header value")
	}
	p.headerValBuf = append(p.headerValBuf, b)
	if len(p.headerValBuf) > MaxHeaderValueLength {
		return stHeaderValue, false, false, fail("header value too long")
	}
	return stHeaderValue, false, false, nil
}

func (p *Parser) commitHeader() error {
	if p.headers.Len() >= MaxHeaderCount {
		return fail("too many headers")
	}
	p.headers.Set(string(p.headerKeyBuf), string(p.headerValBuf))
	return nil
}

// endOfHeaders implements the blank-state rules: Transfer-Encoding is
// always rejected, Host is required for HTTP/1.1, and Content-Length (if
// present) dictates whether a body follows.
func (p *Parser) endOfHeaders() (state, bool, bool, error) {
	if p.headers.Has("Transfer-Encoding") {
		return stEndCR, false, false, fail("chunked transfer-encoding is not supported")
	}
	if p.version == "1.1" && !p.headers.Has("Host") {
		return stEndCR, false, false, fail("missing Host header on HTTP/1.1 request")
	}
	cl, ok := p.headers.Get("Content-Length")
	if !ok {
		return stFinal, false, true, nil
	}
	n, err := parseContentLength(cl, p.maxBodyLength)
	if err != nil {
		return stEndCR, false, false, err
	}
	p.bodyLeft = n
	p.bodyBuf = p.bodyBuf[:0]
	if p.bodyLeft <= 0 {
		return stFinal, false, true, nil
	}
	return stBody, false, false, nil
}

func parseContentLength(s string, maxBodyLength int) (int, error) {
	if s == "" {
		return 0, fail("empty content-length")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fail("invalid content-length")
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fail("invalid content-length")
	}
	if n > maxBodyLength {
		return 0, fail("content-length exceeds maximum body size")
	}
	return n, nil
}
