package reader

import (
	"bytes"
	"fmt"
	"strconv"
)

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokNumber
	tokName
	tokString
	tokKeyword // true, obj, R, content operators and the like
	tokArrayOpen
	tokArrayClose
	tokDictOpen
	tokDictClose
)

func (k tokKind) String() string {
	switch k {
	case tokEOF:
		return "end of data"
	case tokNumber:
		return "number"
	case tokName:
		return "name"
	case tokString:
		return "string"
	case tokKeyword:
		return "keyword"
	case tokArrayOpen:
		return "'['"
	case tokArrayClose:
		return "']'"
	case tokDictOpen:
		return "'<<'"
	case tokDictClose:
		return "'>>'"
	}
	return "token " + strconv.Itoa(int(k))
}

type token struct {
	kind tokKind
	text []byte // literal for numbers and keywords, decoded bytes for names and strings
	hex  bool
}

func (t token) is(keyword string) bool {
	return t.kind == tokKeyword && string(t.text) == keyword
}

func (t token) int() (int64, bool) {
	if t.kind != tokNumber {
		return 0, false
	}
	n, err := strconv.ParseInt(string(t.text), 10, 64)
	return n, err == nil
}

func (t token) float() (float64, bool) {
	if t.kind != tokNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(t.text), 64)
	return f, err == nil
}

func (t token) String() string {
	switch t.kind {
	case tokNumber, tokKeyword:
		return fmt.Sprintf("%s %q", t.kind, t.text)
	case tokName:
		return "/" + string(t.text)
	}
	return t.kind.String()
}

const (
	classRegular = iota
	classSpace
	classDelim
)

var charClass = func() (c [256]uint8) {
	for _, b := range []byte("\x00\t\n\f\r ") {
		c[b] = classSpace
	}
	for _, b := range []byte("()<>[]{}/%") {
		c[b] = classDelim
	}
	return c
}()

func isSpace(b byte) bool   { return charClass[b] == classSpace }
func isRegular(b byte) bool { return charClass[b] == classRegular }

// lexer splits PDF syntax into tokens. It serves both the object parser
// and the content stream scanner.
type lexer struct {
	buf []byte
	off int
}

func (lx *lexer) errorf(format string, args ...any) error {
	return fmt.Errorf("reader: offset %d: %s", lx.off, fmt.Sprintf(format, args...))
}

func (lx *lexer) at(i int) byte {
	if lx.off+i < len(lx.buf) {
		return lx.buf[lx.off+i]
	}
	return 0
}

// skipSpace moves past white space and comments.
func (lx *lexer) skipSpace() {
	for lx.off < len(lx.buf) {
		c := lx.buf[lx.off]
		switch {
		case c == '%':
			for lx.off < len(lx.buf) && lx.buf[lx.off] != '\n' && lx.buf[lx.off] != '\r' {
				lx.off++
			}
		case isSpace(c):
			lx.off++
		default:
			return
		}
	}
}

func (lx *lexer) next() (token, error) {
	lx.skipSpace()
	if lx.off >= len(lx.buf) {
		return token{kind: tokEOF}, nil
	}
	switch c := lx.buf[lx.off]; c {
	case '[':
		lx.off++
		return token{kind: tokArrayOpen}, nil
	case ']':
		lx.off++
		return token{kind: tokArrayClose}, nil
	case '<':
		if lx.at(1) == '<' {
			lx.off += 2
			return token{kind: tokDictOpen}, nil
		}
		return lx.hexString()
	case '>':
		if lx.at(1) == '>' {
			lx.off += 2
			return token{kind: tokDictClose}, nil
		}
		return token{}, lx.errorf("stray '>'")
	case '(':
		return lx.literalString()
	case ')':
		return token{}, lx.errorf("stray ')'")
	case '/':
		return lx.name(), nil
	case '{', '}':
		lx.off++
		return token{kind: tokKeyword, text: lx.buf[lx.off-1 : lx.off]}, nil
	}

	start := lx.off
	for lx.off < len(lx.buf) && isRegular(lx.buf[lx.off]) {
		lx.off++
	}
	word := lx.buf[start:lx.off]
	if isNumber(word) {
		return token{kind: tokNumber, text: word}, nil
	}
	return token{kind: tokKeyword, text: word}, nil
}

// isNumber matches [+-]?digits[.digits], with at least one digit.
func isNumber(b []byte) bool {
	if len(b) > 0 && (b[0] == '+' || b[0] == '-') {
		b = b[1:]
	}
	digits, dots := 0, 0
	for _, c := range b {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

func (lx *lexer) name() token {
	lx.off++ // '/'
	var out []byte
	for lx.off < len(lx.buf) && isRegular(lx.buf[lx.off]) {
		c := lx.buf[lx.off]
		if c == '#' {
			hi, lo := unhex(lx.at(1)), unhex(lx.at(2))
			if hi >= 0 && lo >= 0 {
				out = append(out, byte(hi<<4|lo))
				lx.off += 3
				continue
			}
		}
		out = append(out, c)
		lx.off++
	}
	return token{kind: tokName, text: out}
}

func (lx *lexer) literalString() (token, error) {
	start := lx.off
	lx.off++ // '('
	var out []byte
	depth := 1
	for lx.off < len(lx.buf) {
		c := lx.buf[lx.off]
		lx.off++
		switch c {
		case '(':
			depth++
		case ')':
			if depth--; depth == 0 {
				return token{kind: tokString, text: out}, nil
			}
		case '\\':
			out = lx.escape(out)
			continue
		case '\r':
			// end-of-line markers inside strings read as a single LF
			if lx.at(0) == '\n' {
				lx.off++
			}
			c = '\n'
		}
		out = append(out, c)
	}
	lx.off = start
	return token{}, lx.errorf("unterminated string")
}

var escapes = map[byte]byte{
	'n': '\n', 'r': '\r', 't': '\t', 'b': '\b', 'f': '\f',
	'(': '(', ')': ')', '\\': '\\',
}

// escape decodes the sequence after a backslash and appends it to out.
func (lx *lexer) escape(out []byte) []byte {
	if lx.off >= len(lx.buf) {
		return out
	}
	c := lx.buf[lx.off]
	lx.off++
	if r, ok := escapes[c]; ok {
		return append(out, r)
	}
	switch {
	case c >= '0' && c <= '7':
		v := int(c - '0')
		for i := 0; i < 2 && lx.at(0) >= '0' && lx.at(0) <= '7'; i++ {
			v = v<<3 | int(lx.at(0)-'0')
			lx.off++
		}
		return append(out, byte(v))
	case c == '\r':
		if lx.at(0) == '\n' {
			lx.off++
		}
		return out
	case c == '\n':
		return out
	}
	return append(out, c)
}

func (lx *lexer) hexString() (token, error) {
	start := lx.off
	lx.off++ // '<'
	end := bytes.IndexByte(lx.buf[lx.off:], '>')
	if end < 0 {
		lx.off = start
		return token{}, lx.errorf("unterminated hex string")
	}
	body := lx.buf[lx.off : lx.off+end]
	lx.off += end + 1

	out := make([]byte, 0, len(body)/2+1)
	hi := -1
	for _, c := range body {
		if isSpace(c) {
			continue
		}
		v := unhex(c)
		if v < 0 {
			return token{}, fmt.Errorf("reader: offset %d: bad hex digit %q", start, c)
		}
		if hi < 0 {
			hi = v
			continue
		}
		out = append(out, byte(hi<<4|v))
		hi = -1
	}
	if hi >= 0 {
		out = append(out, byte(hi<<4))
	}
	return token{kind: tokString, text: out, hex: true}, nil
}

// skipInlineImage moves past the "ID ... EI" data of an inline image. It is
// called right after the BI operator.
func (lx *lexer) skipInlineImage() {
	id := bytes.Index(lx.buf[lx.off:], []byte("ID"))
	if id < 0 {
		lx.off = len(lx.buf)
		return
	}
	for i := lx.off + id + 3; i+2 <= len(lx.buf); i++ {
		if lx.buf[i] == 'E' && lx.buf[i+1] == 'I' && isSpace(lx.buf[i-1]) &&
			(i+2 == len(lx.buf) || !isRegular(lx.buf[i+2])) {
			lx.off = i + 2
			return
		}
	}
	lx.off = len(lx.buf)
}

func unhex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}
