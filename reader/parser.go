package reader

import (
	"bytes"
	"fmt"
	"io"
)

// parser builds objects from lexer tokens. Reading "N G R" needs two
// tokens of lookahead, kept in back.
type parser struct {
	lx   lexer
	back []token
}

func newParser(data []byte) *parser {
	return &parser{lx: lexer{buf: data}}
}

func (p *parser) token() (token, error) {
	if n := len(p.back); n > 0 {
		t := p.back[n-1]
		p.back = p.back[:n-1]
		return t, nil
	}
	return p.lx.next()
}

func (p *parser) unread(t token) {
	p.back = append(p.back, t)
}

// object parses the next complete object.
func (p *parser) object() (Object, error) {
	t, err := p.token()
	if err != nil {
		return nil, err
	}
	switch t.kind {
	case tokEOF:
		return nil, io.ErrUnexpectedEOF
	case tokNumber:
		if n, ok := t.int(); ok {
			return p.integerOrRef(n)
		}
		f, ok := t.float()
		if !ok {
			return nil, p.lx.errorf("bad number %q", t.text)
		}
		return Real(f), nil
	case tokName:
		return Name(t.text), nil
	case tokString:
		return String{Value: t.text, IsHex: t.hex}, nil
	case tokArrayOpen:
		return p.array()
	case tokDictOpen:
		return p.dict()
	case tokKeyword:
		switch string(t.text) {
		case "true":
			return Boolean(true), nil
		case "false":
			return Boolean(false), nil
		case "null":
			return Null{}, nil
		}
	}
	return nil, p.lx.errorf("unexpected %s", t)
}

func (p *parser) integerOrRef(n int64) (Object, error) {
	gen, err := p.token()
	if err != nil {
		return nil, err
	}
	if g, ok := gen.int(); ok {
		r, err := p.token()
		if err != nil {
			return nil, err
		}
		if r.is("R") {
			return Reference{Number: int(n), Generation: int(g)}, nil
		}
		p.unread(r)
	}
	p.unread(gen)
	return Integer(n), nil
}

func (p *parser) array() (Array, error) {
	arr := Array{}
	for {
		t, err := p.token()
		if err != nil {
			return nil, err
		}
		if t.kind == tokArrayClose {
			return arr, nil
		}
		p.unread(t)
		obj, err := p.object()
		if err != nil {
			return nil, fmt.Errorf("array element %d: %w", len(arr), err)
		}
		arr = append(arr, obj)
	}
}

func (p *parser) dict() (Dict, error) {
	d := Dict{}
	for {
		t, err := p.token()
		if err != nil {
			return nil, err
		}
		switch t.kind {
		case tokDictClose:
			return d, nil
		case tokName:
		default:
			return nil, p.lx.errorf("dictionary key: unexpected %s", t)
		}
		key := Name(t.text)
		val, err := p.object()
		if err != nil {
			return nil, fmt.Errorf("/%s: %w", key, err)
		}
		if _, null := val.(Null); !null {
			d[key] = val
		}
	}
}

// header reads "N G obj".
func (p *parser) header() (Reference, error) {
	var ref Reference
	num, err := p.token()
	if err != nil {
		return ref, err
	}
	gen, err := p.token()
	if err != nil {
		return ref, err
	}
	kw, err := p.token()
	if err != nil {
		return ref, err
	}
	n, ok1 := num.int()
	g, ok2 := gen.int()
	if !ok1 || !ok2 || !kw.is("obj") {
		return ref, fmt.Errorf("reader: expected object header, got %s %s %s", num, gen, kw)
	}
	return Reference{Number: int(n), Generation: int(g)}, nil
}

// lengthFunc resolves a stream /Length given as an indirect reference.
type lengthFunc func(Reference) (int, bool)

// parseIndirect parses the indirect object "N G obj ... endobj" at the
// start of data. length may be nil.
func parseIndirect(data []byte, length lengthFunc) (Reference, Object, error) {
	p := newParser(data)
	ref, err := p.header()
	if err != nil {
		return ref, nil, err
	}
	val, err := p.object()
	if err != nil {
		return ref, nil, fmt.Errorf("reader: object %s: %w", ref, err)
	}
	next, err := p.token()
	if err != nil || !next.is("stream") {
		// a missing endobj is tolerated
		return ref, val, nil
	}
	dict, ok := val.(Dict)
	if !ok {
		return ref, nil, fmt.Errorf("reader: object %s: stream without dictionary", ref)
	}
	body, err := p.streamData(dict, length)
	if err != nil {
		return ref, nil, fmt.Errorf("reader: object %s: %w", ref, err)
	}
	return ref, Stream{Dict: dict, Data: body}, nil
}

var endstream = []byte("endstream")

// streamData returns the bytes between the stream keyword, already
// consumed, and endstream. A /Length that does not land on endstream is
// ignored in favour of searching for the keyword.
func (p *parser) streamData(dict Dict, length lengthFunc) ([]byte, error) {
	lx := &p.lx
	if lx.at(0) == '\r' {
		lx.off++
	}
	if lx.at(0) == '\n' {
		lx.off++
	}
	start := lx.off
	rest := lx.buf[start:]

	n := -1
	switch v := dict["Length"].(type) {
	case Integer:
		n = int(v)
	case Reference:
		if length != nil {
			if l, ok := length(v); ok {
				n = l
			}
		}
	}
	if n >= 0 && n <= len(rest) {
		tail := bytes.TrimLeft(rest[n:], "\x00\t\n\f\r ")
		if bytes.HasPrefix(tail, endstream) {
			return rest[:n:n], nil
		}
	}

	end := bytes.Index(rest, endstream)
	if end < 0 {
		return nil, fmt.Errorf("stream has no endstream")
	}
	body := rest[:end]
	switch {
	case bytes.HasSuffix(body, []byte("\r\n")):
		body = body[:len(body)-2]
	case bytes.HasSuffix(body, []byte("\n")), bytes.HasSuffix(body, []byte("\r")):
		body = body[:len(body)-1]
	}
	return body[:len(body):len(body)], nil
}
