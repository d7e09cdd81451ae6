// Package reader parses the PDFs letterpdf produces, and other simple
// unencrypted PDFs, far enough to page through them, read their info
// dictionary and locate the images drawn on each page.
package reader

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrEncrypted is returned for documents with an /Encrypt dictionary.
var ErrEncrypted = errors.New("reader: encrypted documents are not supported")

// Document is a parsed PDF.
type Document struct {
	Version string // from the %PDF- header, e.g. "1.3"
	xref    xrefTable
	trailer Dict
	data    []byte
	pages   []*Page

	mu         sync.Mutex
	objStreams map[int]*objStream
}

// Info is the document information dictionary.
type Info struct {
	Title        string
	Author       string
	Subject      string
	Keywords     string
	Creator      string
	Producer     string
	CreationDate time.Time
}

// Open parses the PDF file at filename.
func Open(filename string) (*Document, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reader: opening %s: %w", filename, err)
	}
	return Parse(data)
}

// ReadFrom reads r to the end and parses it.
func ReadFrom(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reader: reading input: %w", err)
	}
	return Parse(data)
}

// Parse builds a Document from raw PDF bytes. data is retained. Files
// whose cross-reference data is damaged are recovered by scanning for
// object headers.
func Parse(data []byte) (*Document, error) {
	doc := &Document{data: data, Version: parseVersion(data)}

	xref, trailer, err := loadXref(data)
	if err != nil {
		var rerr error
		if xref, trailer, rerr = rebuildXref(data); rerr != nil {
			return nil, fmt.Errorf("%w (recovery: %v)", err, rerr)
		}
	}
	doc.xref = xref
	doc.trailer = trailer

	if _, ok := trailer["Encrypt"]; ok {
		return nil, ErrEncrypted
	}
	if err := doc.buildPageList(); err != nil {
		return nil, err
	}
	return doc, nil
}

func parseVersion(data []byte) string {
	header := string(data[:min(20, len(data))])
	idx := strings.Index(header, "%PDF-")
	if idx < 0 {
		return ""
	}
	v := header[idx+5:]
	if end := strings.IndexAny(v, "\r\n"); end >= 0 {
		v = v[:end]
	}
	return v
}

// NumPages returns the page count.
func (d *Document) NumPages() int {
	return len(d.pages)
}

// Page returns the page at the 1-based index n.
func (d *Document) Page(n int) (*Page, error) {
	if n < 1 || n > len(d.pages) {
		return nil, fmt.Errorf("reader: page %d out of range [1, %d]", n, len(d.pages))
	}
	return d.pages[n-1], nil
}

// Pages iterates over the pages with their 1-based index.
func (d *Document) Pages() iter.Seq2[int, *Page] {
	return func(yield func(int, *Page) bool) {
		for i, page := range d.pages {
			if !yield(i+1, page) {
				return
			}
		}
	}
}

// Info returns the /Info dictionary. Missing entries are left empty.
func (d *Document) Info() Info {
	var info Info
	obj, err := d.resolveIfRef(d.trailer["Info"])
	if err != nil {
		return info
	}
	dict, _ := obj.(Dict)
	if dict == nil {
		return info
	}
	text := func(key Name) string {
		if s, ok := dict[key].(String); ok {
			return textString(s.Value)
		}
		return ""
	}
	info.Title = text("Title")
	info.Author = text("Author")
	info.Subject = text("Subject")
	info.Keywords = text("Keywords")
	info.Creator = text("Creator")
	info.Producer = text("Producer")
	if t, ok := pdfDate(text("CreationDate")); ok {
		info.CreationDate = t
	}
	return info
}

func (d *Document) resolve(ref Reference) (Object, error) {
	e, ok := d.xref[ref.Number]
	switch {
	case !ok || e.kind == entryFree:
		return Null{}, nil
	case e.kind == entryInStream:
		return d.compressed(ref.Number, e)
	}
	if e.offset < 0 || e.offset >= int64(len(d.data)) {
		return nil, fmt.Errorf("reader: object %d offset %d out of range", ref.Number, e.offset)
	}
	_, obj, err := parseIndirect(d.data[e.offset:], d.streamLength)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// streamLength resolves an indirect /Length. The length object itself is
// parsed without length resolution, so a reference cycle cannot recurse.
func (d *Document) streamLength(ref Reference) (int, bool) {
	e, ok := d.xref[ref.Number]
	if !ok || e.kind != entryInFile || e.offset >= int64(len(d.data)) {
		return 0, false
	}
	_, obj, err := parseIndirect(d.data[e.offset:], nil)
	if err != nil {
		return 0, false
	}
	n, ok := obj.(Integer)
	return int(n), ok && n >= 0
}

// objStream is a decoded object stream: the object numbers it holds and
// where each starts.
type objStream struct {
	body    []byte
	first   int
	nums    []int
	offsets []int
}

// compressed returns object num stored in an object stream.
func (d *Document) compressed(num int, e xrefEntry) (Object, error) {
	stm, err := d.objectStream(e.stream)
	if err != nil {
		return nil, fmt.Errorf("reader: object %d: %w", num, err)
	}
	if e.index < 0 || e.index >= len(stm.nums) || stm.nums[e.index] != num {
		return nil, fmt.Errorf("reader: object %d missing from object stream %d", num, e.stream)
	}
	start := stm.first + stm.offsets[e.index]
	if start < stm.first || start >= len(stm.body) {
		return nil, fmt.Errorf("reader: object %d lies past object stream %d", num, e.stream)
	}
	obj, err := newParser(stm.body[start:]).object()
	if err != nil {
		return nil, fmt.Errorf("reader: object %d in stream %d: %w", num, e.stream, err)
	}
	return obj, nil
}

func (d *Document) objectStream(num int) (*objStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if stm, ok := d.objStreams[num]; ok {
		return stm, nil
	}

	e, ok := d.xref[num]
	if !ok || e.kind != entryInFile {
		return nil, fmt.Errorf("object stream %d not found", num)
	}
	_, obj, err := parseIndirect(d.data[e.offset:], d.streamLength)
	if err != nil {
		return nil, err
	}
	s, ok := obj.(Stream)
	if !ok || s.Dict.GetName("Type") != "ObjStm" {
		return nil, fmt.Errorf("object %d is not an object stream", num)
	}
	body, err := decodeStream(s)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", num, err)
	}
	n, _ := s.Dict.GetInt("N")
	first, _ := s.Dict.GetInt("First")
	if n < 0 || first < 0 || first > int64(len(body)) {
		return nil, fmt.Errorf("object stream %d: bad /N or /First", num)
	}

	stm := &objStream{body: body, first: int(first)}
	p := newParser(body[:first])
	for i := int64(0); i < n; i++ {
		a, err1 := p.token()
		b, err2 := p.token()
		objNum, ok1 := a.int()
		off, ok2 := b.int()
		if err1 != nil || err2 != nil || !ok1 || !ok2 {
			return nil, fmt.Errorf("object stream %d: bad header pair %d", num, i)
		}
		stm.nums = append(stm.nums, int(objNum))
		stm.offsets = append(stm.offsets, int(off))
	}
	if d.objStreams == nil {
		d.objStreams = map[int]*objStream{}
	}
	d.objStreams[num] = stm
	return stm, nil
}

// resolveIfRef follows obj when it is a Reference. A nil obj resolves to
// Null.
func (d *Document) resolveIfRef(obj Object) (Object, error) {
	switch v := obj.(type) {
	case nil:
		return Null{}, nil
	case Reference:
		return d.resolve(v)
	}
	return obj, nil
}
