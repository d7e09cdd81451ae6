package reader

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

type entryKind uint8

const (
	entryFree entryKind = iota
	entryInFile
	entryInStream // compressed into an object stream
)

type xrefEntry struct {
	kind   entryKind
	offset int64 // entryInFile: byte offset of "N G obj"
	stream int   // entryInStream: number of the object stream
	index  int   // entryInStream: position inside the object stream
}

// xrefTable maps object numbers to their location. Sections are read
// newest first, so the first entry recorded for a number wins.
type xrefTable map[int]xrefEntry

func (t xrefTable) set(num int, e xrefEntry) {
	if _, ok := t[num]; !ok {
		t[num] = e
	}
}

var errNoStartXRef = errors.New("reader: startxref not found")

func findStartXRef(data []byte) (int64, error) {
	tail := data[max(0, len(data)-2048):]
	i := bytes.LastIndex(tail, []byte("startxref"))
	if i < 0 {
		return 0, errNoStartXRef
	}
	lx := lexer{buf: tail[i+len("startxref"):]}
	t, err := lx.next()
	if err != nil {
		return 0, err
	}
	off, ok := t.int()
	if !ok || off < 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("reader: bad startxref offset %s", t)
	}
	return off, nil
}

// loadXref reads every cross-reference section reachable from startxref
// and returns the merged table with the newest trailer.
func loadXref(data []byte) (xrefTable, Dict, error) {
	off, err := findStartXRef(data)
	if err != nil {
		return nil, nil, err
	}
	table := xrefTable{}
	var trailer Dict
	seen := map[int64]bool{}
	for {
		if seen[off] {
			return nil, nil, fmt.Errorf("reader: xref sections loop back to offset %d", off)
		}
		seen[off] = true

		section, err := readXrefSection(data, off, table)
		if err != nil {
			return nil, nil, err
		}
		if trailer == nil {
			trailer = section
		}
		// hybrid files keep their compressed objects in a side stream
		if stm, ok := section.GetInt("XRefStm"); ok && !seen[stm] {
			seen[stm] = true
			if _, err := readXrefSection(data, stm, table); err != nil {
				return nil, nil, err
			}
		}
		prev, ok := section.GetInt("Prev")
		if !ok {
			return table, trailer, nil
		}
		off = prev
	}
}

func readXrefSection(data []byte, off int64, table xrefTable) (Dict, error) {
	if off < 0 || off >= int64(len(data)) {
		return nil, fmt.Errorf("reader: xref offset %d out of range", off)
	}
	p := newParser(data[off:])
	t, err := p.token()
	if err != nil {
		return nil, err
	}
	if t.is("xref") {
		return readXrefTable(p, table)
	}
	return readXrefStream(data[off:], table)
}

func readXrefTable(p *parser, table xrefTable) (Dict, error) {
	for {
		t, err := p.token()
		if err != nil {
			return nil, err
		}
		if t.is("trailer") {
			break
		}
		first, ok := t.int()
		if !ok {
			return nil, fmt.Errorf("reader: xref subsection: unexpected %s", t)
		}
		ct, err := p.token()
		if err != nil {
			return nil, err
		}
		count, ok := ct.int()
		if !ok || count < 0 || count > int64(len(p.lx.buf)) {
			return nil, fmt.Errorf("reader: xref subsection %d: bad count %s", first, ct)
		}
		for i := int64(0); i < count; i++ {
			var row [3]token
			for j := range row {
				if row[j], err = p.token(); err != nil {
					return nil, err
				}
			}
			off, ok1 := row[0].int()
			_, ok2 := row[1].int()
			if !ok1 || !ok2 || !(row[2].is("n") || row[2].is("f")) {
				return nil, fmt.Errorf("reader: xref entry %d is malformed", first+i)
			}
			e := xrefEntry{kind: entryFree}
			if row[2].is("n") {
				e = xrefEntry{kind: entryInFile, offset: off}
			}
			table.set(int(first+i), e)
		}
	}

	obj, err := p.object()
	if err != nil {
		return nil, fmt.Errorf("reader: trailer: %w", err)
	}
	trailer, ok := obj.(Dict)
	if !ok {
		return nil, fmt.Errorf("reader: trailer is %T, not a dictionary", obj)
	}
	return trailer, nil
}

func readXrefStream(data []byte, table xrefTable) (Dict, error) {
	ref, obj, err := parseIndirect(data, nil)
	if err != nil {
		return nil, fmt.Errorf("reader: xref stream: %w", err)
	}
	s, ok := obj.(Stream)
	if !ok || s.Dict.GetName("Type") != "XRef" {
		return nil, fmt.Errorf("reader: object %s is not a cross-reference stream", ref)
	}
	body, err := decodeStream(s)
	if err != nil {
		return nil, fmt.Errorf("reader: xref stream %s: %w", ref, err)
	}

	var w [3]int
	wa := s.Dict.GetArray("W")
	if len(wa) != 3 {
		return nil, fmt.Errorf("reader: xref stream %s: /W needs 3 widths", ref)
	}
	for i, v := range wa {
		n, ok := v.(Integer)
		if !ok || n < 0 || n > 8 {
			return nil, fmt.Errorf("reader: xref stream %s: bad width %v", ref, v)
		}
		w[i] = int(n)
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, fmt.Errorf("reader: xref stream %s: empty rows", ref)
	}

	size, _ := s.Dict.GetInt("Size")
	index := []int64{0, size}
	if ia := s.Dict.GetArray("Index"); len(ia) > 0 {
		index = index[:0]
		for _, v := range ia {
			n, _ := number(v)
			index = append(index, int64(n))
		}
	}

	for i := 0; i+1 < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for j := int64(0); j < count && len(body) >= rowLen; j++ {
			var f [3]int64
			row := body[:rowLen]
			body = body[rowLen:]
			for k, width := range w {
				for _, b := range row[:width] {
					f[k] = f[k]<<8 | int64(b)
				}
				row = row[width:]
			}
			if w[0] == 0 {
				f[0] = 1
			}
			num := int(first + j)
			switch f[0] {
			case 0:
				table.set(num, xrefEntry{kind: entryFree})
			case 1:
				table.set(num, xrefEntry{kind: entryInFile, offset: f[1]})
			case 2:
				table.set(num, xrefEntry{kind: entryInStream, stream: int(f[1]), index: int(f[2])})
			}
		}
	}
	return s.Dict, nil
}

var objHeader = regexp.MustCompile(`(?m)(?:^|[\r\n\s])(\d+)[\x00\t\f ]+(\d+)[\x00\t\f ]+obj\b`)

// rebuildXref recovers the object locations of a file whose
// cross-reference data is missing or broken by scanning for object
// headers. Later definitions replace earlier ones, as an incremental
// update would.
func rebuildXref(data []byte) (xrefTable, Dict, error) {
	table := xrefTable{}
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		num, err := strconv.Atoi(string(data[m[2]:m[3]]))
		if err != nil {
			continue
		}
		table[num] = xrefEntry{kind: entryInFile, offset: int64(m[2])}
	}
	if len(table) == 0 {
		return nil, nil, fmt.Errorf("reader: no objects found")
	}

	if i := bytes.LastIndex(data, []byte("trailer")); i >= 0 {
		p := newParser(data[i+len("trailer"):])
		if obj, err := p.object(); err == nil {
			if trailer, ok := obj.(Dict); ok && trailer["Root"] != nil {
				return table, trailer, nil
			}
		}
	}

	// no usable trailer: look for an xref stream dictionary or the catalog
	root := -1
	for num, e := range table {
		_, obj, err := parseIndirect(data[e.offset:], nil)
		if err != nil {
			continue
		}
		var d Dict
		switch v := obj.(type) {
		case Dict:
			d = v
		case Stream:
			d = v.Dict
		}
		switch d.GetName("Type") {
		case "XRef":
			if d["Root"] != nil {
				return table, d, nil
			}
		case "Catalog":
			root = max(root, num)
		}
	}
	if root < 0 {
		return nil, nil, fmt.Errorf("reader: no document catalog found")
	}
	return table, Dict{"Root": Reference{Number: root}}, nil
}
