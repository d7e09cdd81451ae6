package reader

import (
	"bytes"
	"compress/zlib"
	"encoding/ascii85"
	"errors"
	"fmt"
	"io"
)

// ErrUnsupportedFilter is returned for stream filters the reader cannot undo.
var ErrUnsupportedFilter = errors.New("reader: unsupported filter")

type filterFunc func(data []byte, parms Dict) ([]byte, error)

var filters = map[Name]filterFunc{
	"FlateDecode":     flate,
	"Fl":              flate,
	"ASCIIHexDecode":  func(b []byte, _ Dict) ([]byte, error) { return asciiHex(b) },
	"AHx":             func(b []byte, _ Dict) ([]byte, error) { return asciiHex(b) },
	"ASCII85Decode":   func(b []byte, _ Dict) ([]byte, error) { return ascii85Data(b) },
	"A85":             func(b []byte, _ Dict) ([]byte, error) { return ascii85Data(b) },
	"RunLengthDecode": func(b []byte, _ Dict) ([]byte, error) { return runLength(b) },
	"RL":              func(b []byte, _ Dict) ([]byte, error) { return runLength(b) },
}

// streamFilters lists the filters of s with their decode parameters.
func streamFilters(s Stream) ([]Name, []Dict, error) {
	var names []Name
	switch f := s.Dict["Filter"].(type) {
	case nil:
		return nil, nil, nil
	case Name:
		names = []Name{f}
	case Array:
		for _, v := range f {
			n, ok := v.(Name)
			if !ok {
				return nil, nil, fmt.Errorf("reader: /Filter entry %T is not a name", v)
			}
			names = append(names, n)
		}
	default:
		return nil, nil, fmt.Errorf("reader: /Filter has type %T", f)
	}

	parms := make([]Dict, len(names))
	switch p := s.Dict["DecodeParms"].(type) {
	case Dict:
		parms[0] = p
	case Array:
		for i := 0; i < len(p) && i < len(parms); i++ {
			parms[i], _ = p[i].(Dict)
		}
	}
	return names, parms, nil
}

// decodeStream undoes the stream's filters. DCTDecode is left in place so
// the JPEG can go to image/jpeg as is; it must be the last filter.
func decodeStream(s Stream) ([]byte, error) {
	names, parms, err := streamFilters(s)
	if err != nil {
		return nil, err
	}
	data := s.Data
	for i, name := range names {
		if name == "DCTDecode" || name == "DCT" {
			if i != len(names)-1 {
				return nil, fmt.Errorf("%w: DCTDecode followed by %s", ErrUnsupportedFilter, names[i+1])
			}
			break
		}
		fn, ok := filters[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
		}
		if data, err = fn(data, parms[i]); err != nil {
			return nil, fmt.Errorf("reader: %s: %w", name, err)
		}
	}
	return data, nil
}

func flate(data []byte, parms Dict) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil && !(errors.Is(err, io.ErrUnexpectedEOF) && len(out) > 0) {
		// truncated streams still yield what was inflated
		return nil, err
	}
	return unpredict(out, parms)
}

// unpredict reverses the PNG row predictors (Predictor >= 10), which
// cross-reference streams use routinely.
func unpredict(data []byte, parms Dict) ([]byte, error) {
	pred, _ := parms.GetInt("Predictor")
	switch {
	case pred <= 1:
		return data, nil
	case pred < 10:
		return nil, fmt.Errorf("%w: TIFF predictor %d", ErrUnsupportedFilter, pred)
	}

	colors, bpc, columns := int64(1), int64(8), int64(1)
	if v, ok := parms.GetInt("Colors"); ok && v > 0 {
		colors = v
	}
	if v, ok := parms.GetInt("BitsPerComponent"); ok && v > 0 {
		bpc = v
	}
	if v, ok := parms.GetInt("Columns"); ok && v > 0 {
		columns = v
	}
	bpp := int(max(1, colors*bpc/8))
	rowLen := int((colors*bpc*columns + 7) / 8)

	out := make([]byte, 0, len(data))
	prev := make([]byte, rowLen)
	for len(data) > 0 {
		if len(data) < rowLen+1 {
			return nil, fmt.Errorf("predictor: short row")
		}
		kind, row := data[0], append([]byte(nil), data[1:rowLen+1]...)
		data = data[rowLen+1:]
		for i := range row {
			var left, upLeft byte
			if i >= bpp {
				left, upLeft = row[i-bpp], prev[i-bpp]
			}
			up := prev[i]
			switch kind {
			case 0:
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("predictor: row type %d", kind)
			}
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func asciiHex(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data)/2+1)
	hi := -1
	for _, c := range data {
		if c == '>' {
			break
		}
		if isSpace(c) {
			continue
		}
		v := unhex(c)
		if v < 0 {
			return nil, fmt.Errorf("bad hex digit %q", c)
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
	return out, nil
}

func ascii85Data(data []byte) ([]byte, error) {
	if end := bytes.Index(data, []byte("~>")); end >= 0 {
		data = data[:end]
	}
	data = bytes.TrimPrefix(bytes.TrimLeft(data, "\x00\t\n\f\r "), []byte("<~"))
	return io.ReadAll(ascii85.NewDecoder(bytes.NewReader(data)))
}

func runLength(data []byte) ([]byte, error) {
	var out []byte
	for i := 0; i < len(data); {
		n := int(data[i])
		i++
		switch {
		case n == 128:
			return out, nil
		case n < 128:
			if i+n+1 > len(data) {
				return nil, fmt.Errorf("run length: literal run past end")
			}
			out = append(out, data[i:i+n+1]...)
			i += n + 1
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("run length: repeat run past end")
			}
			out = append(out, bytes.Repeat(data[i:i+1], 257-n)...)
			i++
		}
	}
	return out, nil
}
