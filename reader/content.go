package reader

import (
	"fmt"
	"math"
)

// Matrix is a PDF transformation matrix [a b c d e f].
type Matrix [6]float64

// Identity is the identity matrix.
var Identity = Matrix{1, 0, 0, 1, 0, 0}

// Mul returns m·n, the transform that applies m first and then n.
func (m Matrix) Mul(n Matrix) Matrix {
	return Matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// Apply transforms the point (x, y).
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// Bounds returns the bounding box of the unit square under m, which is the
// area an image XObject drawn with m covers.
func (m Matrix) Bounds() Rectangle {
	r := Rectangle{LLX: math.Inf(1), LLY: math.Inf(1), URX: math.Inf(-1), URY: math.Inf(-1)}
	for _, c := range [4][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		x, y := m.Apply(c[0], c[1])
		r.LLX, r.URX = min(r.LLX, x), max(r.URX, x)
		r.LLY, r.URY = min(r.LLY, y), max(r.URY, y)
	}
	return r
}

// Placement is an image painted by a "Do" operator with the
// transformation in effect at that point. Images inside form XObjects are
// reported with the form matrix applied.
type Placement struct {
	Name   Name
	Matrix Matrix
	Image  *Image
}

// maxFormDepth bounds form XObject nesting.
const maxFormDepth = 8

// Placements lists the images painted on the page in drawing order. Only
// the graphics state operators q, Q and cm are interpreted.
func (p *Page) Placements() ([]Placement, error) {
	data, err := p.ContentStream()
	if err != nil {
		return nil, err
	}
	var out []Placement
	if err := p.doc.collect(&out, data, p.Resources, Identity, 0); err != nil {
		return nil, fmt.Errorf("reader: page %d: %w", p.Number, err)
	}
	return out, nil
}

func (d *Document) collect(out *[]Placement, data []byte, res Dict, base Matrix, depth int) error {
	return scanContent(data, base, func(name Name, ctm Matrix) error {
		s, err := d.xobject(res, name)
		if err != nil || s == nil {
			return err
		}
		switch s.Dict.GetName("Subtype") {
		case "Image":
			*out = append(*out, Placement{Name: name, Matrix: ctm, Image: newImage(name, *s)})
		case "Form":
			if depth >= maxFormDepth {
				return fmt.Errorf("form xobjects nested deeper than %d", maxFormDepth)
			}
			body, err := decodeStream(*s)
			if err != nil {
				return fmt.Errorf("form %s: %w", name, err)
			}
			formRes, err := d.dict(s.Dict["Resources"])
			if err != nil {
				return fmt.Errorf("form %s resources: %w", name, err)
			}
			if formRes == nil {
				formRes = res
			}
			m := Identity
			if arr := s.Dict.GetArray("Matrix"); len(arr) == 6 {
				for i := range arr {
					m[i], _ = number(arr[i])
				}
			}
			return d.collect(out, body, formRes, m.Mul(ctm), depth+1)
		}
		return nil
	})
}

func (d *Document) xobject(res Dict, name Name) (*Stream, error) {
	xobjs, err := d.dict(res["XObject"])
	if err != nil {
		return nil, err
	}
	obj, err := d.resolveIfRef(xobjs[name])
	if err != nil {
		return nil, fmt.Errorf("xobject %s: %w", name, err)
	}
	s, ok := obj.(Stream)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// scanContent walks a content stream starting from the matrix base and
// calls do for every "Do" operator with the current transformation.
func scanContent(data []byte, base Matrix, do func(Name, Matrix) error) error {
	var (
		operands []token
		stack    []Matrix
		ctm      = base
		depth    int // inside an array or dictionary operand
	)
	lx := &lexer{buf: data}
	for {
		t, err := lx.next()
		if err != nil {
			return fmt.Errorf("content stream: %w", err)
		}
		switch t.kind {
		case tokEOF:
			return nil
		case tokArrayOpen, tokDictOpen:
			depth++
			operands = append(operands, t)
			continue
		case tokArrayClose, tokDictClose:
			depth--
			operands = append(operands, t)
			continue
		case tokKeyword:
			if depth > 0 || t.is("true") || t.is("false") || t.is("null") {
				operands = append(operands, t)
				continue
			}
		default:
			operands = append(operands, t)
			continue
		}

		switch string(t.text) {
		case "q":
			stack = append(stack, ctm)
		case "Q":
			if len(stack) == 0 {
				return fmt.Errorf("unbalanced Q in content stream")
			}
			ctm = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		case "cm":
			if len(operands) < 6 {
				return fmt.Errorf("cm needs 6 operands, got %d", len(operands))
			}
			var m Matrix
			for i, op := range operands[len(operands)-6:] {
				v, ok := op.float()
				if !ok {
					return fmt.Errorf("cm operand %s is not a number", op)
				}
				m[i] = v
			}
			ctm = m.Mul(ctm)
		case "Do":
			if n := len(operands); n > 0 && operands[n-1].kind == tokName {
				if err := do(Name(operands[n-1].text), ctm); err != nil {
					return err
				}
			}
		case "BI":
			lx.skipInlineImage()
		}
		operands = operands[:0]
		depth = 0
	}
}
