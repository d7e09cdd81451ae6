package reader

import (
	"fmt"
)

// Rectangle is a PDF rectangle in user space, [llx lly urx ury].
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

// Width returns URX-LLX.
func (r Rectangle) Width() float64 { return r.URX - r.LLX }

// Height returns URY-LLY.
func (r Rectangle) Height() float64 { return r.URY - r.LLY }

// Page is one leaf of the page tree with its inherited attributes applied.
type Page struct {
	Number    int
	MediaBox  Rectangle
	Resources Dict
	Contents  []Stream
	Rotate    int
	doc       *Document
}

// ContentStream returns the decoded content streams of the page joined by
// newlines.
func (p *Page) ContentStream() ([]byte, error) {
	var out []byte
	for _, s := range p.Contents {
		decoded, err := decodeStream(s)
		if err != nil {
			return nil, fmt.Errorf("reader: decoding page %d content: %w", p.Number, err)
		}
		out = append(out, decoded...)
		out = append(out, '\n')
	}
	return out, nil
}

func parseRectangle(obj Object) (Rectangle, error) {
	arr, ok := obj.(Array)
	if !ok || len(arr) != 4 {
		return Rectangle{}, fmt.Errorf("reader: rectangle must be a 4-element array")
	}
	var v [4]float64
	for i := range arr {
		n, ok := number(arr[i])
		if !ok {
			return Rectangle{}, fmt.Errorf("reader: rectangle element %d is not numeric", i)
		}
		v[i] = n
	}
	return Rectangle{LLX: v[0], LLY: v[1], URX: v[2], URY: v[3]}, nil
}

func (d *Document) dict(obj Object) (Dict, error) {
	resolved, err := d.resolveIfRef(obj)
	if err != nil {
		return nil, err
	}
	dict, _ := resolved.(Dict)
	return dict, nil
}

func (d *Document) buildPageList() error {
	catalog, err := d.dict(d.trailer["Root"])
	if err != nil {
		return fmt.Errorf("reader: resolving /Root: %w", err)
	}
	if catalog == nil {
		return fmt.Errorf("reader: missing /Root catalog")
	}
	root, err := d.dict(catalog["Pages"])
	if err != nil {
		return fmt.Errorf("reader: resolving /Pages: %w", err)
	}
	if root == nil {
		return fmt.Errorf("reader: /Pages is not a dictionary")
	}
	d.pages = nil
	return d.walkPages(root, nil, 0)
}

// inheritable page attributes, ISO 32000-1 table 30.
var inheritable = []Name{"MediaBox", "Resources", "Rotate"}

func (d *Document) walkPages(node, inherited Dict, depth int) error {
	if depth > 64 {
		return fmt.Errorf("reader: page tree too deep")
	}
	attrs := make(Dict, len(inheritable))
	for k, v := range inherited {
		attrs[k] = v
	}
	for _, k := range inheritable {
		if v, ok := node[k]; ok {
			attrs[k] = v
		}
	}

	if node.GetName("Type") == "Page" {
		return d.addPage(node, attrs)
	}

	kids, err := d.resolveIfRef(node["Kids"])
	if err != nil {
		return fmt.Errorf("reader: resolving /Kids: %w", err)
	}
	arr, _ := kids.(Array)
	for _, kid := range arr {
		child, err := d.dict(kid)
		if err != nil {
			return fmt.Errorf("reader: resolving page tree kid: %w", err)
		}
		if child == nil {
			continue
		}
		if err := d.walkPages(child, attrs, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) addPage(node, attrs Dict) error {
	page := &Page{Number: len(d.pages) + 1, doc: d}

	if mb, err := d.resolveIfRef(attrs["MediaBox"]); err == nil {
		if r, err := parseRectangle(mb); err == nil {
			page.MediaBox = r
		}
	}
	if res, err := d.dict(attrs["Resources"]); err == nil {
		page.Resources = res
	}
	if rot, err := d.resolveIfRef(attrs["Rotate"]); err == nil {
		if n, ok := rot.(Integer); ok {
			page.Rotate = int(n)
		}
	}

	contents, err := d.resolveIfRef(node["Contents"])
	if err != nil {
		return fmt.Errorf("reader: page %d contents: %w", page.Number, err)
	}
	switch c := contents.(type) {
	case Stream:
		page.Contents = []Stream{c}
	case Array:
		for _, item := range c {
			obj, err := d.resolveIfRef(item)
			if err != nil {
				return fmt.Errorf("reader: page %d contents: %w", page.Number, err)
			}
			if s, ok := obj.(Stream); ok {
				page.Contents = append(page.Contents, s)
			}
		}
	}

	d.pages = append(d.pages, page)
	return nil
}
