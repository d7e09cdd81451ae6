package raster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"unicode"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lvillar/letterpdf/assets"
	"github.com/lvillar/letterpdf/layout"
)

// Draw paints a layout.Page without a browser.
type Draw struct{}

// Rasterize implements Rasterizer.
func (Draw) Rasterize(ctx context.Context, req Request) (image.Image, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.Page == nil {
		return nil, fmt.Errorf("raster: draw needs a composed page")
	}

	regular, bold, err := faces(req.Fonts)
	if err != nil {
		return nil, err
	}

	w, h := Size(req.Page, req.Scale)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	for _, e := range req.Page.Elements {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch {
		case e.Kind.IsImage():
			a := req.Assets[e.Src]
			if a == nil || a.Image == nil {
				return nil, fmt.Errorf("raster: image %s not preloaded", e.Src)
			}
			drawImage(dst, a.Image, scaleBox(e.Box, req.Scale), e.Fit)
		case e.Kind == layout.KindBody:
			err = drawBody(dst, regular, e, req.Scale)
		default:
			f := regular
			if e.Bold {
				f = bold
			}
			err = drawLine(dst, f, e, e.Text, 0, req.Scale)
		}
		if err != nil {
			return nil, fmt.Errorf("raster: %s: %w", e.Kind, err)
		}
	}
	return dst, nil
}

func faces(set *assets.FontSet) (regular, bold *opentype.Font, err error) {
	if set != nil {
		regular, bold = set.Regular(), set.BoldFace()
	}
	if regular == nil {
		regular, err = assets.FallbackFont()
		if err != nil {
			return nil, nil, fmt.Errorf("raster: fallback font: %w", err)
		}
	}
	if bold == nil {
		bold = regular
	}
	return regular, bold, nil
}

func scaleBox(b layout.Box, s float64) image.Rectangle {
	return image.Rect(
		int(b.X*s+0.5), int(b.Y*s+0.5),
		int((b.X+b.W)*s+0.5), int((b.Y+b.H)*s+0.5),
	)
}

func drawImage(dst *image.RGBA, src image.Image, r image.Rectangle, fit string) {
	sb := src.Bounds()
	if fit == "contain" && sb.Dx() > 0 && sb.Dy() > 0 {
		sx := float64(r.Dx()) / float64(sb.Dx())
		sy := float64(r.Dy()) / float64(sb.Dy())
		s := min(sx, sy)
		fw, fh := int(float64(sb.Dx())*s+0.5), int(float64(sb.Dy())*s+0.5)
		x0 := r.Min.X + (r.Dx()-fw)/2
		y0 := r.Min.Y + (r.Dy()-fh)/2
		r = image.Rect(x0, y0, x0+fw, y0+fh)
	}
	draw.CatmullRom.Scale(dst, r, src, sb, draw.Over, nil)
}

func newFace(f *opentype.Font, sizePx float64) (font.Face, error) {
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    sizePx,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// drawLine draws one visual line of e at line index n.
func drawLine(dst *image.RGBA, f *opentype.Font, e layout.Element, text string, n int, scale float64) error {
	size := e.FontSize
	if size <= 0 {
		size = 14
	}
	face, err := newFace(f, size*scale)
	if err != nil {
		return err
	}
	defer face.Close()

	lh := size * scale
	if e.LineHeight > 0 {
		lh *= e.LineHeight
	} else {
		lh *= 1.2
	}
	box := scaleBox(e.Box, scale)
	m := face.Metrics()
	// center the glyphs vertically inside the line box
	baseline := float64(box.Min.Y) + float64(n)*lh + (lh-fixedToFloat(m.Ascent+m.Descent))/2 + fixedToFloat(m.Ascent)

	d := &font.Drawer{Dst: dst, Src: image.NewUniform(color.Black), Face: face}
	visual := Visual(text)
	width := fixedToFloat(d.MeasureString(visual))
	d.Dot = fixed.P(int(alignX(box, width, e.Align)+0.5), int(baseline+0.5))
	d.DrawString(visual)
	return nil
}

func drawBody(dst *image.RGBA, f *opentype.Font, e layout.Element, scale float64) error {
	size := e.FontSize
	if size <= 0 {
		size = 14
	}
	face, err := newFace(f, size*scale)
	if err != nil {
		return err
	}
	maxW := e.Box.W * scale
	var lines []string
	for _, p := range Paragraphs(e.HTML) {
		lines = append(lines, wrap(face, p, maxW)...)
	}
	face.Close()

	lh := size * e.LineHeight
	if e.LineHeight <= 0 {
		lh = size * 1.8
	}
	maxLines := len(lines)
	if e.Box.H > 0 {
		// the body region clips like overflow:hidden
		maxLines = min(maxLines, int(e.Box.H/lh))
	}
	for i := 0; i < maxLines; i++ {
		if err := drawLine(dst, f, e, lines[i], i, scale); err != nil {
			return err
		}
	}
	return nil
}

func alignX(box image.Rectangle, width float64, align string) float64 {
	switch align {
	case "left":
		return float64(box.Min.X)
	case "center":
		return float64(box.Min.X) + (float64(box.Dx())-width)/2
	}
	return float64(box.Max.X) - width
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

// wrap breaks a logical paragraph into lines no wider than maxW pixels.
// Words longer than a line are broken by rune.
func wrap(face font.Face, para string, maxW float64) []string {
	words := strings.Fields(para)
	if len(words) == 0 {
		return []string{""}
	}
	measure := func(s string) float64 { return fixedToFloat(font.MeasureString(face, s)) }

	var lines []string
	cur := ""
	for _, w := range words {
		next := w
		if cur != "" {
			next = cur + " " + w
		}
		if maxW <= 0 || measure(next) <= maxW {
			cur = next
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
		}
		cur = w
		for maxW > 0 && measure(cur) > maxW {
			head, tail := breakWord(cur, measure, maxW)
			lines = append(lines, head)
			cur = tail
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func breakWord(w string, measure func(string) float64, maxW float64) (string, string) {
	runes := []rune(w)
	i := 1
	for i < len(runes) && measure(string(runes[:i+1])) <= maxW {
		i++
	}
	return string(runes[:i]), string(runes[i:])
}

// Paragraphs flattens rich body HTML to logical paragraphs. Block elements
// and <br> end a paragraph; newlines inside text are kept, matching
// white-space:pre-wrap.
func Paragraphs(src string) []string {
	nodes, err := html.ParseFragment(strings.NewReader(src), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return strings.Split(src, "\n")
	}

	var out []string
	var cur strings.Builder
	flush := func(force bool) {
		if cur.Len() > 0 || force {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			parts := strings.Split(n.Data, "\n")
			for i, p := range parts {
				if i > 0 {
					flush(true)
				}
				cur.WriteString(p)
			}
			return
		case html.ElementNode:
			if n.DataAtom == atom.Br {
				flush(true)
				return
			}
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		block := isBlock(n)
		if block {
			flush(false)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush(false)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	flush(false)
	return out
}

func isBlock(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Blockquote,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Tr, atom.Table, atom.Section, atom.Article, atom.Pre:
		return true
	}
	return false
}

func isRTL(r rune) bool {
	return unicode.In(r, unicode.Arabic, unicode.Hebrew, unicode.Syriac, unicode.Thaana)
}

// Visual reorders a logical RTL line for left-to-right painting. Runs of
// words without RTL letters (numbers, Latin references) keep their order;
// everything else is reversed. Lines without RTL letters are returned as is.
func Visual(line string) string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return ""
	}
	hasRTL := false
	class := make([]bool, len(words))
	for i, w := range words {
		for _, r := range w {
			if isRTL(r) {
				class[i] = true
				hasRTL = true
				break
			}
		}
	}
	if !hasRTL {
		return strings.Join(words, " ")
	}

	type run struct {
		rtl   bool
		words []string
	}
	var runs []run
	for i, w := range words {
		if len(runs) > 0 && runs[len(runs)-1].rtl == class[i] {
			runs[len(runs)-1].words = append(runs[len(runs)-1].words, w)
			continue
		}
		runs = append(runs, run{rtl: class[i], words: []string{w}})
	}

	out := make([]string, 0, len(words))
	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		if !r.rtl {
			out = append(out, r.words...)
			continue
		}
		for j := len(r.words) - 1; j >= 0; j-- {
			out = append(out, reverseRunes(r.words[j]))
		}
	}
	return strings.Join(out, " ")
}

func reverseRunes(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
