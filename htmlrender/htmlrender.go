// Package htmlrender turns a composed layout.Page into a standalone HTML
// document.
//
// The same document serves two purposes. In Snapshot mode every image and
// font is inlined so the headless browser never touches the network while
// it rasterizes the page. In Print mode images keep their original URLs and
// the document calls window.print() once fonts and images are ready.
package htmlrender

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/lvillar/letterpdf/assets"
	"github.com/lvillar/letterpdf/layout"
)

// MarkerClass tags the page container of every scratch document.
const MarkerClass = "letterpdf-offscreen"

// Mode selects how the document is produced.
type Mode int

const (
	Snapshot Mode = iota
	Print
)

func (m Mode) String() string {
	if m == Print {
		return "print"
	}
	return "snapshot"
}

// ErrMissingAsset is returned in Snapshot mode when an image source was not
// preloaded.
var ErrMissingAsset = errors.New("htmlrender: image not preloaded")

// Options configures Render.
type Options struct {
	Mode Mode
	// Assets maps element sources to preloaded images. Required for every
	// image in Snapshot mode.
	Assets map[string]*assets.Asset
	// Fonts that loaded are embedded as @font-face rules.
	Fonts      *assets.FontSet
	FontFamily string
}

type element struct {
	Kind  string
	Style template.CSS
	Text  string
	HTML  template.HTML
	Src   template.URL
	Image bool
	Body  bool
}

type document struct {
	Title    string
	Lang     string
	Dir      string
	Marker   string
	Style    template.CSS
	Page     template.CSS
	Elements []element
	Print    bool
}

var docTemplate = template.Must(template.New("letter").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}" dir="{{.Dir}}">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>{{.Style}}</style>
</head>
<body>
<div class="letter-page {{.Marker}}" style="{{.Page}}">
{{- range .Elements}}
{{- if .Image}}
<img class="el el-{{.Kind}}" data-kind="{{.Kind}}" src="{{.Src}}" style="{{.Style}}" alt="">
{{- else if .Body}}
<div class="el el-{{.Kind}}" data-kind="{{.Kind}}" style="{{.Style}}">{{.HTML}}</div>
{{- else}}
<div class="el el-{{.Kind}}" data-kind="{{.Kind}}" style="{{.Style}}">{{.Text}}</div>
{{- end}}
{{- end}}
</div>
{{- if .Print}}
<script>
(function () {
  var imgs = Array.prototype.slice.call(document.images);
  var loaded = imgs.map(function (img) {
    return img.complete ? Promise.resolve() : new Promise(function (r) { img.onload = img.onerror = r; });
  });
  Promise.all([document.fonts.ready].concat(loaded)).then(function () {
    setTimeout(function () { window.print(); }, 250);
  });
})();
</script>
{{- end}}
</body>
</html>
`))

// Render produces the HTML document for page.
func Render(page *layout.Page, opts Options) ([]byte, error) {
	if page == nil {
		return nil, errors.New("htmlrender: nil page")
	}
	unit := "px"
	if opts.Mode == Print {
		unit = "pt"
	}
	family := opts.FontFamily
	if family == "" && opts.Fonts != nil {
		family = opts.Fonts.Family
	}

	doc := document{
		Title:  page.Title,
		Lang:   "ar",
		Dir:    page.Direction,
		Marker: MarkerClass,
		Style:  template.CSS(styleSheet(opts, family)),
		Page: template.CSS(fmt.Sprintf(
			"position:relative;overflow:hidden;width:%s;height:%s",
			num(page.Width, unit), num(page.Height, unit))),
		Print: opts.Mode == Print,
	}
	if doc.Dir == "" {
		doc.Dir = "rtl"
	}

	for _, e := range page.Elements {
		el := element{Kind: string(e.Kind)}
		switch {
		case e.Kind.IsImage():
			src, err := imageSource(e.Src, opts)
			if err != nil {
				return nil, err
			}
			el.Image = true
			el.Src = src
			el.Style = template.CSS(boxStyle(e, unit) + fitStyle(e.Fit))
		case e.Kind == layout.KindBody:
			el.Body = true
			el.HTML = template.HTML(e.HTML)
			el.Style = template.CSS(boxStyle(e, unit) + textStyle(e, unit) +
				fmt.Sprintf("line-height:%g;white-space:pre-wrap;word-break:break-word;overflow-wrap:anywhere;overflow:hidden;", e.LineHeight))
		default:
			el.Text = e.Text
			el.Style = template.CSS(boxStyle(e, unit) + textStyle(e, unit) + "white-space:nowrap;")
		}
		doc.Elements = append(doc.Elements, el)
	}

	var buf bytes.Buffer
	if err := docTemplate.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("htmlrender: %w", err)
	}
	return buf.Bytes(), nil
}

func imageSource(src string, opts Options) (template.URL, error) {
	if a, ok := opts.Assets[src]; ok && a != nil {
		if opts.Mode == Snapshot || !IsWebURL(src) {
			return template.URL(a.DataURL()), nil
		}
	}
	if opts.Mode == Snapshot {
		if strings.HasPrefix(src, "data:") {
			return template.URL(src), nil
		}
		return "", fmt.Errorf("%w: %s", ErrMissingAsset, src)
	}
	return template.URL(src), nil
}

// IsWebURL reports whether s is an http or https URL, which print mode
// leaves for the browser to fetch.
func IsWebURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func boxStyle(e layout.Element, unit string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "position:absolute;left:%s;top:%s;", num(e.Box.X, unit), num(e.Box.Y, unit))
	if e.Box.W > 0 {
		fmt.Fprintf(&b, "width:%s;", num(e.Box.W, unit))
	}
	if e.Box.H > 0 {
		fmt.Fprintf(&b, "height:%s;", num(e.Box.H, unit))
	}
	if e.Kind == layout.KindBackground {
		b.WriteString("z-index:0;")
	} else {
		b.WriteString("z-index:1;")
	}
	return b.String()
}

func textStyle(e layout.Element, unit string) string {
	align := e.Align
	if align == "" {
		align = "right"
	}
	s := fmt.Sprintf("direction:rtl;text-align:%s;font-size:%s;", align, num(e.FontSize, unit))
	if e.Bold {
		s += "font-weight:700;"
	}
	return s
}

func fitStyle(fit string) string {
	if fit == "contain" {
		return "object-fit:contain;"
	}
	return "object-fit:fill;"
}

func num(v float64, unit string) string {
	return fmt.Sprintf("%g%s", v, unit)
}

// styleSheet is the injected style pass: it embeds the font family, forces
// RTL and right alignment on text-bearing elements and sets rendering hints.
func styleSheet(opts Options, family string) string {
	var b strings.Builder

	if opts.Fonts != nil && family != "" {
		for _, f := range opts.Fonts.Fonts {
			weight := 400
			if f.Bold {
				weight = 700
			}
			fmt.Fprintf(&b, "@font-face{font-family:%q;src:url(data:%s;base64,%s);font-weight:%d;font-style:normal;font-display:block;}\n",
				family, f.MIME(), base64.StdEncoding.EncodeToString(f.Data), weight)
		}
	}

	stack := `"Segoe UI", Tahoma, Arial, sans-serif`
	if family != "" {
		stack = fmt.Sprintf("%q, %s", family, stack)
	}

	if opts.Mode == Print {
		b.WriteString("@page{size:A4;margin:0;}\n")
		b.WriteString("@media print{html,body{width:210mm;height:297mm;}}\n")
	}
	b.WriteString("html,body{margin:0;padding:0;background:#fff;}\n")
	fmt.Fprintf(&b, "body{font-family:%s;color:#000;text-rendering:optimizeLegibility;-webkit-font-smoothing:antialiased;-webkit-print-color-adjust:exact;print-color-adjust:exact;}\n", stack)
	b.WriteString(".letter-page{direction:rtl;}\n")
	b.WriteString(".letter-page [data-kind]:not(img),.letter-page .el-body *{direction:rtl;text-align:right;font-family:inherit;}\n")
	b.WriteString(".letter-page img{display:block;image-rendering:-webkit-optimize-contrast;image-rendering:high-quality;}\n")
	b.WriteString(".letter-page .el-body p{margin:0;}\n")
	return b.String()
}
