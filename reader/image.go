package reader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// ErrUnsupportedImage is returned by Image.Decode for encodings other than
// JPEG and 8-bit Gray or RGB samples.
var ErrUnsupportedImage = errors.New("reader: unsupported image encoding")

// Image is an image XObject referenced from a page's resources.
type Image struct {
	Name             Name
	Width            int
	Height           int
	ColorSpace       Name
	BitsPerComponent int
	Filters          []Name
	stream           Stream
}

// XObjectNames lists the XObject resource names of the page.
func (p *Page) XObjectNames() []Name {
	xobjs, _ := p.doc.dict(p.Resources["XObject"])
	names := make([]Name, 0, len(xobjs))
	for n := range xobjs {
		names = append(names, n)
	}
	return names
}

// Image resolves the image XObject called name in the page resources.
func (p *Page) Image(name Name) (*Image, error) {
	s, err := p.doc.xobject(p.Resources, name)
	if err != nil {
		return nil, fmt.Errorf("reader: page %d: %w", p.Number, err)
	}
	if s == nil || s.Dict.GetName("Subtype") != "Image" {
		return nil, fmt.Errorf("reader: page %d has no image %s", p.Number, name)
	}
	return newImage(name, *s), nil
}

func newImage(name Name, s Stream) *Image {
	img := &Image{Name: name, stream: s}
	w, _ := s.Dict.GetInt("Width")
	h, _ := s.Dict.GetInt("Height")
	bpc, _ := s.Dict.GetInt("BitsPerComponent")
	img.Width, img.Height, img.BitsPerComponent = int(w), int(h), int(bpc)
	img.ColorSpace = s.Dict.GetName("ColorSpace")
	img.Filters, _, _ = streamFilters(s)
	return img
}

// IsJPEG reports whether the image data is a baseline JPEG stream.
func (img *Image) IsJPEG() bool {
	if n := len(img.Filters); n > 0 {
		return img.Filters[n-1] == "DCTDecode" || img.Filters[n-1] == "DCT"
	}
	return false
}

// Data returns the image data with every filter except DCTDecode removed.
func (img *Image) Data() ([]byte, error) {
	return decodeStream(img.stream)
}

// Decode returns the image pixels.
func (img *Image) Decode() (image.Image, error) {
	data, err := img.Data()
	if err != nil {
		return nil, err
	}
	if img.IsJPEG() {
		m, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("reader: image %s: %w", img.Name, err)
		}
		return m, nil
	}
	if img.BitsPerComponent != 8 || img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("%w: %s bpc=%d", ErrUnsupportedImage, img.Name, img.BitsPerComponent)
	}

	r := image.Rect(0, 0, img.Width, img.Height)
	switch img.ColorSpace {
	case "DeviceGray":
		if len(data) < img.Width*img.Height {
			return nil, fmt.Errorf("reader: image %s: short sample data", img.Name)
		}
		return &image.Gray{Pix: data, Stride: img.Width, Rect: r}, nil
	case "DeviceRGB":
		if len(data) < 3*img.Width*img.Height {
			return nil, fmt.Errorf("reader: image %s: short sample data", img.Name)
		}
		out := image.NewRGBA(r)
		for i := 0; i < img.Width*img.Height; i++ {
			out.Set(i%img.Width, i/img.Width, color.RGBA{R: data[3*i], G: data[3*i+1], B: data[3*i+2], A: 255})
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s color space %s", ErrUnsupportedImage, img.Name, img.ColorSpace)
}
