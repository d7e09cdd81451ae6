// Package qr builds the verification link printed on every letter and the
// image sources that encode it as a QR code.
//
// The link format {origin}/verify/{token} is a public contract: letters that
// were already printed carry it, so it must never change.
package qr

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"net/url"
	"strconv"
	"strings"

	"github.com/boombuler/barcode"
	bqr "github.com/boombuler/barcode/qr"
)

// Pixel bounds requested from a QR source.
const (
	MinPixels = 64
	MaxPixels = 1000
)

// ErrEmptyToken is returned when a link is requested for an empty token.
var ErrEmptyToken = errors.New("qr: empty verification token")

// VerificationLink returns the public verification URL for token.
func VerificationLink(origin, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrEmptyToken
	}
	return strings.TrimRight(origin, "/") + "/verify/" + token, nil
}

// Source produces an image URL whose image encodes data as a square QR code
// of the given pixel size.
type Source interface {
	ImageURL(data string, pixels int) (string, error)
}

// ClampPixels bounds a requested pixel size to what sources accept.
func ClampPixels(px int) int {
	if px < MinPixels {
		return MinPixels
	}
	if px > MaxPixels {
		return MaxPixels
	}
	return px
}

// Remote builds URLs for a third-party QR image endpoint that accepts
// "size" (WxH pixels) and "data" (URL-encoded payload) query parameters.
type Remote struct {
	Endpoint string // e.g. https://api.qrserver.com/v1/create-qr-code/
}

// ImageURL implements Source.
func (r Remote) ImageURL(data string, pixels int) (string, error) {
	if r.Endpoint == "" {
		return "", errors.New("qr: remote endpoint not configured")
	}
	px := strconv.Itoa(ClampPixels(pixels))
	q := url.Values{}
	q.Set("size", px+"x"+px)
	q.Set("data", data)

	sep := "?"
	if strings.Contains(r.Endpoint, "?") {
		sep = "&"
	}
	// url.Values sorts keys, so "data" precedes "size" in the query.
	return r.Endpoint + sep + q.Encode(), nil
}

// Local renders the QR code in-process and returns it as a PNG data URL.
// It needs no network access, which makes it the offline fallback.
type Local struct {
	// HighRecovery selects level H error correction instead of M, for
	// templates that print the code over a busy background.
	HighRecovery bool
}

// ImageURL implements Source.
func (l Local) ImageURL(data string, pixels int) (string, error) {
	img, err := l.PNG(data, pixels)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(img), nil
}

// PNG encodes data as a QR code PNG of pixels×pixels.
func (l Local) PNG(data string, pixels int) ([]byte, error) {
	level := bqr.M
	if l.HighRecovery {
		level = bqr.H
	}
	code, err := bqr.Encode(data, level, bqr.Auto)
	if err != nil {
		return nil, fmt.Errorf("qr: encoding: %w", err)
	}
	px := ClampPixels(pixels)
	scaled, err := barcode.Scale(code, px, px)
	if err != nil {
		return nil, fmt.Errorf("qr: scaling to %dpx: %w", px, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("qr: png: %w", err)
	}
	return buf.Bytes(), nil
}
