package reader

import (
	"strings"
	"time"
	"unicode/utf16"
)

// textString decodes a PDF text string. Strings starting with the UTF-16BE
// byte order mark are decoded as UTF-16; anything else is treated as
// PDFDocEncoding, which matches Latin-1 for the printable range.
func textString(data []byte) string {
	if len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF {
		return utf16BE(data[2:])
	}
	var b strings.Builder
	for _, c := range data {
		b.WriteRune(rune(c))
	}
	return b.String()
}

func utf16BE(data []byte) string {
	u := make([]uint16, len(data)/2)
	for i := range u {
		u[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return string(utf16.Decode(u))
}

// pdfDate parses the D:YYYYMMDDHHmmSS prefix of a PDF date. Offsets other
// than Z are honored when present.
func pdfDate(s string) (time.Time, bool) {
	s = strings.TrimPrefix(s, "D:")
	if len(s) < 14 {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102150405", s[:14])
	if err != nil {
		return time.Time{}, false
	}
	rest := strings.ReplaceAll(s[14:], "'", "")
	if len(rest) >= 5 && (rest[0] == '+' || rest[0] == '-') {
		if off, err := time.Parse("-0700", rest[:5]); err == nil {
			_, sec := off.Zone()
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.FixedZone("", sec))
		}
	}
	return t, true
}
