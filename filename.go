package letterpdf

import (
	"fmt"
	"strings"

	"github.com/lvillar/letterpdf/model"
)

// Filename returns the download name of a letter: {letter_reference}.pdf
// when a reference is set, otherwise خطاب-{number}-{year}.pdf.
//
// The reference is not used verbatim: '/' and '\' become '-', so
// "HQ/9/2024" is saved as "HQ-9-2024.pdf" and the name stays a single
// path element.
func Filename(l *model.Letter) string {
	if ref := strings.TrimSpace(l.LetterReference); ref != "" {
		return strings.NewReplacer("/", "-", `\`, "-").Replace(ref) + ".pdf"
	}
	return fmt.Sprintf("خطاب-%d-%d.pdf", l.Number, l.Year)
}
