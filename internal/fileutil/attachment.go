package fileutil

import (
	"mime"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ASCIIName folds name to printable ASCII for legacy filename= parameters:
// accents are decomposed and dropped, anything else non-ASCII becomes '_'.
func ASCIIName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('_')
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ContentDisposition builds an attachment header carrying both an ASCII
// filename and, when needed, the RFC 2231 encoded original.
func ContentDisposition(filename string) string {
	ascii := ASCIIName(filename)
	if ascii == filename {
		return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	}
	// mime.FormatMediaType emits filename*=utf-8''... for non-ASCII values.
	encoded := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if encoded == "" {
		return mime.FormatMediaType("attachment", map[string]string{"filename": ascii})
	}
	return encoded + `; filename="` + ascii + `"`
}
