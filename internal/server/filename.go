package server

import (
	"fmt"
	"net/url"
	"strings"
)

// contentDisposition renders the Content-Disposition header value for a
// download, carrying both a plain ASCII-folded filename and the full UTF-8
// name per RFC 5987, per the original implementation's behavior (the
// distilled spec names the requirement but not the folding algorithm).
func contentDisposition(disposition, name string) string {
	folded := asciiFold(name)
	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`,
		disposition, folded, url.PathEscape(name))
}

// asciiFold keeps every rune of name in the range 0x01-0x7F except '"' and
// '\', and replaces each other rune with '_' — a per-rune substitution, not
// a Unicode decomposition or normalization pass. An empty name becomes
// "download".
func asciiFold(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r > 0 && r < 0x80 && r != '"' && r != '\\':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	folded := b.String()
	if folded == "" {
		return "download"
	}
	return folded
}
