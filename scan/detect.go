package scan

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// spaShells are markers of a page whose content is rendered client side.
var spaShells = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	`<noscript>you need to enable javascript`,
	`<noscript>enable javascript`,
}

// NeedsBrowser reports whether fetched HTML is too thin to scan as is:
// a short document, little visible text relative to markup, or a known
// client-rendered shell.
func NeedsBrowser(doc []byte) bool {
	if len(doc) < 256 {
		return true
	}
	text, markup := textMarkup(doc)
	total := text + markup
	if total == 0 || float64(text)/float64(total) < 0.10 || text < 200 {
		return true
	}
	lower := bytes.ToLower(doc)
	for _, m := range spaShells {
		if bytes.Contains(lower, []byte(m)) {
			return true
		}
	}
	return false
}

// textMarkup counts non-space text bytes outside script and style against
// everything else.
func textMarkup(doc []byte) (text, markup int) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return text, markup
		case html.TextToken:
			raw := z.Raw()
			if skip > 0 {
				markup += len(raw)
				continue
			}
			text += len(strings.Join(strings.Fields(string(raw)), ""))
		case html.StartTagToken:
			markup += len(z.Raw())
			if name, _ := z.TagName(); isRawText(name) {
				skip++
			}
		case html.EndTagToken:
			markup += len(z.Raw())
			if name, _ := z.TagName(); isRawText(name) && skip > 0 {
				skip--
			}
		default:
			markup += len(z.Raw())
		}
	}
}

func isRawText(name []byte) bool {
	return string(name) == "script" || string(name) == "style"
}
