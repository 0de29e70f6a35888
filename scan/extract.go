package scan

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"golang.org/x/net/html"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	emailExact   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	mailtoPrefix = regexp.MustCompile(`(?i)^mailto:`)
)

// Extract finds e-mail addresses in the visible body text and in mailto:
// anchors, and every anchor target that resolves to an absolute http(s)
// URL.
func Extract(doc, pageURL string) (*Result, error) {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("scan: parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("scan: page url: %w", err)
	}

	var emails []string
	emails = append(emails, emailPattern.FindAllString(visibleText(d.Find("body")), -1)...)

	d.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		addr := strings.TrimSpace(mailtoPrefix.ReplaceAllString(strings.TrimSpace(href), ""))
		if i := strings.IndexAny(addr, "?&"); i >= 0 {
			addr = strings.TrimSpace(addr[:i])
		}
		if addr != "" && emailExact.MatchString(addr) {
			emails = append(emails, addr)
		}
	})

	var links []string
	d.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		// An empty href points at the page itself, as in the browser.
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if strings.HasPrefix(abs, "http://") || strings.HasPrefix(abs, "https://") {
			links = append(links, abs)
		}
	})

	return &Result{
		URL:    pageURL,
		Emails: lo.Uniq(emails),
		Links:  lo.Uniq(links),
	}, nil
}

// blockTags break text the way rendered line boxes do, so that words in
// adjacent blocks never run together.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true, "ol": true,
	"p": true, "pre": true, "section": true, "table": true, "td": true, "th": true,
	"tr": true, "ul": true,
}

// hiddenTags never contribute rendered text.
var hiddenTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "head": true,
}

// visibleText approximates innerText: text of rendered elements, with
// breaks between blocks.
func visibleText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if hiddenTags[n.Data] {
				return
			}
		}
		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return b.String()
}
