package suppress

import (
	"context"
	"net/url"
	"regexp"
)

var categoryPage = regexp.MustCompile(`^https://(www\.)?kick\.com/category/`)

const (
	cardSelector = `[class~="group/card"]`
	cardBorder   = "2px solid #22c55e"
)

// highlightCards outlines category cards whose link is verified. Only
// category listing pages carry such cards.
func (e *Engine) highlightCards(ctx context.Context, pageURL string, t *Tally) {
	if e.links == nil || !categoryPage.MatchString(pageURL) {
		return
	}
	verified := e.links.List(ctx)
	if len(verified) == 0 {
		return
	}
	set := make(map[string]bool, len(verified))
	for _, v := range verified {
		set[v] = true
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return
	}

	var cards []Node
	e.listener.guard(t, "cards", Node{Tag: cardSelector}, func() error {
		cards, err = e.dom.QueryAll(ctx, Document, cardSelector)
		return err
	})
	for _, card := range cards {
		e.listener.guard(t, "card", card, func() error {
			link, ok, err := e.dom.FirstElementChild(ctx, card.ID)
			if err != nil || !ok || link.Tag != "a" {
				return err
			}
			href := resolveHref(base, link.Attr("href"))
			if href == "" {
				return nil
			}
			if set[href] {
				return e.dom.SetStyle(ctx, card.ID, "border", cardBorder)
			}
			if err := e.dom.SetStyle(ctx, card.ID, "border", ""); err != nil {
				return err
			}
			return e.dom.SetStyle(ctx, card.ID, "border-radius", "")
		})
	}
}

func resolveHref(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
