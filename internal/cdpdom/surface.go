package cdpdom

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/kickguard/suppress"
)

const injectButtonJS = `(spec) => {
	if (!document.body) return "nobody";
	if (document.getElementById(spec.id)) return "exists";
	const btn = document.createElement("button");
	btn.id = spec.id;
	btn.type = "button";
	btn.textContent = spec.label;
	btn.setAttribute("style", spec.style);
	btn.addEventListener("click", () => {
		if (window[spec.binding]) window[spec.binding](location.href);
	});
	document.body.appendChild(btn);
	return "ok";
}`

const injectBannerJS = `(spec) => {
	if (!document.body) return "nobody";
	if (document.getElementById(spec.id)) return "exists";
	const banner = document.createElement("div");
	banner.id = spec.id;
	banner.setAttribute("role", "alert");
	banner.setAttribute("style", spec.style);
	const text = document.createElement("span");
	text.textContent = "⚠️ " + spec.text;
	const close = document.createElement("button");
	close.type = "button";
	close.textContent = spec.dismiss;
	close.setAttribute("style", spec.dismissStyle);
	close.addEventListener("click", () => banner.remove());
	banner.appendChild(text);
	banner.appendChild(close);
	document.body.appendChild(banner);
	return "ok";
}`

const buttonStateJS = `(id, label, bg) => {
	const btn = document.getElementById(id);
	if (!btn) return false;
	btn.textContent = label;
	btn.style.backgroundColor = bg;
	return true;
}`

// --- suppress.Surface ---

func (p *Page) Location(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => location.href`)
	if err != nil {
		return "", fmt.Errorf("cdpdom: location: %w", err)
	}
	return res.Value.Str(), nil
}

func (p *Page) BodyReady(ctx context.Context) (bool, error) {
	res, err := p.page.Context(ctx).Eval(`() => !!document.body`)
	if err != nil {
		return false, fmt.Errorf("cdpdom: body check: %w", err)
	}
	return res.Value.Bool(), nil
}

func (p *Page) HasElement(ctx context.Context, id string) (bool, error) {
	res, err := p.page.Context(ctx).Eval(`(id) => !!document.getElementById(id)`, id)
	if err != nil {
		return false, fmt.Errorf("cdpdom: find #%s: %w", id, err)
	}
	return res.Value.Bool(), nil
}

func (p *Page) InjectButton(ctx context.Context, spec suppress.ButtonSpec) error {
	return p.inject(ctx, injectButtonJS, map[string]string{
		"id":      spec.ID,
		"label":   spec.Label,
		"style":   suppress.Inline(suppress.ButtonStyle(spec.Background)),
		"binding": verifyBinding,
	})
}

func (p *Page) InjectBanner(ctx context.Context, spec suppress.BannerSpec) error {
	return p.inject(ctx, injectBannerJS, map[string]string{
		"id":           spec.ID,
		"text":         spec.Text,
		"dismiss":      spec.DismissLabel,
		"style":        suppress.Inline(suppress.BannerStyle),
		"dismissStyle": suppress.Inline(suppress.DismissStyle),
	})
}

func (p *Page) inject(ctx context.Context, js string, spec map[string]string) error {
	res, err := p.page.Context(ctx).Eval(js, spec)
	if err != nil {
		return fmt.Errorf("cdpdom: inject #%s: %w", spec["id"], err)
	}
	if res.Value.Str() == "nobody" {
		return suppress.ErrNoBody
	}
	return nil
}

func (p *Page) SetButtonState(ctx context.Context, id, label, background string) error {
	res, err := p.page.Context(ctx).Eval(buttonStateJS, id, label, background)
	if err != nil {
		return fmt.Errorf("cdpdom: button state: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("cdpdom: no element #%s: %w", id, suppress.ErrNodeGone)
	}
	return nil
}

// InstallStylesheet adds the hiding rules to the current document and to
// every document loaded later in this tab.
func (p *Page) InstallStylesheet(ctx context.Context, css string) error {
	src, err := stylesheetScript(css)
	if err != nil {
		return err
	}
	if _, err := p.page.Context(ctx).EvalOnNewDocument(src); err != nil {
		return fmt.Errorf("cdpdom: stylesheet on new document: %w", err)
	}
	if _, err := p.page.Context(ctx).Eval(`() => ` + src); err != nil {
		return fmt.Errorf("cdpdom: stylesheet: %w", err)
	}
	return nil
}

// stylesheetScript returns an expression that inserts css as soon as the
// document element exists.
func stylesheetScript(css string) (string, error) {
	lit, err := json.Marshal(css)
	if err != nil {
		return "", fmt.Errorf("cdpdom: encode stylesheet: %w", err)
	}
	return fmt.Sprintf(`(function (css) {
	const add = () => {
		if (document.getElementById("kickguard-style")) return;
		const s = document.createElement("style");
		s.id = "kickguard-style";
		s.textContent = css;
		(document.head || document.documentElement).appendChild(s);
	};
	if (document.documentElement) add();
	else document.addEventListener("readystatechange", add, { once: true });
})(%s)`, lit), nil
}
