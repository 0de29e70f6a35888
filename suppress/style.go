package suppress

import (
	"fmt"
	"strings"
)

// Decl is one CSS declaration.
type Decl struct {
	Prop, Value string
}

// Inline renders declarations as a style attribute value.
func Inline(decls []Decl) string {
	var b strings.Builder
	for i, d := range decls {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s: %s;", d.Prop, d.Value)
	}
	return b.String()
}

// ButtonStyle places the action button bottom-right above page content.
func ButtonStyle(background string) []Decl {
	return []Decl{
		{"position", "fixed"},
		{"bottom", "20px"},
		{"right", "20px"},
		{"z-index", "2147483647"},
		{"padding", "10px 16px"},
		{"font-size", "14px"},
		{"font-weight", "600"},
		{"color", "#fff"},
		{"background-color", background},
		{"border", "none"},
		{"border-radius", "8px"},
		{"cursor", "pointer"},
		{"box-shadow", "0 2px 8px rgba(0,0,0,0.3)"},
		{"font-family", "inherit"},
	}
}

// BannerStyle pins the verified warning to the top of the viewport.
var BannerStyle = []Decl{
	{"position", "fixed"},
	{"top", "0"},
	{"left", "0"},
	{"right", "0"},
	{"z-index", "2147483646"},
	{"padding", "12px 16px"},
	{"font-size", "14px"},
	{"font-weight", "600"},
	{"color", "#1a1a1a"},
	{"background-color", "#fef08a"},
	{"border-bottom", "2px solid #eab308"},
	{"box-shadow", "0 2px 8px rgba(0,0,0,0.15)"},
	{"font-family", "inherit"},
	{"display", "flex"},
	{"align-items", "center"},
	{"justify-content", "space-between"},
	{"gap", "12px"},
}

// DismissStyle is the banner's close control.
var DismissStyle = []Decl{
	{"padding", "6px 12px"},
	{"font-size", "12px"},
	{"font-weight", "600"},
	{"color", "#1a1a1a"},
	{"background-color", "transparent"},
	{"border", "1px solid #a16207"},
	{"border-radius", "6px"},
	{"cursor", "pointer"},
	{"flex-shrink", "0"},
}

// Stylesheet hides the container regions, the favicon link and, when
// hideVideo is set, every video element. Hiding by rule keeps the nodes in
// the tree so the host's own scripts still find them.
func Stylesheet(containerIDs []string, hideVideo bool) string {
	if len(containerIDs) == 0 {
		containerIDs = DefaultContainerIDs
	}
	sels := make([]string, 0, len(containerIDs)+3)
	for _, id := range containerIDs {
		sels = append(sels, "#"+id)
	}
	sels = append(sels, `link[rel~="icon"]`)
	if hideVideo {
		sels = append(sels, "video")
	}
	return strings.Join(sels, ",\n") + " {\n  display: none !important;\n}\n"
}
