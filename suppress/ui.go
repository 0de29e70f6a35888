package suppress

import (
	"context"
	"errors"
)

// Element ids of the injected affordances.
const (
	ButtonID = "kick-extension-verify-btn"
	BannerID = "kick-extension-verified-warning"
)

// Button labels and colours.
const (
	ButtonLabel      = "Verify & Save"
	ButtonSavedLabel = "Saved!"
	ButtonColor      = "#53fc18"
	ButtonSavedColor = "#2ea043"
)

// BannerText is shown when the current page is in the verified list.
const BannerText = "This page is in your verified links list."

// ErrNoBody is returned by a Surface when the document has no body yet.
// The engine retries on the next frame.
var ErrNoBody = errors.New("suppress: document body not available")

// ButtonSpec describes the floating action control (bottom-right).
type ButtonSpec struct {
	ID         string
	Label      string
	Background string
}

// BannerSpec describes the dismissible top-of-page warning.
type BannerSpec struct {
	ID           string
	Text         string
	DismissLabel string
}

// Surface is the page chrome the engine injects into. Injection must not
// duplicate an element that already exists.
type Surface interface {
	// Location is the fully resolved address of the document.
	Location(ctx context.Context) (string, error)
	BodyReady(ctx context.Context) (bool, error)
	HasElement(ctx context.Context, id string) (bool, error)
	InjectButton(ctx context.Context, spec ButtonSpec) error
	InjectBanner(ctx context.Context, spec BannerSpec) error
	SetButtonState(ctx context.Context, id, label, background string) error
}

// LinkStore is the verified-link collection the engine consults.
type LinkStore interface {
	List(ctx context.Context) []string
	Contains(ctx context.Context, url string) bool
	Save(ctx context.Context, url string) bool
}

func defaultButton() ButtonSpec {
	return ButtonSpec{ID: ButtonID, Label: ButtonLabel, Background: ButtonColor}
}

func defaultBanner() BannerSpec {
	return BannerSpec{ID: BannerID, Text: BannerText, DismissLabel: "Dismiss"}
}
