package guard

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hazyhaar/kickguard/internal/htmldom"
	"github.com/hazyhaar/kickguard/suppress"
)

// Strip applies one suppression sweep to an HTML document read from r and
// writes the result to w. The hiding stylesheet is added to the head. No
// affordances are injected: the output is a static page.
func Strip(ctx context.Context, r io.Reader, w io.Writer, pageURL string, cfg EngineConfig) (suppress.Tally, error) {
	doc, err := htmldom.Parse(r, pageURL)
	if err != nil {
		return suppress.Tally{}, fmt.Errorf("guard: strip: %w", err)
	}
	doc.InjectStylesheet(suppress.Stylesheet(cfg.ContainerIDs, cfg.HideVideo))

	eng := suppress.New(suppress.Config{
		PageID:         "strip",
		DOM:            doc,
		Frames:         &suppress.ManualFrames{},
		ContainerIDs:   cfg.ContainerIDs,
		Synchronous:    true,
		ReinjectDelays: []time.Duration{},
	})
	defer eng.Stop()
	t := eng.Sweep(ctx)

	if err := doc.Render(w); err != nil {
		return t, fmt.Errorf("guard: strip: render: %w", err)
	}
	return t, nil
}
