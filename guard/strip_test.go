package guard

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestStrip(t *testing.T) {
	in := `<html><head><title>t</title></head><body>
<img src="/thumb.webp" srcset="/thumb@2x.webp 2x">
<video src="/live.m3u8" autoplay><source src="/live.mp4"></video>
<p>chat</p>
</body></html>`

	var out bytes.Buffer
	tally, err := Strip(context.Background(), strings.NewReader(in), &out,
		"https://kick.com/somechannel", EngineConfig{HideVideo: true})
	if err != nil {
		t.Fatal(err)
	}
	if tally.Images != 1 || tally.Videos != 1 {
		t.Errorf("tally = %+v, want 1 image and 1 video", tally)
	}

	got := out.String()
	for _, gone := range []string{"/thumb.webp", "/live.m3u8", "/live.mp4", "<source"} {
		if strings.Contains(got, gone) {
			t.Errorf("output still contains %q", gone)
		}
	}
	for _, kept := range []string{"<p>chat</p>", `data-kick-blocked="1"`, "display: none !important;", "video"} {
		if !strings.Contains(got, kept) {
			t.Errorf("output missing %q", kept)
		}
	}
	if strings.Contains(got, "kick-extension-verify-btn") {
		t.Error("static output must not carry the action button")
	}
}
