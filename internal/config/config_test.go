package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/kickguard/dbopen"
)

func TestLoadFileDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kickguard.yaml")
	data := `
pages:
  - url: https://kick.com/browse
  - id: irl
    url: https://kick.com/category/irl
sinks:
  - type: stdout
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pages[0].ID != "page-1" || cfg.Pages[1].ID != "irl" {
		t.Errorf("page ids = %q, %q", cfg.Pages[0].ID, cfg.Pages[1].ID)
	}
	if cfg.Store.Backend != "page" {
		t.Errorf("store backend = %q, want page", cfg.Store.Backend)
	}
	if cfg.Scan.Timeout != 8*time.Second || cfg.Scan.Fetch != "auto" {
		t.Errorf("scan = %+v", cfg.Scan)
	}
	if cfg.Engine.ReinjectDelays != nil {
		t.Errorf("reinject delays = %v, want engine default", cfg.Engine.ReinjectDelays)
	}
	if cfg.Sinks[0].MaxRetries != 3 {
		t.Errorf("sink retries = %d", cfg.Sinks[0].MaxRetries)
	}
	if cfg.Browser.Stealth != nil {
		t.Error("stealth should stay unset so the browser default applies")
	}
}

func TestParseEngine(t *testing.T) {
	cfg, err := Parse([]byte(`
engine:
  container_ids: [main-player, sidebar]
  reinject_delays: [250ms, 1s]
  hide_video: true
store:
  backend: sqlite
`))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"main-player", "sidebar"}, cfg.Engine.ContainerIDs); diff != "" {
		t.Errorf("container ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]time.Duration{250 * time.Millisecond, time.Second}, cfg.Engine.ReinjectDelays); diff != "" {
		t.Errorf("reinject delays (-want +got):\n%s", diff)
	}
	if !cfg.Engine.HideVideo {
		t.Error("hide_video not read")
	}
	if cfg.Store.Path != "kickguard.db" {
		t.Errorf("sqlite path = %q", cfg.Store.Path)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"backend":  "store: {backend: redis}",
		"fetch":    "scan: {fetch: carrier-pigeon}",
		"page url": "pages: [{id: x}]",
		"webhook":  "sinks: [{type: webhook}]",
		"sink":     "sinks: [{type: nats}]",
		"watch":    "store: {watch_pages: true}",
		"yaml":     "pages: [",
	}
	for name, data := range cases {
		if _, err := Parse([]byte(data)); err == nil {
			t.Errorf("%s: expected error", name)
		} else if !strings.HasPrefix(err.Error(), "config: ") {
			t.Errorf("%s: error %q lacks package prefix", name, err)
		}
	}
}

func TestPagesTable(t *testing.T) {
	ctx := context.Background()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))

	for _, p := range []PageConfig{
		{ID: "b", URL: "https://kick.com/b"},
		{ID: "a", URL: "https://kick.com/a"},
	} {
		if err := UpsertPage(ctx, db, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := UpsertPage(ctx, db, PageConfig{ID: "a", URL: "https://kick.com/a2"}); err != nil {
		t.Fatal(err)
	}
	if err := DisablePage(ctx, db, "b"); err != nil {
		t.Fatal(err)
	}

	got, err := LoadPages(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	want := []PageConfig{{ID: "a", URL: "https://kick.com/a2"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pages (-want +got):\n%s", diff)
	}

	if err := UpsertPage(ctx, db, PageConfig{ID: "b", URL: "https://kick.com/b"}); err != nil {
		t.Fatal(err)
	}
	if got, _ = LoadPages(ctx, db); len(got) != 2 {
		t.Errorf("re-activated page missing: %v", got)
	}
}
