package browser

import (
	"context"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.MemoryLimit != 1<<30 || c.RecycleInterval != 4*time.Hour || c.NavigateTimeout != 30*time.Second {
		t.Errorf("defaults: %+v", c)
	}
	if c.Stealth == nil || !*c.Stealth {
		t.Error("stealth should default on")
	}

	off := false
	c = Config{Stealth: &off}
	c.defaults()
	if *c.Stealth {
		t.Error("explicit stealth=false overridden")
	}
}

func TestClosedManager(t *testing.T) {
	m := NewManager(Config{})
	m.Close()
	if _, err := m.Start(context.Background()); err == nil {
		t.Error("Start after Close should fail")
	}
	if err := m.Recycle(context.Background()); err == nil {
		t.Error("Recycle after Close should fail")
	}
}

func TestNoBrowser(t *testing.T) {
	m := NewManager(Config{})
	if _, err := m.NewPage(); err == nil {
		t.Error("NewPage without a browser should fail")
	}
	if _, err := m.RenderHTML(context.Background(), "https://kick.com/"); err == nil {
		t.Error("RenderHTML without a browser should fail")
	}
}
