package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCacheBase_XDGSet(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/custom/cache")
	got := cacheBase()
	want := filepath.Join("/custom/cache", "traitdex")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCacheBase_HomeDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")
	got := cacheBase()
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}
	want := filepath.Join(home, ".cache", "traitdex")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCacheBase_TmpFallback(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv("HOME", "")
	got := cacheBase()
	// Should use os.TempDir() when HOME is unset
	if !strings.Contains(got, "traitdex") {
		t.Errorf("expected traitdex in path, got %q", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}

	got := expandHome("~/docs/site")
	want := filepath.Join(home, "docs/site")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path rewritten to %q", got)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("TRAITDEX_SITE_ROOT", "/srv/docs")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Site.Root.Value != "/srv/docs" {
		t.Errorf("site.root = %q, want /srv/docs", cfg.Site.Root.Value)
	}
	if cfg.Daemon.ExpirationSeconds != 600 {
		t.Errorf("daemon.expiration_seconds = %d, want default 600", cfg.Daemon.ExpirationSeconds)
	}
	if cfg.Fetch.UserAgent == "" {
		t.Error("fetch.user_agent default missing")
	}
}
