package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/scrollguard/protocol"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if c.DBPath != "scrollguard.db" || c.LogLevel != "info" || c.HTTP.Addr != "127.0.0.1:7879" {
		t.Errorf("defaults: %+v", c)
	}
	if c.Coordinator.Cooldown != 5*time.Second {
		t.Errorf("cooldown: %v", c.Coordinator.Cooldown)
	}
	if c.Coordinator.PopupURL != "http://127.0.0.1:7879/intervention" {
		t.Errorf("popup url: %q", c.Coordinator.PopupURL)
	}
	if c.Tracker.IdleTimeout != 5*time.Minute || c.Tracker.NoScrollTimeout != 30*time.Second || c.Tracker.PendingTimeout != 0 {
		t.Errorf("tracker: %+v", c.Tracker)
	}
	if c.Journal.Retention != 720*time.Hour {
		t.Errorf("retention: %v", c.Journal.Retention)
	}
}

func TestDefault_Env(t *testing.T) {
	t.Setenv("SCROLLGUARD_DB", "/tmp/sg-env.db")
	t.Setenv("SCROLLGUARD_HTTP_ADDR", "127.0.0.1:9100")
	t.Setenv("SCROLLGUARD_HEADLESS", "true")
	t.Setenv("SCROLLGUARD_TRACE_SQL", "1")

	c, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if c.DBPath != "/tmp/sg-env.db" || c.HTTP.Addr != "127.0.0.1:9100" || !c.Browser.Headless || !c.TraceSQL {
		t.Errorf("env not applied: %+v", c)
	}
	if c.Coordinator.PopupURL != "http://127.0.0.1:9100/intervention" {
		t.Errorf("popup url should follow the env addr: %q", c.Coordinator.PopupURL)
	}
}

func TestDefault_BadEnv(t *testing.T) {
	t.Setenv("SCROLLGUARD_HEADLESS", "sometimes")
	if _, err := Default(); err == nil {
		t.Error("expected error for unparsable SCROLLGUARD_HEADLESS")
	}

	t.Setenv("SCROLLGUARD_HEADLESS", "false")
	t.Setenv("SCROLLGUARD_HTTP_ADDR", "no-port")
	if _, err := Default(); err == nil {
		t.Error("expected validation error for SCROLLGUARD_HTTP_ADDR")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrollguard.yaml")
	doc := `
db_path: /var/lib/scrollguard/sg.db
log_level: debug
http:
  addr: 127.0.0.1:9000
browser:
  headless: true
coordinator:
  cooldown: 10s
tracker:
  pending_timeout: 2m
journal:
  retention: -1s
pages:
  - https://news.ycombinator.com
  - https://www.reddit.com
remote:
  - type: CHECK_PREMIUM
    url: https://licence.example.net
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.DBPath != "/var/lib/scrollguard/sg.db" || c.LogLevel != "debug" || !c.Browser.Headless {
		t.Errorf("fields: %+v", c)
	}
	if c.Coordinator.Cooldown != 10*time.Second || c.Tracker.PendingTimeout != 2*time.Minute {
		t.Errorf("durations: %v %v", c.Coordinator.Cooldown, c.Tracker.PendingTimeout)
	}
	if c.Coordinator.PopupURL != "http://127.0.0.1:9000/intervention" {
		t.Errorf("popup url follows http.addr: %q", c.Coordinator.PopupURL)
	}
	if c.Journal.Retention >= 0 {
		t.Errorf("negative retention should be kept (disables purge): %v", c.Journal.Retention)
	}
	if len(c.Pages) != 2 {
		t.Errorf("pages: %v", c.Pages)
	}
	if len(c.Remote) != 1 || c.Remote[0].Type != protocol.CheckPremium || c.Remote[0].Timeout != 10*time.Second {
		t.Errorf("remote: %+v", c.Remote)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"yaml":        "http: [",
		"addr":        "http:\n  addr: nonsense\n",
		"remote type": "remote:\n  - type: NOPE\n    url: http://x\n",
		"remote url":  "remote:\n  - type: GET_TIPS\n",
		"pending":     "tracker:\n  pending_timeout: -5s\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SCROLLGUARD_DB":             "/tmp/x.db",
		"SCROLLGUARD_LOG_LEVEL":      "warn",
		"SCROLLGUARD_BROWSER_REMOTE": "ws://127.0.0.1:9222/devtools/browser/abc",
		"SCROLLGUARD_HEADLESS":       "true",
		"SCROLLGUARD_TRACE_SQL":      "1",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	var c Config
	if err := c.applyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if c.DBPath != "/tmp/x.db" || c.LogLevel != "warn" || !c.Browser.Headless || !strings.HasPrefix(c.Browser.Remote, "ws://") || !c.TraceSQL {
		t.Errorf("env overrides: %+v", c)
	}

	env["SCROLLGUARD_HEADLESS"] = "maybe"
	if err := c.applyEnv(lookup); err == nil {
		t.Error("bad bool: expected error")
	}
}
