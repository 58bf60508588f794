package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"feedsnap/internal/blacklist"
	"feedsnap/internal/config"
)

func TestReadListenAddr(t *testing.T) {
	cases := map[string]string{
		"8080":           ":8080",
		":9090":          ":9090",
		"127.0.0.1:7000": "127.0.0.1:7000",
		"":               "",
		"not-an-addr":    "",
		"0":              "",
		"70000":          "",
		"host:port":      "",
	}
	for raw, want := range cases {
		if got := readListenAddr(raw); got != want {
			t.Errorf("readListenAddr(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestResolveListenAddr(t *testing.T) {
	t.Run("flag overrides env", func(t *testing.T) {
		t.Setenv("FEEDSNAP_LISTEN", ":6060")
		if got := resolveListenAddr(":5050", "FEEDSNAP_LISTEN"); got != ":5050" {
			t.Fatalf("resolveListenAddr returned %q, want :5050", got)
		}
	})

	t.Run("env used when flag missing", func(t *testing.T) {
		t.Setenv("FEEDSNAP_LISTEN", "6060")
		if got := resolveListenAddr("", "FEEDSNAP_LISTEN"); got != ":6060" {
			t.Fatalf("resolveListenAddr returned %q, want :6060", got)
		}
	})

	t.Run("disabled when unset", func(t *testing.T) {
		if got := resolveListenAddr("", "FEEDSNAP_LISTEN_UNSET"); got != "" {
			t.Fatalf("resolveListenAddr returned %q, want empty", got)
		}
	})
}

func TestResolveValue(t *testing.T) {
	t.Setenv("FEEDSNAP_SOURCES", "env.json")

	if got := resolveValue("flag.json", "FEEDSNAP_SOURCES", "settings.json"); got != "flag.json" {
		t.Fatalf("resolveValue returned %s, want flag.json", got)
	}
	if got := resolveValue("", "FEEDSNAP_SOURCES", "settings.json"); got != "env.json" {
		t.Fatalf("resolveValue returned %s, want env.json", got)
	}
	if got := resolveValue("", "FEEDSNAP_SOURCES_UNSET", "settings.json"); got != "settings.json" {
		t.Fatalf("resolveValue returned %s, want settings.json", got)
	}
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-once", "-sources", "feeds.toml", "-listen", ":8080"})
	if err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}
	if !opts.once || opts.sourcesPath != "feeds.toml" || opts.listenAddr != ":8080" {
		t.Fatalf("parseFlags = %+v", opts)
	}
	if opts.settingsPath != config.DefaultSettingsPath {
		t.Fatalf("settingsPath = %s, want %s", opts.settingsPath, config.DefaultSettingsPath)
	}

	if _, err := parseFlags([]string{"-unknown"}); err == nil {
		t.Fatal("parseFlags accepted an unknown flag")
	}
	if _, err := parseFlags([]string{"-h"}); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("parseFlags(-h) error = %v, want flag.ErrHelp", err)
	}
}

func TestRunOnceWritesSnapshot(t *testing.T) {
	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			fmt.Fprint(w, "# comment\n10.0.0.1\n10.0.0.1\n10.0.0.0/30\n100-200\n")
		default:
			http.Error(w, "gone", http.StatusGone)
		}
	}))
	defer feedServer.Close()

	dir := t.TempDir()
	sources := filepath.Join(dir, "feeds.json")
	output := filepath.Join(dir, "out", "blocklist.json")
	settings := filepath.Join(dir, "settings.json")

	list := fmt.Sprintf(`[
		{"name": "good", "url": %q, "regex": "^([0-9./-]+)$"},
		{"name": "bad", "url": %q, "regex": "^(\\S+)$"}
	]`, feedServer.URL+"/ok", feedServer.URL+"/missing")
	if err := os.WriteFile(sources, []byte(list), 0o644); err != nil {
		t.Fatalf("write sources: %v", err)
	}
	settingsDoc := `{"fetcher": {"workers": 2, "attempts": 1, "timeout_seconds": 5, "backoff_seconds": 0, "user_agent": "Mozilla/5.0", "max_body_bytes": 0}}`
	if err := os.WriteFile(settings, []byte(settingsDoc), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	err := run(context.Background(), options{
		settingsPath: settings,
		sourcesPath:  sources,
		outputPath:   output,
		once:         true,
	})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var doc struct {
		Timestamp int64 `json:"timestamp"`
		Feeds     map[string]struct {
			Addresses []uint64    `json:"addresses"`
			Networks  [][2]uint64 `json:"networks"`
		} `json:"feeds"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode output: %v\n%s", err, data)
	}
	if doc.Timestamp == 0 {
		t.Fatal("timestamp is zero")
	}
	good := doc.Feeds["good"]
	if len(good.Addresses) != 1 || good.Addresses[0] != 167772161 {
		t.Fatalf("good addresses = %v, want [167772161]", good.Addresses)
	}
	if len(good.Networks) != 2 || good.Networks[0] != [2]uint64{100, 200} || good.Networks[1] != [2]uint64{167772160, 167772163} {
		t.Fatalf("good networks = %v", good.Networks)
	}
	bad, ok := doc.Feeds["bad"]
	if !ok {
		t.Fatal("failed feed missing from snapshot")
	}
	if bad.Addresses == nil || len(bad.Addresses) != 0 || bad.Networks == nil || len(bad.Networks) != 0 {
		t.Fatalf("failed feed = %+v, want empty lists", bad)
	}
}

func TestRunRejectsInvalidSources(t *testing.T) {
	dir := t.TempDir()
	sources := filepath.Join(dir, "feeds.json")
	if err := os.WriteFile(sources, []byte(`[{"name": "x", "url": "ftp://example.com", "regex": "("}]`), 0o644); err != nil {
		t.Fatalf("write sources: %v", err)
	}

	err := run(context.Background(), options{
		settingsPath: filepath.Join(dir, "settings.json"),
		sourcesPath:  sources,
		outputPath:   filepath.Join(dir, "blocklist.json"),
		once:         true,
	})
	var verrs config.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("run error = %v, want ValidationErrors", err)
	}
	if len(verrs) < 2 {
		t.Fatalf("ValidationErrors = %v, want url and regex problems", verrs)
	}
	if _, err := os.Stat(filepath.Join(dir, "blocklist.json")); !os.IsNotExist(err) {
		t.Fatalf("output written despite invalid sources: %v", err)
	}
}

func TestReloadKeepsConfigWhenSourcesInvalid(t *testing.T) {
	origCfg := config.GetConfig()
	t.Cleanup(func() { config.ApplyConfig(origCfg) })

	dir := t.TempDir()
	settings := filepath.Join(dir, "settings.json")
	sources := filepath.Join(dir, "feeds.json")

	if err := os.WriteFile(settings, []byte(`{"blocked_hosts":[]}`), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	if err := os.WriteFile(sources, []byte(`[{"name":"a","url":"http://feeds.example/a","regex":"(\\S+)"}]`), 0o644); err != nil {
		t.Fatalf("write sources: %v", err)
	}
	if err := config.ReadSettings(settings); err != nil {
		t.Fatalf("ReadSettings returned error: %v", err)
	}

	opts := options{settingsPath: settings, sourcesPath: sources}
	manager := blacklist.NewManager(nil, nil, 1)
	if err := reload(opts, manager); err != nil {
		t.Fatalf("reload returned error: %v", err)
	}

	newSettings := `{"blocked_hosts":["feeds.example"],"refresh_timer":{"minutes":7}}`
	if err := os.WriteFile(settings, []byte(newSettings), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	if err := os.WriteFile(sources, []byte(`[{"name":"a","url":"http://feeds.example/a","regex":"("}]`), 0o644); err != nil {
		t.Fatalf("write sources: %v", err)
	}

	if err := reload(opts, manager); err == nil {
		t.Fatal("reload accepted an invalid source list")
	}
	if config.IsHostBlocked("http://feeds.example/a") {
		t.Fatal("blocked_hosts from rejected reload were applied")
	}
	if got := config.GetRefreshInterval(); got == 7*time.Minute {
		t.Fatal("refresh_timer from rejected reload was applied")
	}
	if got := config.GetConfig().BlockedHosts; len(got) != 0 {
		t.Fatalf("BlockedHosts = %v, want none", got)
	}

	if err := os.WriteFile(sources, []byte(`[{"name":"a","url":"http://feeds.example/a","regex":"(\\S+)"}]`), 0o644); err != nil {
		t.Fatalf("write sources: %v", err)
	}
	if err := reload(opts, manager); err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	if !config.IsHostBlocked("http://feeds.example/a") {
		t.Fatal("blocked_hosts not applied after a valid reload")
	}
	if got := config.GetRefreshInterval(); got != 7*time.Minute {
		t.Fatalf("GetRefreshInterval() = %s, want 7m", got)
	}
}
