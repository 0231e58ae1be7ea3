package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	in := RemotesConfig{
		Active: "prod",
		Remotes: map[string]Remote{
			"prod":  {URL: "https://tracker.example.com", GRPCAddr: "tracker.example.com:9090", Token: "tok_abc", User: "alice"},
			"local": {URL: "http://localhost:8080"},
		},
	}
	if err := saveRemotesConfig(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := loadRemotesConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Active != "prod" || got.Remotes["prod"] != in.Remotes["prod"] || got.Remotes["local"] != in.Remotes["local"] {
		t.Errorf("loaded %+v, want %+v", got, in)
	}

	path, _ := remoteConfigPath()
	for p, want := range map[string]os.FileMode{path: 0o600, filepath.Dir(path): 0o700} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if got := info.Mode().Perm(); got != want {
			t.Errorf("%s permissions = %04o, want %04o", p, got, want)
		}
	}
}

func TestLoadRemotesConfig_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadRemotesConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Active != "" || len(cfg.Remotes) != 0 || cfg.Remotes == nil {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestRemotesConfig_Operations(t *testing.T) {
	cfg := RemotesConfig{Remotes: map[string]Remote{}}

	if err := cfg.Add("staging", Remote{URL: "http://staging:8080"}); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Add("local", Remote{URL: "http://localhost:8080", GRPCAddr: "localhost:9090"}); err != nil {
		t.Fatal(err)
	}
	if got := cfg.Names(); !slices.Equal(got, []string{"local", "staging"}) {
		t.Errorf("Names() = %v", got)
	}
	if _, _, err := cfg.Lookup(""); err == nil {
		t.Error("Lookup without active remote should fail")
	}
	if err := cfg.Use("local"); err != nil {
		t.Fatal(err)
	}
	if name, r, err := cfg.Lookup(""); err != nil || name != "local" || r.GRPCAddr != "localhost:9090" {
		t.Errorf("Lookup() = %q, %+v, %v", name, r, err)
	}
	if err := cfg.Remove("local"); err != nil || cfg.Active != "" {
		t.Errorf("Remove() = %v, active %q", err, cfg.Active)
	}

	for _, err := range []error{cfg.Use("ghost"), cfg.Remove("ghost")} {
		if err == nil || !strings.Contains(err.Error(), `"ghost" not found`) {
			t.Errorf("err = %v", err)
		}
	}
}

func TestRemoteValidate(t *testing.T) {
	tests := []struct {
		remote Remote
		ok     bool
	}{
		{Remote{URL: "http://localhost:8080"}, true},
		{Remote{URL: "https://tracker.example.com", GRPCAddr: "tracker.example.com:9090"}, true},
		{Remote{URL: "localhost:8080"}, false},
		{Remote{URL: "ftp://tracker.example.com"}, false},
		{Remote{URL: "http://"}, false},
		{Remote{URL: "http://localhost:8080", GRPCAddr: "localhost"}, false},
	}
	for _, tt := range tests {
		if err := tt.remote.validate(); (err == nil) != tt.ok {
			t.Errorf("validate(%+v) = %v, want ok=%v", tt.remote, err, tt.ok)
		}
	}
}

func TestMaskedToken(t *testing.T) {
	r := Remote{Token: "tok_verylongsecret"}
	if got := r.maskedToken(true); got != "tok_very..." {
		t.Errorf("short = %q", got)
	}
	if got := r.maskedToken(false); got != "tok_very**********" {
		t.Errorf("long = %q", got)
	}
	if got := (Remote{Token: "abc"}).maskedToken(false); got != "abc" {
		t.Errorf("short token = %q", got)
	}
}

func TestRemoteCommands(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	var buf bytes.Buffer
	for _, c := range []*cobra.Command{remoteAddCmd, remoteUseCmd, remoteListCmd, remoteShowCmd, remoteRemoveCmd} {
		c.SetOut(&buf)
	}
	run := func(c *cobra.Command, args ...string) string {
		t.Helper()
		buf.Reset()
		if err := c.RunE(c, args); err != nil {
			t.Fatalf("%s %v: %v", c.Name(), args, err)
		}
		return buf.String()
	}

	if err := remoteAddCmd.Flags().Set("token", "tok_verylongsecret"); err != nil {
		t.Fatalf("set token flag: %v", err)
	}
	run(remoteAddCmd, "prod", "https://tracker.example.com")
	if err := remoteAddCmd.Flags().Set("token", ""); err != nil {
		t.Fatal(err)
	}
	run(remoteAddCmd, "local", "http://localhost:8080")
	run(remoteUseCmd, "prod")

	out := run(remoteListCmd)
	if !strings.Contains(out, "* prod") || strings.Index(out, "local") > strings.Index(out, "prod") {
		t.Errorf("list output:\n%s", out)
	}
	if strings.Contains(out, "tok_verylongsecret") || !strings.Contains(out, "tok_very...") {
		t.Errorf("list must truncate the token:\n%s", out)
	}

	out = run(remoteShowCmd)
	if !strings.Contains(out, "prod (active)") || strings.Contains(out, "tok_verylongsecret") {
		t.Errorf("show output:\n%s", out)
	}

	run(remoteRemoveCmd, "prod")
	cfg, _ := loadRemotesConfig()
	if _, ok := cfg.Remotes["prod"]; ok || cfg.Active != "" {
		t.Errorf("config after remove = %+v", cfg)
	}

	if err := remoteAddCmd.RunE(remoteAddCmd, []string{"bad", "not a url"}); err == nil {
		t.Error("expected invalid url to be rejected")
	}
	if err := remoteShowCmd.RunE(remoteShowCmd, nil); err == nil {
		t.Error("expected show without active remote to fail")
	}
}

func TestRemoteAdd_Check(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	if err := remoteAddCmd.Flags().Set("check", "true"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = remoteAddCmd.Flags().Set("check", "false") })

	var buf bytes.Buffer
	remoteAddCmd.SetOut(&buf)
	if err := remoteAddCmd.RunE(remoteAddCmd, []string{"live", srv.URL}); err != nil {
		t.Fatalf("add with check: %v", err)
	}
	if !strings.Contains(buf.String(), srv.URL+": ok") {
		t.Errorf("output = %q", buf.String())
	}

	srv.Close()
	if err := remoteAddCmd.RunE(remoteAddCmd, []string{"dead", srv.URL}); err == nil {
		t.Fatal("expected unreachable remote to be rejected")
	}
	cfg, _ := loadRemotesConfig()
	if _, ok := cfg.Remotes["dead"]; ok {
		t.Error("unreachable remote must not be saved")
	}
}
