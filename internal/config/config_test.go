package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/paywatch/internal/classify"
	"github.com/alfredjeanlab/paywatch/internal/model"
)

var allEnvVars = []string{
	"PAYWATCH_STORE", "PAYWATCH_SQLITE_PATH", "PAYWATCH_DATABASE_URL",
	"PAYWATCH_GRPC_ADDR", "PAYWATCH_HTTP_ADDR", "PAYWATCH_AUTH_TOKEN",
	"PAYWATCH_NATS_URL", "PAYWATCH_SOURCES_FILE", "PAYWATCH_PRIMARY_SOURCE",
	"PAYWATCH_ACTIVE_TTL", "PAYWATCH_SYNC_INTERVAL", "PAYWATCH_SYNC_S3_BUCKET",
	"PAYWATCH_LOG_LEVEL", "PAYWATCH_LOG_FORMAT",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name         string
		env          map[string]string
		wantErr      bool
		wantStore    string
		wantGRPCAddr string
		wantHTTPAddr string
		wantTTL      time.Duration
	}{
		{
			name:         "Defaults",
			env:          map[string]string{},
			wantStore:    StoreSQLite,
			wantGRPCAddr: ":9090",
			wantHTTPAddr: ":8080",
			wantTTL:      24 * time.Hour,
		},
		{
			name: "Custom",
			env: map[string]string{
				"PAYWATCH_STORE":        "postgres",
				"PAYWATCH_DATABASE_URL": "postgres://db:5432/paywatch",
				"PAYWATCH_GRPC_ADDR":    ":5050",
				"PAYWATCH_HTTP_ADDR":    ":3000",
				"PAYWATCH_ACTIVE_TTL":   "10m",
			},
			wantStore:    StorePostgres,
			wantGRPCAddr: ":5050",
			wantHTTPAddr: ":3000",
			wantTTL:      10 * time.Minute,
		},
		{
			name:    "PostgresWithoutURL",
			env:     map[string]string{"PAYWATCH_STORE": "postgres"},
			wantErr: true,
		},
		{
			name:    "UnknownStore",
			env:     map[string]string{"PAYWATCH_STORE": "redis"},
			wantErr: true,
		},
		{
			name:    "BadDuration",
			env:     map[string]string{"PAYWATCH_SYNC_INTERVAL": "soon"},
			wantErr: true,
		},
		{
			name:    "BadLogLevel",
			env:     map[string]string{"PAYWATCH_LOG_LEVEL": "loud"},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Load() = %+v, want error", cfg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Store != tc.wantStore {
				t.Errorf("Store = %q, want %q", cfg.Store, tc.wantStore)
			}
			if cfg.GRPCAddr != tc.wantGRPCAddr {
				t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, tc.wantGRPCAddr)
			}
			if cfg.HTTPAddr != tc.wantHTTPAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTPAddr)
			}
			if cfg.ActiveTTL != tc.wantTTL {
				t.Errorf("ActiveTTL = %v, want %v", cfg.ActiveTTL, tc.wantTTL)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	l, err := cfg.SlogLevel()
	if err != nil || l != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, %v; want debug", l, err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()

	f, err := LoadSources("")
	if err != nil || f.Primary != classify.SourceAlipay || len(f.Sources) != 2 {
		t.Fatalf("LoadSources(\"\") = %+v, %v", f, err)
	}

	path := filepath.Join(dir, "sources.toml")
	writeFile(t, path, `
[[source]]
id = "com.tencent.mm"
receipt_keywords = ["到账"]

[[source]]
id = "com.example.bank"
`)
	f, err = LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if f.Primary != "com.tencent.mm" {
		t.Errorf("Primary = %q, want first source", f.Primary)
	}
	if got := f.Sources[0].ReceiptKeywords; len(got) != 1 || got[0] != "到账" {
		t.Errorf("ReceiptKeywords = %v", got)
	}

	for name, content := range map[string]string{
		"empty":     ``,
		"duplicate": "[[source]]\nid = \"a\"\n[[source]]\nid = \"a\"\n",
		"noid":      "[[source]]\nplugin = \"x\"\n",
		"primary":   "primary = \"b\"\n[[source]]\nid = \"a\"\n",
		"syntax":    "[[source]\n",
	} {
		p := filepath.Join(dir, name+".toml")
		writeFile(t, p, content)
		if _, err := LoadSources(p); err == nil {
			t.Errorf("LoadSources(%s) succeeded, want error", name)
		}
	}
}

type fakePlugin struct{ closed atomic.Bool }

func (p *fakePlugin) IsMatching(model.Event) bool { return true }
func (p *fakePlugin) Close() error               { p.closed.Store(true); return nil }

func TestApplier(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.toml")
	writeFile(t, path, `
primary = "com.example.bank"

[[source]]
id = "com.example.bank"
plugin = "/opt/amount"

[[source]]
id = "com.tencent.mm"
success_phrases = ["已收款"]
`)

	var loaded []*fakePlugin
	loader := func(p string, _ *slog.Logger) (classify.Classifier, io.Closer, error) {
		if p != "/opt/amount" {
			return nil, nil, errors.New("unexpected plugin path")
		}
		fp := &fakePlugin{}
		loaded = append(loaded, fp)
		return fp, fp, nil
	}

	reg := classify.DefaultRegistry()
	a := NewApplier(reg, loader, nil)
	if err := a.Apply(path, ""); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if reg.Primary() != "com.example.bank" || reg.Watched(classify.SourceAlipay) {
		t.Errorf("registry primary=%q sources=%v", reg.Primary(), reg.Sources())
	}
	if !reg.For("com.example.bank").IsMatching(model.Event{}) {
		t.Error("plugin classifier not installed")
	}
	wechat := reg.For(classify.SourceWeChat)
	if !wechat.IsMatching(model.Event{Text: model.String("已收款")}) {
		t.Error("custom success phrase not applied")
	}
	if !wechat.IsMatching(model.Event{Text: model.String("收款 3元")}) {
		t.Error("default receipt keywords lost")
	}

	// Re-applying starts new plugins and stops the previous ones.
	if err := a.Apply(path, classify.SourceWeChat); err != nil {
		t.Fatalf("Apply(override): %v", err)
	}
	if reg.Primary() != classify.SourceWeChat {
		t.Errorf("Primary = %q, want override", reg.Primary())
	}
	if len(loaded) != 2 || !loaded[0].closed.Load() || loaded[1].closed.Load() {
		t.Fatalf("plugin lifecycle wrong: %d loaded", len(loaded))
	}

	// A bad file leaves the registry alone.
	writeFile(t, path, "primary = \"zzz\"\n[[source]]\nid = \"a\"\n")
	if err := a.Apply(path, ""); err == nil {
		t.Fatal("Apply(bad) succeeded")
	}
	if reg.Primary() != classify.SourceWeChat {
		t.Errorf("registry changed after failed Apply: primary=%q", reg.Primary())
	}

	if err := a.Close(); err != nil || !loaded[1].closed.Load() {
		t.Errorf("Close = %v, plugin closed = %v", err, loaded[1].closed.Load())
	}
}

func TestApplier_NoLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.toml")
	writeFile(t, path, "[[source]]\nid = \"a\"\nplugin = \"/x\"\n")
	if err := NewApplier(classify.DefaultRegistry(), nil, nil).Apply(path, ""); err == nil {
		t.Fatal("Apply with plugin and no loader succeeded")
	}
}

func TestWatchSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.toml")
	writeFile(t, path, "[[source]]\nid = \"a\"\n")

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- WatchSources(ctx, path, 20*time.Millisecond, func() { calls.Add(1) }, nil)
	}()

	// Writes to other files in the directory are ignored; a burst of writes
	// to the watched file collapses into one reload. Keep writing until the
	// watcher is up.
	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("onChange never called")
		}
		writeFile(t, filepath.Join(dir, "other.toml"), "x")
		for range 3 {
			writeFile(t, path, "[[source]]\nid = \"b\"\n")
		}
		time.Sleep(100 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WatchSources = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WatchSources did not return after cancel")
	}
}
