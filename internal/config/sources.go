package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/paywatch/internal/classify"
	"github.com/alfredjeanlab/paywatch/internal/classify/plugin"
)

// SourcesFile is the watched-sources file:
//
//	primary = "com.eg.android.AlipayGphone"
//
//	[[source]]
//	id = "com.eg.android.AlipayGphone"
//
//	[[source]]
//	id = "com.tencent.mm"
//	receipt_keywords = ["收款", "到账"]
//
//	[[source]]
//	id = "com.example.bank"
//	plugin = "/usr/local/lib/paywatch/amount"
type SourcesFile struct {
	Primary string       `toml:"primary"`
	Sources []SourceRule `toml:"source"`
}

// SourceRule configures one source. A plugin path takes precedence over
// keyword lists; with neither, the default payment keywords apply.
type SourceRule struct {
	ID               string   `toml:"id"`
	Plugin           string   `toml:"plugin"`
	SuccessPhrases   []string `toml:"success_phrases"`
	ReceiptKeywords  []string `toml:"receipt_keywords"`
	CurrencyKeywords []string `toml:"currency_keywords"`
}

// DefaultSources watches Alipay (primary) and WeChat.
func DefaultSources() *SourcesFile {
	return &SourcesFile{
		Primary: classify.SourceAlipay,
		Sources: []SourceRule{{ID: classify.SourceAlipay}, {ID: classify.SourceWeChat}},
	}
}

// LoadSources reads path, or returns DefaultSources when path is empty.
func LoadSources(path string) (*SourcesFile, error) {
	if path == "" {
		return DefaultSources(), nil
	}
	var f SourcesFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("reading sources file %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("sources file %s: %w", path, err)
	}
	return &f, nil
}

// Validate requires at least one source, non-empty unique ids, and a primary
// that is watched. An empty primary defaults to the first source.
func (f *SourcesFile) Validate() error {
	if len(f.Sources) == 0 {
		return errors.New("no sources configured")
	}
	seen := make(map[string]bool, len(f.Sources))
	for i, s := range f.Sources {
		if s.ID == "" {
			return fmt.Errorf("source %d: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("source %q listed twice", s.ID)
		}
		seen[s.ID] = true
	}
	if f.Primary == "" {
		f.Primary = f.Sources[0].ID
	}
	if !seen[f.Primary] {
		return fmt.Errorf("primary source %q is not watched", f.Primary)
	}
	return nil
}

// keywords returns the rule's keyword classifier, filling unset lists from
// the defaults.
func (r SourceRule) keywords() classify.Keywords {
	k := classify.Payment
	if len(r.SuccessPhrases) > 0 {
		k.SuccessPhrases = r.SuccessPhrases
	}
	if len(r.ReceiptKeywords) > 0 {
		k.ReceiptKeywords = r.ReceiptKeywords
	}
	if len(r.CurrencyKeywords) > 0 {
		k.CurrencyKeywords = r.CurrencyKeywords
	}
	return k
}

// PluginLoader starts a classifier plugin binary.
type PluginLoader func(path string, logger *slog.Logger) (classify.Classifier, io.Closer, error)

// LoadPlugin is the PluginLoader backed by hashicorp/go-plugin.
func LoadPlugin(path string, logger *slog.Logger) (classify.Classifier, io.Closer, error) {
	r, err := plugin.Load(path, logger)
	if err != nil {
		return nil, nil, err
	}
	return r, r, nil
}

// Applier installs a SourcesFile into a classifier registry and owns the
// plugin processes started for it.
type Applier struct {
	reg    *classify.Registry
	load   PluginLoader
	logger *slog.Logger

	mu      sync.Mutex
	plugins []io.Closer
}

// NewApplier returns an Applier. load may be nil when no source uses a plugin.
func NewApplier(reg *classify.Registry, load PluginLoader, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{reg: reg, load: load, logger: logger}
}

// Apply loads the sources file at path (defaults when empty) and swaps it
// into the registry. primaryOverride, when set, replaces the file's primary.
// On error the registry is left unchanged.
func (a *Applier) Apply(path, primaryOverride string) error {
	f, err := LoadSources(path)
	if err != nil {
		return err
	}
	if primaryOverride != "" {
		f.Primary = primaryOverride
		if err := f.Validate(); err != nil {
			return err
		}
	}

	sources := make([]classify.Source, 0, len(f.Sources))
	var started []io.Closer
	for _, r := range f.Sources {
		if r.Plugin == "" {
			sources = append(sources, classify.Source{ID: r.ID, Classifier: r.keywords()})
			continue
		}
		if a.load == nil {
			closeAll(started)
			return fmt.Errorf("source %q: plugins are not supported here", r.ID)
		}
		c, closer, err := a.load(r.Plugin, a.logger)
		if err != nil {
			closeAll(started)
			return fmt.Errorf("source %q: loading plugin %s: %w", r.ID, r.Plugin, err)
		}
		started = append(started, closer)
		sources = append(sources, classify.Source{ID: r.ID, Classifier: c})
	}

	a.reg.Replace(f.Primary, sources...)

	a.mu.Lock()
	previous := a.plugins
	a.plugins = started
	a.mu.Unlock()
	closeAll(previous)

	a.logger.Info("watched sources applied", "primary", f.Primary, "sources", len(sources), "plugins", len(started))
	return nil
}

// Close stops every plugin started by the last Apply.
func (a *Applier) Close() error {
	a.mu.Lock()
	plugins := a.plugins
	a.plugins = nil
	a.mu.Unlock()
	return closeAll(plugins)
}

func closeAll(cs []io.Closer) error {
	var errs []error
	for _, c := range cs {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
