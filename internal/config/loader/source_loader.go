package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/WilliamsMiao/Quant-Banana/internal/logger"
	"github.com/WilliamsMiao/Quant-Banana/internal/pkg/symbol"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SourceDefinition describes a single registered signal source. Only signals
// from enabled, registered sources are accepted at the ingest boundary.
type SourceDefinition struct {
	Name        string   `yaml:"-"`
	Kind        string   `yaml:"kind"` // "strategy" | "ai"
	Enabled     bool     `yaml:"enabled"`
	Description string   `yaml:"description"`
	Symbols     []string `yaml:"symbols"` // optional whitelist, empty allows all
	Tags        []string `yaml:"tags"`

	symbolsUpper map[string]struct{}
}

// FileConfig is the full source registry file structure.
type FileConfig struct {
	Sources map[string]SourceDefinition `yaml:"sources"`
}

// SourceSnapshot is the read-only view handed to consumers.
type SourceSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Sources  map[string]SourceDefinition
}

// ChangeListener is invoked after the registry reloads.
type ChangeListener func(SourceSnapshot)

// SourceLoader loads the signal source registry from a YAML file and watches
// it for hot reloads.
type SourceLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  SourceSnapshot
	listeners []ChangeListener
}

// NewSourceLoader reads the registry file and starts watching FS events.
func NewSourceLoader(path string) (*SourceLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("source loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read source registry failed: %w", err)
	}
	l := &SourceLoader{path: path, v: v}
	if err := l.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := l.reload(); err != nil {
			logger.Errorf("source registry reload failed (%s): %v", evt.Name, err)
			return
		}
		l.notify()
	})
	v.WatchConfig()
	return l, nil
}

// Snapshot returns the current registry snapshot.
func (l *SourceLoader) Snapshot() SourceSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// Source returns the definition for the given name.
func (l *SourceLoader) Source(name string) (SourceDefinition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	def, ok := l.snapshot.Sources[strings.ToLower(strings.TrimSpace(name))]
	return def, ok
}

// Accepts reports whether the named source is registered, enabled and allowed
// to emit signals for the given symbol.
func (l *SourceLoader) Accepts(name, symbol string) bool {
	def, ok := l.Source(name)
	if !ok || !def.Enabled {
		return false
	}
	return def.AllowsSymbol(symbol)
}

// Subscribe registers a listener and immediately delivers the current snapshot.
func (l *SourceLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := cloneSnapshot(l.snapshot)
	l.mu.Unlock()
	go func() {
		defer safeRecover("source registry listener")
		fn(snap)
	}()
}

func (l *SourceLoader) notify() {
	l.mu.RLock()
	snap := cloneSnapshot(l.snapshot)
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer safeRecover("source registry listener")
			cb(snap)
		}(fn)
	}
}

func (l *SourceLoader) reload() error {
	cfg, err := readSourceFile(l.path)
	if err != nil {
		return err
	}
	sources := make(map[string]SourceDefinition)
	for name, def := range cfg.Sources {
		norm, err := normalizeSourceDefinition(name, def)
		if err != nil {
			return err
		}
		sources[strings.ToLower(norm.Name)] = norm
	}
	l.mu.Lock()
	l.snapshot = SourceSnapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Sources:  sources,
	}
	l.mu.Unlock()
	logger.Infof("Source registry loaded %d sources from %s", len(sources), filepath.Base(l.path))
	return nil
}

func readSourceFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read source registry failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse source registry failed: %w", err)
	}
	return cfg, nil
}

func normalizeSourceDefinition(name string, def SourceDefinition) (SourceDefinition, error) {
	def.Name = strings.TrimSpace(name)
	if def.Name == "" {
		return def, fmt.Errorf("source registry entry without name")
	}
	def.Kind = strings.ToLower(strings.TrimSpace(def.Kind))
	switch def.Kind {
	case "strategy", "ai":
	default:
		return def, fmt.Errorf("source %s has unknown kind %q", def.Name, def.Kind)
	}
	def.Description = strings.TrimSpace(def.Description)
	def.Symbols = normalizeSymbols(def.Symbols)
	def.symbolsUpper = make(map[string]struct{}, len(def.Symbols))
	for _, sym := range def.Symbols {
		def.symbolsUpper[sym] = struct{}{}
	}
	return def, nil
}

// AllowsSymbol reports whether the source may emit signals for sym. An
// empty whitelist allows every symbol.
func (d SourceDefinition) AllowsSymbol(sym string) bool {
	if len(d.symbolsUpper) == 0 {
		return true
	}
	_, ok := d.symbolsUpper[symbol.Normalize(sym)]
	return ok
}

func normalizeSymbols(in []string) []string {
	return symbol.NormalizeList(in)
}

func cloneSnapshot(src SourceSnapshot) SourceSnapshot {
	dst := SourceSnapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Sources:  make(map[string]SourceDefinition, len(src.Sources)),
	}
	for name, def := range src.Sources {
		dst.Sources[name] = def
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}
