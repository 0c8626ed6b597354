package gomux

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

type sourceFormat struct {
	exts   []string
	opener SourceOpener
}

type sinkFormat struct {
	exts   []string
	opener SinkOpener
}

var registry = struct {
	sync.RWMutex
	sources map[string]sourceFormat
	sinks   map[string]sinkFormat
}{
	sources: map[string]sourceFormat{},
	sinks:   map[string]sinkFormat{},
}

func normExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		out = append(out, strings.TrimPrefix(strings.ToLower(ext), "."))
	}
	return out
}

// RegisterSource makes a source format available by name and file extension.
// Format packages call it from init. Registering a name twice replaces the opener.
func RegisterSource(name string, exts []string, opener SourceOpener) {
	registry.Lock()
	defer registry.Unlock()
	registry.sources[name] = sourceFormat{exts: normExts(exts), opener: opener}
}

// RegisterSink makes a sink format available by name and file extension.
func RegisterSink(name string, exts []string, opener SinkOpener) {
	registry.Lock()
	defer registry.Unlock()
	registry.sinks[name] = sinkFormat{exts: normExts(exts), opener: opener}
}

func extOf(locator string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(locator)), ".")
}

// sortedKeys keeps extension lookup deterministic when formats share an extension.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SourceFor resolves a source opener by explicit format name, or by the
// locator's extension when name is empty.
func SourceFor(locator, name string) (SourceOpener, error) {
	registry.RLock()
	defer registry.RUnlock()

	if name != "" {
		f, ok := registry.sources[name]
		if !ok {
			return nil, fmt.Errorf("unknown input format %q", name)
		}
		return f.opener, nil
	}

	ext := extOf(locator)
	for _, key := range sortedKeys(registry.sources) {
		f := registry.sources[key]
		for _, e := range f.exts {
			if e == ext {
				return f.opener, nil
			}
		}
	}
	return nil, fmt.Errorf("no input format for %q", locator)
}

// SinkFor resolves a sink opener by explicit format name, or by the locator's
// extension when name is empty.
func SinkFor(locator, name string) (SinkOpener, error) {
	registry.RLock()
	defer registry.RUnlock()

	if name != "" {
		f, ok := registry.sinks[name]
		if !ok {
			return nil, fmt.Errorf("unknown output format %q", name)
		}
		return f.opener, nil
	}

	ext := extOf(locator)
	for _, key := range sortedKeys(registry.sinks) {
		f := registry.sinks[key]
		for _, e := range f.exts {
			if e == ext {
				return f.opener, nil
			}
		}
	}
	return nil, fmt.Errorf("no output format for %q", locator)
}

// SourceFormats lists the registered source format names.
func SourceFormats() []string {
	registry.RLock()
	defer registry.RUnlock()
	return sortedKeys(registry.sources)
}

// SinkFormats lists the registered sink format names.
func SinkFormats() []string {
	registry.RLock()
	defer registry.RUnlock()
	return sortedKeys(registry.sinks)
}
