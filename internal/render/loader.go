package render

import (
	"crypto/sha256"
	"encoding/hex"
	"html/template"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/conneroisu/devreload/internal/errors"
)

// Module is one versioned load of a component entry.
type Module struct {
	Path       string
	Hash       string
	Generation uint64
	LoadedAt   time.Time
	Source     []byte
	Template   *template.Template
}

// ModuleLoader loads component entries by content.
//
// Every Load reads the file again and bumps the generation counter. The
// parsed template is reused only when the content hash equals the hash of
// the previous load of the same path; the cache keeps just that latest
// entry, so a changed source is always parsed afresh.
type ModuleLoader struct {
	fs    afero.Fs
	funcs template.FuncMap

	mu         sync.Mutex
	generation uint64
	cache      map[string]*Module
	parses     int
}

// NewModuleLoader creates a loader reading entries from fs.
func NewModuleLoader(fs afero.Fs, funcs template.FuncMap) *ModuleLoader {
	return &ModuleLoader{
		fs:    fs,
		funcs: funcs,
		cache: make(map[string]*Module),
	}
}

// Load returns a fresh Module for path.
func (l *ModuleLoader) Load(path string) (*Module, error) {
	src, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, errors.Render("load", path, err)
	}
	sum := sha256.Sum256(src)
	hash := hex.EncodeToString(sum[:])
	key := filepath.Clean(path)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.generation++
	mod := &Module{
		Path:       path,
		Hash:       hash,
		Generation: l.generation,
		LoadedAt:   time.Now(),
		Source:     src,
	}

	if cached, ok := l.cache[key]; ok && cached.Hash == hash {
		mod.Template = cached.Template
		l.cache[key] = mod
		return mod, nil
	}

	// the previous parse is stale from here on
	delete(l.cache, key)

	tmpl, err := template.New(filepath.Base(path)).Funcs(l.funcs).Parse(string(src))
	if err != nil {
		return nil, errors.Render("parse", path, err)
	}
	l.parses++
	mod.Template = tmpl
	l.cache[key] = mod

	return mod, nil
}

// Invalidate drops the cached parse for path.
func (l *ModuleLoader) Invalidate(path string) {
	l.mu.Lock()
	delete(l.cache, filepath.Clean(path))
	l.mu.Unlock()
}

// Generation returns the number of loads performed so far.
func (l *ModuleLoader) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation
}

// Parses returns how many times a source was actually parsed.
func (l *ModuleLoader) Parses() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.parses
}
