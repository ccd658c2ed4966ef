package watcher

import (
	"path/filepath"
	"strings"
)

// Kind is the pipeline category of a changed file.
type Kind int

const (
	KindOther Kind = iota
	KindStyle
	KindComponent
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindStyle:
		return "style"
	case KindComponent:
		return "component"
	default:
		return "other"
	}
}

// Classifier maps file extensions to kinds.
type Classifier struct {
	byExt map[string]Kind
}

// NewClassifier creates a classifier for the given style and component
// extensions. Extensions match case-insensitively.
func NewClassifier(styleExts, componentExts []string) *Classifier {
	c := &Classifier{byExt: make(map[string]Kind)}
	for _, ext := range styleExts {
		c.byExt[strings.ToLower(ext)] = KindStyle
	}
	for _, ext := range componentExts {
		c.byExt[strings.ToLower(ext)] = KindComponent
	}
	return c
}

// Classify returns the kind of path.
func (c *Classifier) Classify(path string) Kind {
	return c.byExt[strings.ToLower(filepath.Ext(path))]
}

// Common file filters

// NoTempFilter rejects editor swap, backup and probe files.
func NoTempFilter(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasPrefix(base, ".#"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"),
		base == "4913":
		return false
	}
	return true
}

// NoHiddenFilter rejects dotfiles and anything under a dot directory.
func NoHiddenFilter(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") && part != ".." {
			return false
		}
	}
	return true
}
